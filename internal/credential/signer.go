package credential

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/apperror"
)

// AssertionLifetime is the validity window requested for every assertion.
const AssertionLifetime = time.Hour

const jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// ErrAuthenticationFailure means the token exchange was refused or the
// assertion could not be produced. It is never retried.
var ErrAuthenticationFailure = apperror.New(http.StatusBadGateway, "calendar authentication failed")

// Claims are the claims of a service-account assertion.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Config describes a service account.
type Config struct {
	Issuer     string // service account email
	Scope      string
	TokenURL   string // also used as the assertion audience
	PrivateKey string // PEM, possibly with escaped newlines
	HTTPClient *http.Client
}

// Signer builds signed assertions and exchanges them for bearer tokens.
type Signer struct {
	issuer   string
	scope    string
	tokenURL string
	key      *rsa.PrivateKey
	client   *http.Client
	now      func() time.Time
}

// NewSigner parses the key once and returns a Signer.
func NewSigner(cfg Config) (*Signer, error) {
	if cfg.Issuer == "" || cfg.TokenURL == "" {
		return nil, errors.New("credential: issuer and token url are required")
	}
	pemBytes, err := NormalizePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, errors.Join(ErrMalformedKey, err)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &Signer{
		issuer:   cfg.Issuer,
		scope:    cfg.Scope,
		tokenURL: cfg.TokenURL,
		key:      key,
		client:   client,
		now:      time.Now,
	}, nil
}

// Issuer returns the service-account identity.
func (s *Signer) Issuer() string {
	return s.issuer
}

// Assertion creates an RS256 signed assertion issued at now.
func (s *Signer) Assertion(now time.Time) (string, error) {
	now = now.UTC().Truncate(time.Second)
	claims := &Claims{
		Scope: s.scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.tokenURL},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AssertionLifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token exchanges a fresh assertion for an access token. Tokens are not cached.
func (s *Signer) Token(ctx context.Context) (*oauth2.Token, error) {
	now := s.now()
	assertion, err := s.Assertion(now)
	if err != nil {
		return nil, apperror.WrapSentinel(ErrAuthenticationFailure, err)
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperror.WrapSentinel(ErrAuthenticationFailure, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperror.WrapSentinel(ErrAuthenticationFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperror.WrapSentinel(ErrAuthenticationFailure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperror.WrapSentinel(ErrAuthenticationFailure,
			fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, apperror.WrapSentinel(ErrAuthenticationFailure, fmt.Errorf("decode token response: %w", err))
	}
	if tr.AccessToken == "" {
		return nil, apperror.WrapSentinel(ErrAuthenticationFailure, errors.New("token response has no access_token"))
	}

	tok := &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
	}
	if tr.ExpiresIn > 0 {
		tok.Expiry = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tok, nil
}

// TokenSource adapts the signer for oauth2 consumers. Each call performs a
// new exchange; wrap with oauth2.ReuseTokenSource to share one token.
func (s *Signer) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, signer: s}
}

type tokenSource struct {
	ctx    context.Context
	signer *Signer
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	return ts.signer.Token(ts.ctx)
}
