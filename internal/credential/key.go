package credential

import (
	"encoding/base64"
	"encoding/pem"
	"errors"
	"strings"
)

// ErrMalformedKey is returned when the configured private key cannot be decoded.
var ErrMalformedKey = errors.New("malformed private key")

const defaultBlockType = "PRIVATE KEY"

// NormalizePrivateKey turns key material as it usually arrives from the
// environment (quoted, with escaped "\n" sequences, re-wrapped by a shell, or
// as a bare base64 body) into canonical PEM.
func NormalizePrivateKey(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.ReplaceAll(s, `\r`, "")
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, "\r", "")

	blockType := defaultBlockType
	body := s
	if i := strings.Index(s, "-----BEGIN "); i >= 0 {
		rest := s[i+len("-----BEGIN "):]
		end := strings.Index(rest, "-----")
		if end < 0 {
			return nil, ErrMalformedKey
		}
		blockType = rest[:end]
		rest = rest[end+len("-----"):]

		footer := "-----END " + blockType + "-----"
		j := strings.Index(rest, footer)
		if j < 0 {
			return nil, ErrMalformedKey
		}
		body = rest[:j]
	}

	body = strings.Join(strings.Fields(body), "")
	if body == "" {
		return nil, ErrMalformedKey
	}
	der, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, errors.Join(ErrMalformedKey, err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), nil
}
