package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nekogravitycat/meeting-booking-backend/internal/api"
	"github.com/nekogravitycat/meeting-booking-backend/internal/auth"
	"github.com/nekogravitycat/meeting-booking-backend/internal/availability"
	"github.com/nekogravitycat/meeting-booking-backend/internal/booking"
	"github.com/nekogravitycat/meeting-booking-backend/internal/calendar"
	"github.com/nekogravitycat/meeting-booking-backend/internal/config"
	"github.com/nekogravitycat/meeting-booking-backend/internal/credential"
	"github.com/nekogravitycat/meeting-booking-backend/internal/notification"
	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/storage"
	"github.com/nekogravitycat/meeting-booking-backend/internal/upload"
)

// outboundTimeout bounds every call to Google and the email provider.
const outboundTimeout = 30 * time.Second

// Container holds the initialized components that are needed externally.
type Container struct {
	Router     *gin.Engine
	Reconciler *booking.Reconciler
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg *config.Config, pool *pgxpool.Pool, log *zap.Logger) (*Container, error) {
	httpClient := &http.Client{Timeout: outboundTimeout}
	loc := cfg.Location()
	hours := availability.BusinessHours{Location: loc, OpenHour: cfg.OpenHour, CloseHour: cfg.CloseHour}

	// Credential + Calendar
	signer, err := credential.NewSigner(credential.Config{
		Issuer:     cfg.ServiceAccountEmail,
		Scope:      cfg.CalendarScope,
		TokenURL:   cfg.TokenURL,
		PrivateKey: cfg.PrivateKey,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("init credential signer: %w", err)
	}
	calendarManager := calendar.NewManager(
		calendar.NewGoogleClient(signer, cfg.CalendarEndpoint),
		calendar.Config{CalendarID: cfg.CalendarID, ServiceAccount: cfg.ServiceAccountEmail, Location: loc},
		log.Named("calendar"),
	)

	// Notification
	var sender notification.Sender
	if cfg.BrevoAPIKey != "" {
		sender = notification.NewBrevoSender(notification.BrevoConfig{
			APIKey:      cfg.BrevoAPIKey,
			URL:         cfg.BrevoURL,
			SenderEmail: cfg.EmailSender,
			SenderName:  cfg.EmailSenderName,
			HTTPClient:  httpClient,
		})
	} else {
		log.Warn("BREVO_API_KEY not set, emails will only be logged")
		sender = notification.NewLogSender(log.Named("email"))
	}
	dispatcher, err := notification.NewDispatcher(notification.Config{
		OperatorEmail: cfg.OperatorEmail,
		OperatorName:  cfg.OperatorName,
	}, sender, log.Named("notification"))
	if err != nil {
		return nil, err
	}

	// Booking Module
	bookingRepo := booking.NewPgxRepository(pool, loc)
	bookingService := booking.NewService(booking.Config{
		PublicBaseURL: cfg.PublicBaseURL,
		Hours:         hours,
	}, bookingRepo, calendarManager, dispatcher, log.Named("booking"))
	reconciler := booking.NewReconciler(bookingRepo, calendarManager, loc, cfg.ReconcileMaxAttempts, log.Named("reconcile"))

	// Availability Module
	availabilityService := availability.NewService(availability.Config{
		Hours:   hours,
		MaxDays: cfg.AvailabilityMaxDays,
	}, calendarManager, bookingRepo, log.Named("availability"))

	// Upload Module
	store, err := storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	uploadService := upload.NewService(store, cfg.UploadMaxBytes, log.Named("upload"))

	router := api.NewRouter(api.Config{
		IsProduction:        cfg.IsProduction(),
		ProdOrigins:         cfg.ProdOrigins,
		Log:                 log,
		DB:                  pool,
		AvailabilityService: availabilityService,
		BookingService:      bookingService,
		Reconciler:          reconciler,
		UploadService:       uploadService,
		UploadMaxBytes:      cfg.UploadMaxBytes,
		Operator: auth.OperatorCredentials{
			User:         cfg.OperatorUser,
			PasswordHash: cfg.OperatorPasswordHash,
		},
		PasswordHasher: auth.NewBcryptPasswordHasher(),
	})

	return &Container{
		Router:     router,
		Reconciler: reconciler,
	}, nil
}
