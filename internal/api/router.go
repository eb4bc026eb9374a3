package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nekogravitycat/meeting-booking-backend/internal/auth"
	"github.com/nekogravitycat/meeting-booking-backend/internal/availability"
	availabilityHttp "github.com/nekogravitycat/meeting-booking-backend/internal/availability/http"
	"github.com/nekogravitycat/meeting-booking-backend/internal/booking"
	bookingHttp "github.com/nekogravitycat/meeting-booking-backend/internal/booking/http"
	"github.com/nekogravitycat/meeting-booking-backend/internal/pkg/logger"
	"github.com/nekogravitycat/meeting-booking-backend/internal/upload"
	uploadHttp "github.com/nekogravitycat/meeting-booking-backend/internal/upload/http"
)

// Config carries the services and settings the router is assembled from.
type Config struct {
	IsProduction bool
	ProdOrigins  string
	Log          *zap.Logger
	DB           Pinger

	AvailabilityService availability.Service
	BookingService      booking.Service
	Reconciler          bookingHttp.Reconciler
	UploadService       upload.Service
	UploadMaxBytes      int64

	Operator       auth.OperatorCredentials
	PasswordHasher auth.PasswordHasher
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, Logger, Auth) and registering routes for various modules.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global Middleware:
	// - Logger: request log lines through zap.
	// - Recovery: Captures panics to prevent server crashes and returns a 500 error.
	r.Use(logger.GinMiddleware(cfg.Log), gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.IsProduction, cfg.ProdOrigins)))

	operatorMiddleware := auth.OperatorRequired(cfg.Operator, cfg.PasswordHasher)

	availabilityHandler := availabilityHttp.NewHandler(cfg.AvailabilityService)
	bookingHandler := bookingHttp.NewHandler(cfg.BookingService, cfg.Reconciler)
	uploadHandler := uploadHttp.NewHandler(cfg.UploadService, cfg.UploadMaxBytes)

	r.GET("/healthz", Health(cfg.DB))

	// Register API routes under /v1
	v1 := r.Group("/v1")
	{
		availabilityHttp.RegisterRoutes(v1, availabilityHandler)
		bookingHttp.RegisterRoutes(v1, bookingHandler, operatorMiddleware)
		uploadHttp.RegisterRoutes(v1, uploadHandler, operatorMiddleware)
	}

	return r
}

func corsConfig(isProduction bool, prodOrigins string) cors.Config {
	config := cors.DefaultConfig()
	if isProduction {
		var origins []string
		for _, o := range strings.Split(prodOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		config.AllowOrigins = origins
		if len(origins) == 0 {
			// cors.New panics on an empty origin list.
			config.AllowOrigins = []string{"https://invalid.localhost"}
		}
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	config.MaxAge = 12 * time.Hour
	return config
}
