package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fresh-market/internal/config"
	"fresh-market/internal/database"
	"fresh-market/internal/domain"
	custommiddleware "fresh-market/internal/middleware"
	"fresh-market/internal/notify"
	"fresh-market/internal/repository"
	"fresh-market/internal/service"
	"fresh-market/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateLimitPrefix = "fresh-market:ratelimit"

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     database.Service
	redis  *redis.Client
	hub    *notify.Hub

	stopRelay context.CancelFunc
	relayDone <-chan struct{}
}

// NewServer wires repositories, services and handlers onto a router. A nil
// redisClient keeps rate limiting in memory and delivers events straight
// to the local hub.
func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service, redisClient *redis.Client) (*Server, error) {
	sqlDB := db.DB()

	router := chi.NewRouter()
	router.Use(custommiddleware.BaseStack(cfg.Server.AllowedOrigins, cfg.IsDevelopment(), logger)...)
	router.Use(middleware.Recoverer)

	s := &Server{
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
		hub:    notify.NewHub(cfg.Server.AllowedOrigins, logger.Named("hub")),
	}

	var publisher notify.Publisher = s.hub
	if redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		done, err := notify.Relay(ctx, redisClient, notify.DefaultChannel, s.hub, logger.Named("relay"))
		if err != nil {
			cancel()
			s.hub.Close()
			return nil, fmt.Errorf("failed to start event relay: %w", err)
		}
		s.stopRelay = cancel
		s.relayDone = done
		publisher = notify.NewRedisPublisher(redisClient, notify.DefaultChannel)
	}

	router.Get("/health", s.health)

	// Repositories
	userRepo := repository.NewUserRepository(sqlDB)
	refreshTokenRepo := repository.NewRefreshTokenRepository(sqlDB)
	productRepo := repository.NewProductRepository(sqlDB)
	categoryRepo := repository.NewCategoryRepository(sqlDB)
	cartRepo := repository.NewCartRepository(sqlDB)
	orderRepo := repository.NewOrderRepository(sqlDB)
	freshnessRepo := repository.NewFreshnessRepository(sqlDB)
	dashboardRepo := repository.NewDashboardRepository(sqlDB)

	// Services
	pricing := domain.PricingRules{
		FreeDeliveryThreshold: cfg.Order.FreeDeliveryThreshold,
		DeliveryFee:           cfg.Order.DeliveryFee,
		TaxRate:               cfg.Order.TaxRate,
	}
	userService := service.NewUserService(userRepo, refreshTokenRepo, cfg.JWT, logger.Named("users"))
	catalogService := service.NewCatalogService(productRepo, categoryRepo, logger.Named("catalog"))
	cartService := service.NewCartService(cartRepo, productRepo, logger.Named("cart"))
	orderService := service.NewOrderService(orderRepo, cartRepo, userRepo, publisher, pricing, logger.Named("orders"))
	freshnessService := service.NewFreshnessService(freshnessRepo, productRepo, nil, logger.Named("freshness"))
	dashboardService := service.NewDashboardService(dashboardRepo, orderRepo, productRepo, logger.Named("dashboard"))

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)

	transport.NewWSHandler(s.hub, cfg.JWT.Secret, logger).RegisterRoutes(router)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Use(custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         rateLimitPrefix,
		}, logger))

		transport.NewUserHandler(userService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewProductHandler(catalogService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewCartHandler(cartService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewOrderHandler(orderService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewFreshnessHandler(freshnessService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewMerchantHandler(dashboardService, catalogService, orderService, userService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewDashboardHandler(dashboardService, logger).RegisterRoutes(r, authMiddleware)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		custommiddleware.RespondWithError(w, http.StatusNotFound, "Route not found")
	})

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	dbHealth := s.db.Health()
	body := map[string]interface{}{
		"status":   "ok",
		"database": dbHealth,
	}
	if dbHealth["status"] != "up" {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}

	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			body["redis"] = "down"
		} else {
			body["redis"] = "up"
		}
	}

	custommiddleware.RespondWithJSON(w, status, body)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.stopRelay != nil {
		s.stopRelay()
		<-s.relayDone
	}
	s.hub.Close()

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	_ = s.logger.Sync()
	return nil
}
