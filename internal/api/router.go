package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/platbet/wallet-core/internal/api/handler"
	"github.com/platbet/wallet-core/internal/api/middleware"
	"github.com/platbet/wallet-core/internal/api/spec"
	"github.com/platbet/wallet-core/internal/config"
	"github.com/platbet/wallet-core/internal/gateway"
	"github.com/platbet/wallet-core/internal/idempotency"
	"github.com/platbet/wallet-core/internal/models"
	"github.com/platbet/wallet-core/internal/repository"
	"github.com/platbet/wallet-core/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	store     *repository.Store
	idemStore *idempotency.Store
	redis     *redis.Client
	gateway   gateway.Gateway
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, store *repository.Store, idemStore *idempotency.Store, redisClient *redis.Client, gw gateway.Gateway) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		store:     store,
		idemStore: idemStore,
		redis:     redisClient,
		gateway:   gw,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	// Services
	ledgerSvc := service.NewLedgerService(api.store)
	settingsSvc := service.NewSettingsService(api.store, models.Settings{
		AutoApprovalLimit:  api.cfg.DefaultAutoApproval,
		RequireVerifiedKYC: api.cfg.RequireVerifiedKYC,
	})
	depositSvc := service.NewDepositService(api.store, api.gateway, ledgerSvc, service.DepositBounds{
		Min: api.cfg.MinDepositCentavos,
		Max: api.cfg.MaxDepositCentavos,
	})
	withdrawalSvc := service.NewWithdrawalService(api.store, api.gateway, ledgerSvc, settingsSvc, service.WithdrawalBounds{
		Min: api.cfg.MinWithdrawCentavos,
		Max: api.cfg.MaxWithdrawCentavos,
	})
	reconSvc := service.NewReconciliationService(api.store, ledgerSvc, api.redis)

	// Handlers
	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	depositHandler := handler.NewDepositHandler(depositSvc)
	withdrawalHandler := handler.NewWithdrawalHandler(withdrawalSvc)
	webhookHandler := handler.NewWebhookHandler(reconSvc, api.gateway)
	configHandler := handler.NewConfigHandler(settingsSvc)

	idem := middleware.IdempotencyMiddleware(api.idemStore, api.logger)

	// Operational endpoints
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Gateway callbacks authenticate with an HMAC signature, not a JWT.
	r.With(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS)).
		Post("/v1/webhooks/pix", webhookHandler.HandlePixWebhook)

	// Player routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.With(idem).Post("/v1/deposits", depositHandler.CreateDeposit)
		r.Get("/v1/deposits/{id}", depositHandler.GetDeposit)
		r.With(idem).Post("/v1/withdrawals", withdrawalHandler.CreateWithdrawal)
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.RequireRole(middleware.RoleAdmin))

		r.Get("/v1/withdrawals/queue", withdrawalHandler.ListReviewQueue)
		r.With(idem).Post("/v1/withdrawals/{id}/approve", withdrawalHandler.ApproveWithdrawal)
		r.With(idem).Post("/v1/withdrawals/{id}/reject", withdrawalHandler.RejectWithdrawal)
		r.Get("/v1/config", configHandler.GetSettings)
		r.Patch("/v1/config/auto-approval-limit", configHandler.UpdateAutoApprovalLimit)
	})

	return r
}
