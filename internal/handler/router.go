// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/newsdispatch/internal/metrics"
	"github.com/hitoshi/newsdispatch/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger  *slog.Logger
	Metrics metrics.MetricsCollector
	// Gatherer がnilの場合は/metricsを公開しない
	Gatherer prometheus.Gatherer

	// ミドルウェア依存
	WebhookToken string
	RateLimiter  *middleware.RateLimiter

	// ディスパッチ
	Submitter  EventSubmitter
	Dispatcher ManualDispatcher
	History    DispatchHistory

	// 購読者
	Subscribers SubscriberSyncer

	Health HealthChecker
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Logging → Recovery → SecurityHeaders → (TokenAuth → RateLimit)
//
// /health と /metrics は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	healthHandler := NewHealthHandler(deps.Health, deps.Logger)
	webhookHandler := NewWebhookHandler(deps.Submitter, deps.Logger, deps.Metrics)
	dispatchHandler := NewDispatchHandler(deps.Dispatcher, deps.History, deps.Logger)
	subscriberHandler := NewSubscriberHandler(deps.Subscribers, deps.Logger)

	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- トークン認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTokenAuthMiddleware(deps.WebhookToken, deps.Logger))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/entries", webhookHandler.HandleEntryEvent)
			r.Post("/subscribers", subscriberHandler.HandleSubscriberEvent)
		})

		r.Route("/api", func(r chi.Router) {
			r.Post("/entries/{documentId}/dispatch", dispatchHandler.DispatchEntry)
			r.Get("/dispatches/{documentId}", dispatchHandler.ListDispatches)
		})
	})

	return r
}
