package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/newsdispatch/internal/middleware"
	"github.com/hitoshi/newsdispatch/internal/model"
)

// SubscriberSyncer は購読者をメールリストへ同期する。
type SubscriberSyncer interface {
	Sync(ctx context.Context, sub model.Subscriber) error
}

// SubscriberHandler は購読者Webhookのハンドラー。
type SubscriberHandler struct {
	syncer SubscriberSyncer
	logger *slog.Logger
}

// NewSubscriberHandler はSubscriberHandlerを生成する。
func NewSubscriberHandler(syncer SubscriberSyncer, logger *slog.Logger) *SubscriberHandler {
	return &SubscriberHandler{syncer: syncer, logger: logger}
}

// HandleSubscriberEvent は購読者の作成・更新を同期的にリストへ反映する。
// POST /webhooks/subscribers
func (h *SubscriberHandler) HandleSubscriberEvent(w http.ResponseWriter, r *http.Request) {
	var req subscriberEventRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError(err.Error()))
		return
	}

	if err := h.syncer.Sync(r.Context(), req.Entry.toModel()); err != nil {
		var apiErr *model.APIError
		switch {
		case errors.As(err, &apiErr):
			middleware.WriteAPIError(w, apiErr)
		case errors.Is(err, model.ErrNotConfigured):
			middleware.WriteAPIError(w, model.NewNotConfiguredError())
		default:
			h.logger.Error("購読者の同期に失敗しました", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, http.StatusBadGateway, &model.APIError{
				Code:     model.ErrCodeDispatchFailed,
				Message:  "購読者の同期に失敗しました。",
				Category: "dispatch",
				Action:   "しばらく待ってから再度お試しください。",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}
