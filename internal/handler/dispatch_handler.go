package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdispatch/internal/middleware"
	"github.com/hitoshi/newsdispatch/internal/model"
)

// defaultHistoryLimit と maxHistoryLimit は配信履歴の取得件数。
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ManualDispatcher は記事を指定して同期的にディスパッチする。
type ManualDispatcher interface {
	DispatchEntry(ctx context.Context, documentID string) (model.DispatchResult, error)
}

// DispatchHistory は記事ごとのディスパッチ台帳を参照する。
type DispatchHistory interface {
	ListByDocumentID(ctx context.Context, documentID string, limit int) ([]*model.DispatchLog, error)
}

// DispatchHandler は手動配信と配信履歴のHTTPハンドラー。
type DispatchHandler struct {
	dispatcher ManualDispatcher
	history    DispatchHistory
	logger     *slog.Logger
}

// NewDispatchHandler はDispatchHandlerを生成する。
func NewDispatchHandler(dispatcher ManualDispatcher, history DispatchHistory, logger *slog.Logger) *DispatchHandler {
	return &DispatchHandler{
		dispatcher: dispatcher,
		history:    history,
		logger:     logger,
	}
}

// dispatchResponse は手動配信のAPIレスポンス。
type dispatchResponse struct {
	DocumentID     string `json:"documentId"`
	Outcome        string `json:"outcome"`
	CampaignID     string `json:"campaignId,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// dispatchLogResponse は配信履歴1件のAPIレスポンス。
type dispatchLogResponse struct {
	ID             string    `json:"id"`
	EntryID        int64     `json:"entryId"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	CampaignID     string    `json:"campaignId,omitempty"`
	Outcome        string    `json:"outcome"`
	Phase          string    `json:"phase,omitempty"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// DispatchEntry は記事のキャンペーンを同期的に作成・更新する。
// POST /api/entries/{documentId}/dispatch
func (h *DispatchHandler) DispatchEntry(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentId")
	if documentID == "" {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("documentId is required"))
		return
	}

	result, err := h.dispatcher.DispatchEntry(r.Context(), documentID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			middleware.WriteAPIError(w, apiErr)
			return
		}
		h.logger.Error("手動ディスパッチに失敗しました",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, dispatchResponse{
		DocumentID:     documentID,
		Outcome:        string(result.Outcome),
		CampaignID:     result.CampaignID,
		IdempotencyKey: result.IdempotencyKey,
	})
}

// ListDispatches は記事の配信履歴を新しい順に返す。
// GET /api/dispatches/{documentId}?limit=N
func (h *DispatchHandler) ListDispatches(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentId")

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			middleware.WriteAPIError(w, model.NewInvalidRequestError("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	logs, err := h.history.ListByDocumentID(r.Context(), documentID, limit)
	if err != nil {
		h.logger.Error("配信履歴の取得に失敗しました",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	resp := make([]dispatchLogResponse, 0, len(logs))
	for _, l := range logs {
		resp = append(resp, dispatchLogResponse{
			ID:             l.ID,
			EntryID:        l.EntryID,
			IdempotencyKey: l.IdempotencyKey,
			CampaignID:     l.CampaignID,
			Outcome:        string(l.Outcome),
			Phase:          string(l.Phase),
			ErrorMessage:   l.ErrorMessage,
			CreatedAt:      l.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
