package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/newsdispatch/internal/metrics"
	"github.com/hitoshi/newsdispatch/internal/middleware"
	"github.com/hitoshi/newsdispatch/internal/model"
)

// isNewsModel はディスパッチ対象のCMSコンテンツタイプかどうかを返す。
// 単数形のモデル名とUID形式の両方を受け付け、省略時は対象とみなす。
func isNewsModel(name string) bool {
	switch name {
	case "", "news-section", "api::news-section.news-section":
		return true
	default:
		return false
	}
}

// maxWebhookBody はWebhookボディの上限サイズ。
const maxWebhookBody = 1 << 20

// EventSubmitter は変更イベントを非同期処理に投入する。
type EventSubmitter interface {
	Submit(ctx context.Context, event model.ChangeEvent)
}

// WebhookHandler はCMSのライフサイクルフックを受け付けるHTTPハンドラー。
type WebhookHandler struct {
	submitter EventSubmitter
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(submitter EventSubmitter, logger *slog.Logger, m metrics.MetricsCollector) *WebhookHandler {
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &WebhookHandler{
		submitter: submitter,
		logger:    logger,
		metrics:   m,
	}
}

type acceptedResponse struct {
	Status     string `json:"status"`
	DocumentID string `json:"documentId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// HandleEntryEvent は記事の作成・更新イベントを受け付ける。
// 処理は非同期で行い、CMSの保存処理をブロックしない。
// POST /webhooks/entries
func (h *WebhookHandler) HandleEntryEvent(w http.ResponseWriter, r *http.Request) {
	var req entryEventRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError(err.Error()))
		return
	}

	action, ok := model.ParseAction(req.Event)
	if !ok {
		middleware.WriteAPIError(w, model.NewUnknownActionError(req.Event))
		return
	}

	if !isNewsModel(req.Model) {
		h.logger.Debug("対象外のモデルのイベントを無視します",
			slog.String("model", req.Model),
			slog.String("event", req.Event),
		)
		writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "ignored", Reason: "model"})
		return
	}

	if req.Entry == nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("entry is required"))
		return
	}

	h.metrics.RecordWebhookEvent(string(action))

	entry := req.Entry.toModel()
	h.submitter.Submit(r.Context(), model.ChangeEvent{
		Action:      action,
		Entry:       entry,
		PayloadKeys: req.payloadKeys(),
	})

	h.logger.Info("記事イベントを受け付けました",
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("action", string(action)),
		slog.String("document_id", entry.DocumentID),
	)
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", DocumentID: entry.DocumentID})
}

// decodeJSON はボディを上限付きでデコードする。
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
