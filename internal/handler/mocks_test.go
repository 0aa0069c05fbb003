package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdispatch/internal/model"
)

// --- モック定義 ---

// mockSubmitter はEventSubmitterのモック実装。
type mockSubmitter struct {
	mu     sync.Mutex
	events []model.ChangeEvent
}

func (m *mockSubmitter) Submit(ctx context.Context, event model.ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// mockManualDispatcher はManualDispatcherのモック実装。
type mockManualDispatcher struct {
	dispatchEntryFn func(ctx context.Context, documentID string) (model.DispatchResult, error)
}

func (m *mockManualDispatcher) DispatchEntry(ctx context.Context, documentID string) (model.DispatchResult, error) {
	if m.dispatchEntryFn != nil {
		return m.dispatchEntryFn(ctx, documentID)
	}
	return model.DispatchResult{}, nil
}

// mockDispatchHistory はDispatchHistoryのモック実装。
type mockDispatchHistory struct {
	listByDocumentIDFn func(ctx context.Context, documentID string, limit int) ([]*model.DispatchLog, error)
}

func (m *mockDispatchHistory) ListByDocumentID(ctx context.Context, documentID string, limit int) ([]*model.DispatchLog, error) {
	if m.listByDocumentIDFn != nil {
		return m.listByDocumentIDFn(ctx, documentID, limit)
	}
	return nil, nil
}

// mockSubscriberSyncer はSubscriberSyncerのモック実装。
type mockSubscriberSyncer struct {
	syncFn func(ctx context.Context, sub model.Subscriber) error
}

func (m *mockSubscriberSyncer) Sync(ctx context.Context, sub model.Subscriber) error {
	if m.syncFn != nil {
		return m.syncFn(ctx, sub)
	}
	return nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// withChiURLParam はchiのURLパラメータをリクエストコンテキストに設定するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("エラーレスポンスのデコードに失敗しました: %v", err)
	}
	return result
}
