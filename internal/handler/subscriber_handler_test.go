package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/newsdispatch/internal/model"
)

func postSubscriber(h *SubscriberHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/subscribers", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.HandleSubscriberEvent(w, req)
	return w
}

func TestSubscriberHandler_HandleSubscriberEvent_Success(t *testing.T) {
	var got model.Subscriber
	s := &mockSubscriberSyncer{
		syncFn: func(ctx context.Context, sub model.Subscriber) error {
			got = sub
			return nil
		},
	}
	h := NewSubscriberHandler(s, discardLogger())

	w := postSubscriber(h, `{"event":"entry.create","entry":{"email":"jane@example.com","firstName":"Jane","lastName":"Doe","companyName":"Acme","country":"AU"}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータス = %d, want %d", w.Code, http.StatusOK)
	}
	want := model.Subscriber{Email: "jane@example.com", FirstName: "Jane", LastName: "Doe", Company: "Acme", Country: "AU"}
	if got != want {
		t.Errorf("購読者 = %+v, want %+v", got, want)
	}
}

func TestSubscriberHandler_HandleSubscriberEvent_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"無効なメールアドレス", model.NewInvalidEmailError(), http.StatusBadRequest, model.ErrCodeInvalidEmail},
		{"設定不足", model.ErrNotConfigured, http.StatusServiceUnavailable, model.ErrCodeNotConfigured},
		{"ラップされた設定不足", fmt.Errorf("sync: %w", model.ErrNotConfigured), http.StatusServiceUnavailable, model.ErrCodeNotConfigured},
		{"リモート失敗", errors.New("upstream 500"), http.StatusBadGateway, model.ErrCodeDispatchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &mockSubscriberSyncer{
				syncFn: func(ctx context.Context, sub model.Subscriber) error { return tt.err },
			}
			h := NewSubscriberHandler(s, discardLogger())

			w := postSubscriber(h, `{"entry":{"email":"x"}}`)

			if w.Code != tt.wantStatus {
				t.Errorf("ステータス = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := parseAPIErrorResponse(t, w)["code"]; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestSubscriberHandler_HandleSubscriberEvent_InvalidJSON(t *testing.T) {
	called := false
	s := &mockSubscriberSyncer{
		syncFn: func(ctx context.Context, sub model.Subscriber) error {
			called = true
			return nil
		},
	}
	h := NewSubscriberHandler(s, discardLogger())

	w := postSubscriber(h, `not-json`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("ステータス = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("不正なボディで同期が呼ばれました")
	}
}
