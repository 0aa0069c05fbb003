package mailchimp

import (
	"errors"
	"testing"
	"time"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   CallResult
	}{
		{200, ResultOK},
		{204, ResultOK},
		{400, ResultStop},
		{401, ResultStop},
		{404, ResultStop},
		{429, ResultBackoff},
		{500, ResultBackoff},
		{503, ResultBackoff},
	}
	for _, tt := range tests {
		if got := ClassifyHTTPStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %d, want %d", tt.status, got, tt.want)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	base := 500 * time.Millisecond
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{10, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(base, tt.attempt); got != tt.want {
			t.Errorf("CalculateBackoff(%v, %d) = %v, want %v", base, tt.attempt, got, tt.want)
		}
	}
}

func TestCalculateBackoff_DefaultBase(t *testing.T) {
	if got := CalculateBackoff(0, 0); got != defaultRetryBase {
		t.Errorf("CalculateBackoff(0, 0) = %v, want %v", got, defaultRetryBase)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &APIError{StatusCode: 429}, true},
		{"503", &APIError{StatusCode: 503}, true},
		{"401", &APIError{StatusCode: 401}, false},
		{"その他のエラー", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient = %v, want %v", got, tt.want)
			}
		})
	}
}
