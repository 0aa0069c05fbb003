package mailchimp

import (
	"errors"
	"fmt"
	"net"
)

// APIError はMailchimp APIが返したエラーレスポンスを表す。
// ボディはRFC 7807形式のproblem detail。
type APIError struct {
	StatusCode int    `json:"status"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	Operation  string `json:"-"`
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("mailchimp %s: %d %s: %s", e.Operation, e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("mailchimp %s: %d %s", e.Operation, e.StatusCode, e.Title)
}

// IsTransient は再試行で回復しうるエラーかどうかを返す。
// 429と5xx、およびネットワークエラーが対象。認証・検証エラーは再試行しない。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return ClassifyHTTPStatus(apiErr.StatusCode) == ResultBackoff
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// StatusCode はエラーに含まれるHTTPステータスを返す。APIError以外は0。
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
