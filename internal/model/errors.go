// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrNotConfigured はキャンペーン送信に必要な設定が不足している場合のエラー。
// 起動時と初回利用時に検出され、スキップとログ出力に縮退する。
var ErrNotConfigured = errors.New("campaign settings are not configured")

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, dispatch, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeUnknownAction     = "UNKNOWN_ACTION"
	ErrCodeEntryNotFound     = "ENTRY_NOT_FOUND"
	ErrCodeEntryNotPublished = "ENTRY_NOT_PUBLISHED"
	ErrCodeEntryIneligible   = "ENTRY_INELIGIBLE"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeDispatchFailed    = "DISPATCH_FAILED"
	ErrCodeInvalidEmail      = "INVALID_EMAIL"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
)

// NewInvalidRequestError はリクエストボディ解析失敗エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストボディの解析に失敗しました: %s", reason),
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUnknownActionError は未対応のイベント種別エラーを生成する。
func NewUnknownActionError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownAction,
		Message:  fmt.Sprintf("未対応のイベント種別です: %s", action),
		Category: "validation",
		Action:   "eventには created または updated を指定してください。",
	}
}

// NewEntryNotFoundError は記事未検出エラーを生成する。
func NewEntryNotFoundError(documentID string) *APIError {
	return &APIError{
		Code:     ErrCodeEntryNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", documentID),
		Category: "dispatch",
		Action:   "documentIdを確認してください。",
	}
}

// NewEntryNotPublishedError は未公開記事の配信要求エラーを生成する。
func NewEntryNotPublishedError() *APIError {
	return &APIError{
		Code:     ErrCodeEntryNotPublished,
		Message:  "記事が公開されていないため配信できません。",
		Category: "dispatch",
		Action:   "記事を公開してから再度お試しください。",
	}
}

// NewEntryIneligibleError は配信対象外カテゴリのエラーを生成する。
func NewEntryIneligibleError() *APIError {
	return &APIError{
		Code:     ErrCodeEntryIneligible,
		Message:  "記事のカテゴリが配信対象ではありません。",
		Category: "dispatch",
		Action:   "配信対象カテゴリを記事に設定してください。",
	}
}

// NewNotConfiguredError はキャンペーン設定不足エラーを生成する。
func NewNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeNotConfigured,
		Message:  "キャンペーン送信の設定が不足しています。",
		Category: "system",
		Action:   "MAILCHIMP_API_KEY、MAILCHIMP_SERVER_PREFIX、MAILCHIMP_AUDIENCE_IDを設定してください。",
	}
}

// NewDispatchFailedError はキャンペーン操作失敗エラーを生成する。
func NewDispatchFailedError(phase Phase) *APIError {
	return &APIError{
		Code:     ErrCodeDispatchFailed,
		Message:  fmt.Sprintf("キャンペーン処理に失敗しました（段階: %s）", phase),
		Category: "dispatch",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidEmailError は無効なメールアドレスエラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "無効なメールアドレスです。",
		Category: "validation",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewUnauthorizedError は認証失敗エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "Webhookトークンを確認してください。",
	}
}
