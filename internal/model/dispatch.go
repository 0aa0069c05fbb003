package model

import "time"

// Outcome は1件のイベント処理の結果を表す。
type Outcome string

const (
	// OutcomeNotTransition は公開遷移ではないため処理しなかったことを示す。
	OutcomeNotTransition Outcome = "not_transition"
	// OutcomeIneligible はカテゴリが対象外のため処理しなかったことを示す。
	OutcomeIneligible Outcome = "ineligible"
	// OutcomeNotConfigured はキャンペーン設定不足のためスキップしたことを示す。
	OutcomeNotConfigured Outcome = "not_configured"
	// OutcomeCreated は新規キャンペーン下書きを作成したことを示す。
	OutcomeCreated Outcome = "created"
	// OutcomeUpdated は既存キャンペーンの本文を更新したことを示す。
	OutcomeUpdated Outcome = "updated"
	// OutcomeSent はキャンペーンを送信したことを示す。
	OutcomeSent Outcome = "sent"
	// OutcomeAlreadyNotified は通知済みでキャンペーン下書きが見つからないためスキップしたことを示す。
	OutcomeAlreadyNotified Outcome = "already_notified"
	// OutcomeFailed はリモート呼び出しの失敗で中断したことを示す。
	OutcomeFailed Outcome = "failed"
)

// Phase はリコンサイル処理の段階を表す。ログとメトリクスのラベルに使う。
type Phase string

const (
	PhaseLookup  Phase = "lookup"
	PhaseCreate  Phase = "create"
	PhaseContent Phase = "content"
	PhaseStatus  Phase = "status"
	PhaseSend    Phase = "send"
	PhasePersist Phase = "persist"
	PhaseRender  Phase = "render"
)

// DispatchResult はリコンサイル結果。
type DispatchResult struct {
	Outcome        Outcome
	CampaignID     string
	IdempotencyKey string
	Phase          Phase // 失敗時の段階
	Err            error
}

// DispatchLog はディスパッチ台帳の1行を表す。
type DispatchLog struct {
	ID             string
	DocumentID     string
	EntryID        int64
	IdempotencyKey string
	CampaignID     string
	Outcome        Outcome
	Phase          Phase
	ErrorMessage   string
	CreatedAt      time.Time
}
