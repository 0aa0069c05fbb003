// Package dispatch はコンテンツ変更イベントからMailchimpキャンペーンの作成・更新・スキップを決定する。
//
// 処理の流れ:
//
//	ChangeEvent → IsPublishTransition → EligibilityFilter → Reconciler → Mailchimp
//
// 失敗はイベントごとに閉じており、呼び出し元（コンテンツストアの変更）には伝播しない。
package dispatch

import "github.com/hitoshi/newsdispatch/internal/model"

// IsPublishTransition はイベントが新たな公開（または再公開）を表すかを判定する。
//
// 公開済みであることに加え、リクエストにpublishedAtが明示的に含まれていた場合のみtrueを返す。
// 作成イベントも同じ規則で判定し、公開状態で作成されてもpublishedAtが
// ペイロードにない場合は公開遷移とみなさない。副作用はない。
func IsPublishTransition(event model.ChangeEvent) bool {
	if !event.Entry.IsPublished() {
		return false
	}
	switch event.Action {
	case model.ActionCreated, model.ActionUpdated:
	default:
		return false
	}
	return event.HasPayloadKey(model.PublishedAtField)
}
