package model

// Action はコンテンツ変更イベントの種別を表す。
type Action string

const (
	// ActionCreated は記事作成後のイベント。
	ActionCreated Action = "created"
	// ActionUpdated は記事更新後のイベント。
	ActionUpdated Action = "updated"
)

// PublishedAtField は公開日時フィールドのリクエスト上の名前。
const PublishedAtField = "publishedAt"

// ChangeEvent はコンテンツストアの変更フックから届く一時的なイベント。
// 永続化しない。
type ChangeEvent struct {
	Action Action
	Entry  *ContentEntry
	// PayloadKeys はミューテーションリクエストに明示的に含まれていたフィールド名の集合。
	PayloadKeys map[string]struct{}
}

// NewPayloadKeys はフィールド名のスライスから集合を生成する。
func NewPayloadKeys(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// HasPayloadKey はリクエストに指定フィールドが含まれていたかを返す。
func (e ChangeEvent) HasPayloadKey(key string) bool {
	_, ok := e.PayloadKeys[key]
	return ok
}

// ParseAction はCMSのイベント名をActionに変換する。
// 対応外の名前の場合はfalseを返す。
func ParseAction(s string) (Action, bool) {
	switch s {
	case "created", "entry.create", "afterCreate":
		return ActionCreated, true
	case "updated", "entry.update", "afterUpdate", "entry.publish":
		return ActionUpdated, true
	default:
		return "", false
	}
}
