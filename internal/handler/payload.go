package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/newsdispatch/internal/model"
)

// entryEventRequest はCMSのライフサイクルフックから届くWebhookのボディ。
//
//	{"event":"entry.update","model":"news-section","entry":{...},"payloadKeys":["publishedAt"]}
//
// payloadKeysがない場合はdata（ミューテーションリクエストのボディ）のキーを使う。
type entryEventRequest struct {
	Event       string                     `json:"event"`
	Model       string                     `json:"model"`
	Entry       *entryPayload              `json:"entry"`
	PayloadKeys []string                   `json:"payloadKeys"`
	Data        map[string]json.RawMessage `json:"data"`
}

// entryPayload は記事のスナップショット。
type entryPayload struct {
	ID               int64                `json:"id"`
	DocumentID       string               `json:"documentId"`
	Title            string               `json:"title"`
	ShortDescription string               `json:"short_description"`
	Description      string               `json:"description"`
	Author           string               `json:"author"`
	Slug             string               `json:"slug"`
	Image            model.MediaReference `json:"image"`
	PublishedAt      *time.Time           `json:"publishedAt"`
	UpdatedAt        *time.Time           `json:"updatedAt"`
	CreatedAt        *time.Time           `json:"createdAt"`
	MailSent         bool                 `json:"mailSent"`
	NewsCategories   categoryRefs         `json:"news_categories"`
}

// categoryRefs はIDの配列と{id: ...}オブジェクトの配列の両方を受け付ける。
type categoryRefs []int64

func (c *categoryRefs) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = nil
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("news_categories: %w", err)
	}

	refs := make([]int64, 0, len(raw))
	for _, item := range raw {
		var id int64
		if err := json.Unmarshal(item, &id); err == nil {
			refs = append(refs, id)
			continue
		}
		var obj struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("news_categories: %w", err)
		}
		if obj.ID != 0 {
			refs = append(refs, obj.ID)
		}
	}
	*c = refs
	return nil
}

func (p *entryPayload) toModel() *model.ContentEntry {
	return &model.ContentEntry{
		ID:           p.ID,
		DocumentID:   p.DocumentID,
		Title:        p.Title,
		Excerpt:      p.ShortDescription,
		Body:         p.Description,
		Author:       p.Author,
		Slug:         p.Slug,
		Cover:        p.Image,
		PublishedAt:  p.PublishedAt,
		UpdatedAt:    p.UpdatedAt,
		CreatedAt:    p.CreatedAt,
		CategoryRefs: []int64(p.NewsCategories),
		Notified:     p.MailSent,
	}
}

// publishEventName は公開操作のWebhookイベント名。
// このイベントはpayloadKeysもdataも持たない。
const publishEventName = "entry.publish"

// payloadKeys はリクエストに明示的に含まれていたフィールド名の集合を返す。
// 公開イベントは公開日時を設定する操作なのでpublishedAtを含める。
func (r *entryEventRequest) payloadKeys() map[string]struct{} {
	keys := r.PayloadKeys
	if keys == nil {
		keys = make([]string, 0, len(r.Data)+1)
		for k := range r.Data {
			keys = append(keys, k)
		}
	}
	if r.Event == publishEventName {
		keys = append(keys[:len(keys):len(keys)], model.PublishedAtField)
	}
	return model.NewPayloadKeys(keys...)
}

// subscriberEventRequest は購読者の作成・更新Webhookのボディ。
type subscriberEventRequest struct {
	Event string            `json:"event"`
	Entry subscriberPayload `json:"entry"`
}

type subscriberPayload struct {
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	CompanyName string `json:"companyName"`
	Country     string `json:"country"`
}

func (p subscriberPayload) toModel() model.Subscriber {
	return model.Subscriber{
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Company:   p.CompanyName,
		Country:   p.Country,
	}
}
