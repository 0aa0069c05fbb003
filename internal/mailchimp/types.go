// Package mailchimp はMailchimp Marketing API v3のクライアントを提供する。
// キャンペーンの一覧・作成・本文設定・送信・状態取得と、リストメンバーの登録を扱う。
package mailchimp

// CampaignStatus はMailchimp上のキャンペーン状態。
type CampaignStatus string

const (
	// StatusSave は下書き状態。
	StatusSave     CampaignStatus = "save"
	StatusPaused   CampaignStatus = "paused"
	StatusSchedule CampaignStatus = "schedule"
	StatusSending  CampaignStatus = "sending"
	// StatusSent は送信済み状態。
	StatusSent CampaignStatus = "sent"
)

// Campaign はキャンペーン一覧APIが返すキャンペーンの要約。
type Campaign struct {
	ID         string         `json:"id"`
	Status     CampaignStatus `json:"status"`
	CreateTime string         `json:"create_time,omitempty"`
	Recipients Recipients     `json:"recipients"`
	Settings   Settings       `json:"settings"`
}

// Recipients はキャンペーンの配信先リスト。
type Recipients struct {
	ListID string `json:"list_id"`
}

// Settings はキャンペーンの件名や差出人などの設定。
type Settings struct {
	Title       string `json:"title"`
	SubjectLine string `json:"subject_line,omitempty"`
	PreviewText string `json:"preview_text,omitempty"`
	FromName    string `json:"from_name,omitempty"`
	ReplyTo     string `json:"reply_to,omitempty"`
	ToName      string `json:"to_name,omitempty"`
	AutoFooter  bool   `json:"auto_footer"`
}

// Tracking はキャンペーンの開封・クリック計測設定。
type Tracking struct {
	Opens      bool `json:"opens"`
	HTMLClicks bool `json:"html_clicks"`
	TextClicks bool `json:"text_clicks"`
}

// CampaignSpec はキャンペーン作成リクエストの内容。
type CampaignSpec struct {
	Type       string     `json:"type"`
	Recipients Recipients `json:"recipients"`
	Settings   Settings   `json:"settings"`
	Tracking   Tracking   `json:"tracking"`
}

// ListFilter はキャンペーン一覧の絞り込み条件。
// ゼロ値の項目はクエリに含めない。
type ListFilter struct {
	ListID string
	Status CampaignStatus
	Count  int
}

// Member はリストメンバーの登録内容。
type Member struct {
	EmailAddress string            `json:"email_address"`
	StatusIfNew  string            `json:"status_if_new"`
	MergeFields  map[string]string `json:"merge_fields,omitempty"`
}

type listCampaignsResponse struct {
	Campaigns  []Campaign `json:"campaigns"`
	TotalItems int        `json:"total_items"`
}

type createCampaignResponse struct {
	ID string `json:"id"`
}

type campaignStatusResponse struct {
	ID     string         `json:"id"`
	Status CampaignStatus `json:"status"`
}

type setContentRequest struct {
	HTML string `json:"html"`
}

type pingResponse struct {
	HealthStatus string `json:"health_status"`
}

type tagsRequest struct {
	Tags []tag `json:"tags"`
}

type tag struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}
