package mailchimp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockClient はMOCK_MODE用のインメモリ実装。
// リモート呼び出しを行わずログに記録し、作成したキャンペーンを保持して照合に使えるようにする。
type MockClient struct {
	logger *slog.Logger

	mu        sync.Mutex
	campaigns map[string]*mockCampaign
	members   map[string]Member
}

type mockCampaign struct {
	campaign Campaign
	html     string
	created  time.Time
}

// NewMockClient はMockClientを生成する。
func NewMockClient(logger *slog.Logger) *MockClient {
	return &MockClient{
		logger:    logger,
		campaigns: make(map[string]*mockCampaign),
		members:   make(map[string]Member),
	}
}

// Ping は常に成功する。
func (m *MockClient) Ping(ctx context.Context) error {
	m.logger.Info("[MOCK] Mailchimp ping")
	return nil
}

// ListCampaigns は保持中のキャンペーンを作成日時の降順で返す。
func (m *MockClient) ListCampaigns(ctx context.Context, filter ListFilter) ([]Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*mockCampaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		if filter.Status != "" && c.campaign.Status != filter.Status {
			continue
		}
		if filter.ListID != "" && c.campaign.Recipients.ListID != filter.ListID {
			continue
		}
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].created.After(all[j].created) })

	out := make([]Campaign, 0, len(all))
	for _, c := range all {
		if filter.Count > 0 && len(out) >= filter.Count {
			break
		}
		out = append(out, c.campaign)
	}
	m.logger.Info("[MOCK] キャンペーン一覧を取得しました", slog.Int("count", len(out)))
	return out, nil
}

// CreateCampaign は下書きキャンペーンをメモリ上に作成する。
func (m *MockClient) CreateCampaign(ctx context.Context, spec CampaignSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := "mock-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	m.campaigns[id] = &mockCampaign{
		campaign: Campaign{
			ID:         id,
			Status:     StatusSave,
			CreateTime: time.Now().UTC().Format(time.RFC3339),
			Recipients: spec.Recipients,
			Settings:   spec.Settings,
		},
		created: time.Now(),
	}
	m.logger.Info("[MOCK] キャンペーンを作成しました",
		slog.String("campaign_id", id),
		slog.String("title", spec.Settings.Title),
		slog.String("subject", spec.Settings.SubjectLine),
	)
	return id, nil
}

// SetContent はキャンペーン本文を保持する。
func (m *MockClient) SetContent(ctx context.Context, campaignID, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[campaignID]
	if !ok {
		return &APIError{StatusCode: 404, Title: "Resource Not Found", Operation: "set_content"}
	}
	c.html = html
	m.logger.Info("[MOCK] キャンペーン本文を設定しました",
		slog.String("campaign_id", campaignID),
		slog.Int("html_bytes", len(html)),
	)
	return nil
}

// Send はキャンペーンを送信済みにする。
func (m *MockClient) Send(ctx context.Context, campaignID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[campaignID]
	if !ok {
		return &APIError{StatusCode: 404, Title: "Resource Not Found", Operation: "send"}
	}
	c.campaign.Status = StatusSent
	m.logger.Info("[MOCK] キャンペーンを送信しました", slog.String("campaign_id", campaignID))
	return nil
}

// GetStatus はキャンペーンの状態を返す。
func (m *MockClient) GetStatus(ctx context.Context, campaignID string) (CampaignStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[campaignID]
	if !ok {
		return "", &APIError{StatusCode: 404, Title: "Resource Not Found", Operation: "get_status"}
	}
	return c.campaign.Status, nil
}

// UpsertMember はメンバーをメモリ上に登録する。
func (m *MockClient) UpsertMember(ctx context.Context, listID string, member Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.members[listID+"/"+SubscriberHash(member.EmailAddress)] = member
	m.logger.Info("[MOCK] リストメンバーを登録しました",
		slog.String("list_id", listID),
		slog.String("status_if_new", member.StatusIfNew),
	)
	return nil
}

// AddTags はタグ付与をログに記録する。
func (m *MockClient) AddTags(ctx context.Context, listID, email string, tags []string) error {
	m.logger.Info("[MOCK] メンバーにタグを付与しました",
		slog.String("list_id", listID),
		slog.String("tags", strings.Join(tags, ",")),
	)
	return nil
}

// Content はテストと確認用にキャンペーン本文を返す。
func (m *MockClient) Content(campaignID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[campaignID]
	if !ok {
		return "", fmt.Errorf("campaign %s not found", campaignID)
	}
	return c.html, nil
}
