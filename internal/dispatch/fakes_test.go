package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/newsdispatch/internal/mailchimp"
	"github.com/hitoshi/newsdispatch/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func tp(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

// --- モック定義 ---

// fakeCampaignClient はCampaignClientのモック実装。
// 呼び出しを記録し、作成したキャンペーンを下書き一覧に反映する。
type fakeCampaignClient struct {
	mu sync.Mutex

	campaigns []mailchimp.Campaign
	statuses  map[string]mailchimp.CampaignStatus
	contents  map[string]string

	listErr    error
	createErr  error
	contentErr error
	sendErr    error
	statusErr  error

	listCalls    int
	createCalls  []mailchimp.CampaignSpec
	contentCalls []string
	sendCalls    []string
	statusCalls  []string

	// statusOverride はGetStatusが返す状態を一覧とは別に指定する。
	statusOverride map[string]mailchimp.CampaignStatus

	// createDelay は作成前の待機。並行実行の検証に使う。
	createDelay time.Duration
	nextID      int
}

func newFakeCampaignClient() *fakeCampaignClient {
	return &fakeCampaignClient{
		statuses: make(map[string]mailchimp.CampaignStatus),
		contents: make(map[string]string),
	}
}

func (f *fakeCampaignClient) ListCampaigns(ctx context.Context, filter mailchimp.ListFilter) ([]mailchimp.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []mailchimp.Campaign
	for _, c := range f.campaigns {
		if filter.Status != "" && f.statuses[c.ID] != filter.Status {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCampaignClient) CreateCampaign(ctx context.Context, spec mailchimp.CampaignSpec) (string, error) {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, spec)
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("camp-%d", f.nextID)
	f.campaigns = append(f.campaigns, mailchimp.Campaign{
		ID:         id,
		Status:     mailchimp.StatusSave,
		Recipients: spec.Recipients,
		Settings:   spec.Settings,
	})
	f.statuses[id] = mailchimp.StatusSave
	return id, nil
}

func (f *fakeCampaignClient) SetContent(ctx context.Context, campaignID, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contentCalls = append(f.contentCalls, campaignID)
	if f.contentErr != nil {
		return f.contentErr
	}
	f.contents[campaignID] = html
	return nil
}

func (f *fakeCampaignClient) Send(ctx context.Context, campaignID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls = append(f.sendCalls, campaignID)
	if f.sendErr != nil {
		return f.sendErr
	}
	f.statuses[campaignID] = mailchimp.StatusSent
	return nil
}

func (f *fakeCampaignClient) GetStatus(ctx context.Context, campaignID string) (mailchimp.CampaignStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, campaignID)
	if f.statusErr != nil {
		return "", f.statusErr
	}
	if st, ok := f.statusOverride[campaignID]; ok {
		return st, nil
	}
	return f.statuses[campaignID], nil
}

// addDraft は既存の下書きキャンペーンを登録する。
func (f *fakeCampaignClient) addDraft(id, listID, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaigns = append(f.campaigns, mailchimp.Campaign{
		ID:         id,
		Status:     mailchimp.StatusSave,
		Recipients: mailchimp.Recipients{ListID: listID},
		Settings:   mailchimp.Settings{Title: title},
	})
	f.statuses[id] = mailchimp.StatusSave
}

func (f *fakeCampaignClient) remoteCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls + len(f.createCalls) + len(f.contentCalls) + len(f.sendCalls) + len(f.statusCalls)
}

func (f *fakeCampaignClient) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createCalls)
}

// fakeRenderer はrender.Rendererのモック実装。
type fakeRenderer struct {
	err error
}

func (r *fakeRenderer) Render(entry *model.ContentEntry) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "<h2>" + entry.Title + "</h2>", nil
}

func (r *fakeRenderer) PreviewText(entry *model.ContentEntry) string {
	return entry.Excerpt
}

// fakeEntryStore はNotificationStoreとEntryLoaderのモック実装。
type fakeEntryStore struct {
	mu       sync.Mutex
	entries  map[string]*model.ContentEntry
	markErr  error
	findErr  error
	marked   []string
	findHits int
}

func newFakeEntryStore(entries ...*model.ContentEntry) *fakeEntryStore {
	s := &fakeEntryStore{entries: make(map[string]*model.ContentEntry)}
	for _, e := range entries {
		cp := *e
		s.entries[e.DocumentID] = &cp
	}
	return s
}

func (s *fakeEntryStore) MarkNotified(ctx context.Context, entry *model.ContentEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.marked = append(s.marked, entry.DocumentID)
	if e, ok := s.entries[entry.DocumentID]; ok {
		e.Notified = true
	}
	return nil
}

func (s *fakeEntryStore) FindByDocumentID(ctx context.Context, documentID string) (*model.ContentEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findHits++
	if s.findErr != nil {
		return nil, s.findErr
	}
	e, ok := s.entries[documentID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *fakeEntryStore) notified(documentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[documentID]
	return ok && e.Notified
}

func (s *fakeEntryStore) markCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.marked)
}

// fakeCategoryFetcher はCategoryFetcherのモック実装。
type fakeCategoryFetcher struct {
	categories map[int64][]model.Category
	err        error
	calls      int
}

func (f *fakeCategoryFetcher) CategoriesForEntry(ctx context.Context, entry *model.ContentEntry) ([]model.Category, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.categories[entry.ID], nil
}

// fakeLedger はLedgerWriterのモック実装。
type fakeLedger struct {
	mu   sync.Mutex
	logs []*model.DispatchLog
	err  error
}

func (l *fakeLedger) Create(ctx context.Context, log *model.DispatchLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, log)
	return l.err
}

var errRemote = errors.New("remote unavailable")
