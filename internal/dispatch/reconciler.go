package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/newsdispatch/internal/fingerprint"
	"github.com/hitoshi/newsdispatch/internal/mailchimp"
	"github.com/hitoshi/newsdispatch/internal/metrics"
	"github.com/hitoshi/newsdispatch/internal/model"
	"github.com/hitoshi/newsdispatch/internal/render"
)

// defaultLookupCount は既存キャンペーン照会で取得する下書きの件数。
const defaultLookupCount = 50

// CampaignClient はReconcilerが依存するキャンペーンAPIの操作。
// すべての呼び出しは失敗しうる。
type CampaignClient interface {
	ListCampaigns(ctx context.Context, filter mailchimp.ListFilter) ([]mailchimp.Campaign, error)
	CreateCampaign(ctx context.Context, spec mailchimp.CampaignSpec) (string, error)
	SetContent(ctx context.Context, campaignID, html string) error
	Send(ctx context.Context, campaignID string) error
	GetStatus(ctx context.Context, campaignID string) (mailchimp.CampaignStatus, error)
}

// NotificationStore は記事の通知済みフラグを永続化する。
type NotificationStore interface {
	MarkNotified(ctx context.Context, entry *model.ContentEntry) error
}

// ReconcilerConfig はキャンペーン作成と送信のポリシー。
type ReconcilerConfig struct {
	AudienceID  string
	FromName    string
	ReplyTo     string
	AutoSend    bool // falseの場合は下書きのまま残す
	ForceResend bool // 送信済みでも再送する
	LookupCount int
	// MissingSettings は未設定の必須項目。空でない場合はすべての処理をスキップする。
	MissingSettings []string
}

// Reconciler は記事に対応するリモートキャンペーンを作成または更新する。
//
// 記事ごとの状態はリモート照会と通知済みフラグから導出し、保存しない:
//
//	Unnotified → CampaignDrafted → CampaignUpdated* → (AutoSend時) CampaignSent
type Reconciler struct {
	client   CampaignClient
	renderer render.Renderer
	store    NotificationStore
	config   ReconcilerConfig
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
}

// NewReconciler はReconcilerを生成する。
func NewReconciler(
	client CampaignClient,
	renderer render.Renderer,
	store NotificationStore,
	config ReconcilerConfig,
	logger *slog.Logger,
	m metrics.MetricsCollector,
) *Reconciler {
	if config.LookupCount <= 0 {
		config.LookupCount = defaultLookupCount
	}
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Reconciler{
		client:   client,
		renderer: renderer,
		store:    store,
		config:   config,
		logger:   logger,
		metrics:  m,
	}
}

// IdentityMarker はキャンペーンタイトルに埋め込む記事の識別子を返す。
// 末尾の空白で "News #12" と "News #123" を区別する。
func IdentityMarker(entry *model.ContentEntry) string {
	return "News #" + entry.Identity() + " "
}

// CampaignTitle はMailchimp管理画面用のキャンペーンタイトルを返す。
func CampaignTitle(entry *model.ContentEntry, key string) string {
	title := entry.Title
	if title == "" {
		title = "Update"
	}
	return fmt.Sprintf("%s– %s · %s", IdentityMarker(entry), title, key)
}

// SubjectLine はメールの件名を返す。
func SubjectLine(entry *model.ContentEntry) string {
	if entry.Title == "" {
		return "New: MiningDiscovery Update"
	}
	return "New: " + entry.Title
}

// Reconcile は記事のキャンペーンを作成または更新し、結果を返す。
// エラーは結果に含めて返し、パニックや呼び出し元への伝播は行わない。
// 通知済みフラグは作成と本文設定の両方が成功した後にのみ保存する。
func (r *Reconciler) Reconcile(ctx context.Context, entry *model.ContentEntry) model.DispatchResult {
	log := r.logger.With(
		slog.Int64("entry_id", entry.ID),
		slog.String("document_id", entry.DocumentID),
	)

	if len(r.config.MissingSettings) > 0 {
		log.Warn("Mailchimpの設定が不足しているためキャンペーン処理をスキップします",
			slog.String("missing", strings.Join(r.config.MissingSettings, ",")),
		)
		return r.finish(model.DispatchResult{Outcome: model.OutcomeNotConfigured, Err: model.ErrNotConfigured})
	}

	key := fingerprint.ComputeKey(entry)
	log = log.With(slog.String("idempotency_key", key))

	existing, err := r.lookup(ctx, entry, key)
	if err != nil {
		// 存在を確認できない場合は未作成として扱う。重複作成のおそれがある。
		log.Warn("既存キャンペーンの照会に失敗したため未作成として扱います",
			slog.String("phase", string(model.PhaseLookup)),
			slog.String("error", err.Error()),
		)
	}

	if existing == nil && entry.Notified {
		log.Info("通知済みで下書きキャンペーンが見つからないためスキップします")
		return r.finish(model.DispatchResult{Outcome: model.OutcomeAlreadyNotified, IdempotencyKey: key})
	}

	html, err := r.renderer.Render(entry)
	if err != nil {
		return r.fail(log, model.DispatchResult{IdempotencyKey: key}, model.PhaseRender, err)
	}

	result := model.DispatchResult{IdempotencyKey: key}
	if existing == nil {
		id, err := r.client.CreateCampaign(ctx, r.campaignSpec(entry, key))
		if err != nil {
			return r.fail(log, result, model.PhaseCreate, err)
		}
		result.CampaignID = id
		log.Info("キャンペーン下書きを作成しました", slog.String("campaign_id", id))

		if err := r.client.SetContent(ctx, id, html); err != nil {
			return r.fail(log, result, model.PhaseContent, err)
		}
		result.Outcome = model.OutcomeCreated
	} else {
		result.CampaignID = existing.ID
		if err := r.client.SetContent(ctx, existing.ID, html); err != nil {
			return r.fail(log, result, model.PhaseContent, err)
		}
		log.Info("既存キャンペーンの本文を更新しました", slog.String("campaign_id", existing.ID))
		result.Outcome = model.OutcomeUpdated
	}

	if !entry.Notified {
		if err := r.store.MarkNotified(ctx, entry); err != nil {
			return r.fail(log, result, model.PhasePersist, err)
		}
		entry.Notified = true
	}

	if !r.config.AutoSend {
		log.Info("自動送信が無効のため下書きのまま残します",
			slog.String("campaign_id", result.CampaignID),
		)
		return r.finish(result)
	}

	return r.send(ctx, log, result)
}

// send は送信ポリシーに従ってキャンペーンを送信する。
// 送信済みの場合はForceResendが有効なときのみ再送する。
func (r *Reconciler) send(ctx context.Context, log *slog.Logger, result model.DispatchResult) model.DispatchResult {
	status, err := r.client.GetStatus(ctx, result.CampaignID)
	if err != nil {
		log.Warn("キャンペーン状態を確認できないため送信をスキップします",
			slog.String("campaign_id", result.CampaignID),
			slog.String("phase", string(model.PhaseStatus)),
			slog.String("error", err.Error()),
		)
		return r.finish(result)
	}

	if status == mailchimp.StatusSent && !r.config.ForceResend {
		log.Warn("キャンペーンは送信済みのため送信をスキップします",
			slog.String("campaign_id", result.CampaignID),
		)
		return r.finish(result)
	}

	if err := r.client.Send(ctx, result.CampaignID); err != nil {
		return r.fail(log, result, model.PhaseSend, err)
	}
	log.Info("キャンペーンを送信しました", slog.String("campaign_id", result.CampaignID))
	result.Outcome = model.OutcomeSent
	return r.finish(result)
}

// lookup は記事に対応する下書きキャンペーンを探す。
// タイトルに識別子または冪等キーを含むものを一致とみなす。
func (r *Reconciler) lookup(ctx context.Context, entry *model.ContentEntry, key string) (*mailchimp.Campaign, error) {
	campaigns, err := r.client.ListCampaigns(ctx, mailchimp.ListFilter{
		ListID: r.config.AudienceID,
		Status: mailchimp.StatusSave,
		Count:  r.config.LookupCount,
	})
	if err != nil {
		return nil, err
	}

	marker := IdentityMarker(entry)
	for i := range campaigns {
		c := &campaigns[i]
		if c.Recipients.ListID != r.config.AudienceID {
			continue
		}
		if strings.Contains(c.Settings.Title, marker) || strings.Contains(c.Settings.Title, key) {
			return c, nil
		}
	}
	return nil, nil
}

func (r *Reconciler) campaignSpec(entry *model.ContentEntry, key string) mailchimp.CampaignSpec {
	return mailchimp.CampaignSpec{
		Type:       "regular",
		Recipients: mailchimp.Recipients{ListID: r.config.AudienceID},
		Settings: mailchimp.Settings{
			Title:       CampaignTitle(entry, key),
			SubjectLine: SubjectLine(entry),
			PreviewText: r.renderer.PreviewText(entry),
			FromName:    r.config.FromName,
			ReplyTo:     r.config.ReplyTo,
			ToName:      "*|FNAME|*",
			AutoFooter:  false,
		},
		Tracking: mailchimp.Tracking{Opens: true, HTMLClicks: true, TextClicks: false},
	}
}

func (r *Reconciler) fail(log *slog.Logger, result model.DispatchResult, phase model.Phase, err error) model.DispatchResult {
	attrs := []any{
		slog.String("phase", string(phase)),
		slog.String("error", err.Error()),
	}
	if result.CampaignID != "" {
		attrs = append(attrs, slog.String("campaign_id", result.CampaignID))
	}
	if status := mailchimp.StatusCode(err); status != 0 {
		attrs = append(attrs, slog.Int("http_status", status))
	}
	log.Error("キャンペーン処理に失敗しました", attrs...)

	result.Outcome = model.OutcomeFailed
	result.Phase = phase
	result.Err = err
	return r.finish(result)
}

func (r *Reconciler) finish(result model.DispatchResult) model.DispatchResult {
	r.metrics.RecordDispatchOutcome(string(result.Outcome))
	return result
}
