package app

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/hitoshi/newsdispatch/internal/config"
	"github.com/hitoshi/newsdispatch/internal/dispatch"
	"github.com/hitoshi/newsdispatch/internal/mailchimp"
	"github.com/hitoshi/newsdispatch/internal/metrics"
	"github.com/hitoshi/newsdispatch/internal/render"
	"github.com/hitoshi/newsdispatch/internal/repository"
	"github.com/hitoshi/newsdispatch/internal/security"
	"github.com/hitoshi/newsdispatch/internal/subscriber"
)

// campaignAPI はMailchimpクライアントと、そのモックが共通で満たす操作。
type campaignAPI interface {
	dispatch.CampaignClient
	subscriber.MemberClient
	Ping(ctx context.Context) error
}

// newCampaignAPI はモックモードの場合はインメモリのモック、それ以外は実クライアントを返す。
func newCampaignAPI(cfg *config.Config, logger *slog.Logger, m metrics.MetricsCollector) campaignAPI {
	if cfg.MockMode {
		logger.Warn("MOCK_MODEが有効なためMailchimpへは送信しません")
		return mailchimp.NewMockClient(logger)
	}
	return mailchimp.NewClient(mailchimp.ClientConfig{
		APIKey:       cfg.MailchimpAPIKey,
		ServerPrefix: cfg.MailchimpServerPrefix,
		RateLimit:    cfg.MailchimpRateLimit,
		MaxRetries:   cfg.MailchimpMaxRetries,
		RetryBase:    cfg.MailchimpRetryBase,
	}, security.NewEgressClient(cfg.MailchimpTimeout), logger, m)
}

// components はserveとworkerが共有するディスパッチ系の依存関係。
type components struct {
	api        campaignAPI
	entries    *repository.PostgresEntryRepo
	ledger     *repository.PostgresDispatchLogRepo
	dispatcher *dispatch.Dispatcher
}

// buildComponents はリポジトリ、レンダラー、リコンサイラー、ディスパッチャーを組み立てる。
func buildComponents(cfg *config.Config, db *sql.DB, logger *slog.Logger, m metrics.MetricsCollector) *components {
	entryRepo := repository.NewPostgresEntryRepo(db)
	ledgerRepo := repository.NewPostgresDispatchLogRepo(db)
	api := newCampaignAPI(cfg, logger, m)

	renderer := render.NewEmailRenderer(render.Config{
		PublicSiteURL: cfg.PublicSiteURL,
		MediaBaseURL:  cfg.MediaBaseURL,
	}, security.NewExcerptSanitizer())

	reconciler := dispatch.NewReconciler(api, renderer, entryRepo, dispatch.ReconcilerConfig{
		AudienceID:      cfg.MailchimpAudienceID,
		FromName:        cfg.MailchimpFromName,
		ReplyTo:         cfg.MailchimpReplyTo,
		AutoSend:        cfg.EnableSend,
		ForceResend:     cfg.ForceResend,
		MissingSettings: cfg.MissingCampaignSettings(),
	}, logger, m)

	filter := dispatch.NewEligibilityFilter(entryRepo, cfg.EligibleCategorySlugs, logger)
	dispatcher := dispatch.NewDispatcher(filter, reconciler, entryRepo, ledgerRepo, logger, m, cfg.DispatchMaxConcurrent)

	return &components{
		api:        api,
		entries:    entryRepo,
		ledger:     ledgerRepo,
		dispatcher: dispatcher,
	}
}

// newSubscriberService は購読者同期サービスを組み立てる。
func newSubscriberService(cfg *config.Config, api campaignAPI, logger *slog.Logger, m metrics.MetricsCollector) *subscriber.Service {
	return subscriber.NewService(api, subscriber.Config{
		AudienceID:      cfg.MailchimpAudienceID,
		DoubleOptIn:     cfg.MailchimpDoubleOptIn,
		DefaultTags:     cfg.MailchimpDefaultTags,
		MissingSettings: cfg.MissingCampaignSettings(),
	}, logger, m)
}

// logStartupSettings は起動時に設定の要約を出力する。秘密情報はマスクする。
func logStartupSettings(cfg *config.Config, logger *slog.Logger) {
	logger.Info("Mailchimp設定",
		slog.String("api_key", cfg.MaskedAPIKey()),
		slog.String("server_prefix", cfg.MailchimpServerPrefix),
		slog.String("audience_id", cfg.MailchimpAudienceID),
		slog.Bool("enable_send", cfg.EnableSend),
		slog.Bool("force_resend", cfg.ForceResend),
		slog.Bool("mock_mode", cfg.MockMode),
		slog.Any("eligible_categories", cfg.EligibleCategorySlugs),
	)
	if missing := cfg.MissingCampaignSettings(); len(missing) > 0 {
		logger.Warn("Mailchimpの設定が不足しているためキャンペーン処理は無効です",
			slog.Any("missing", missing),
		)
	}
}
