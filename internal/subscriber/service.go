// Package subscriber はCMSのニュースレター購読者をMailchimpのリストメンバーへ同期する。
package subscriber

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/newsdispatch/internal/mailchimp"
	"github.com/hitoshi/newsdispatch/internal/metrics"
	"github.com/hitoshi/newsdispatch/internal/model"
)

// MemberClient は購読者同期に必要なMailchimp操作。
type MemberClient interface {
	UpsertMember(ctx context.Context, listID string, member mailchimp.Member) error
	AddTags(ctx context.Context, listID, email string, tags []string) error
}

// Config は購読者同期の設定。
type Config struct {
	AudienceID  string
	DoubleOptIn bool // trueの場合は新規メンバーを確認メール待ち（pending）で登録する
	DefaultTags []string
	// MissingSettings は未設定の必須項目。空でない場合は同期しない。
	MissingSettings []string
}

// Service は購読者同期サービス。
type Service struct {
	client  MemberClient
	config  Config
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(client MemberClient, config Config, logger *slog.Logger, m metrics.MetricsCollector) *Service {
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Service{
		client:  client,
		config:  config,
		logger:  logger,
		metrics: m,
	}
}

// ValidateEmail はメールアドレスの最低限の形式を検証する。
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return model.NewInvalidEmailError()
	}
	return nil
}

// Sync は購読者をリストメンバーとして登録または更新し、既定のタグを付与する。
// 既存メンバーの購読状態は変更しない。タグ付与の失敗はログのみ。
func (s *Service) Sync(ctx context.Context, sub model.Subscriber) error {
	if err := ValidateEmail(sub.Email); err != nil {
		return err
	}
	if len(s.config.MissingSettings) > 0 {
		s.logger.Warn("Mailchimpの設定が不足しているため購読者同期をスキップします",
			slog.String("missing", strings.Join(s.config.MissingSettings, ",")),
		)
		return model.ErrNotConfigured
	}

	email := sub.NormalizedEmail()
	member := mailchimp.Member{
		EmailAddress: email,
		StatusIfNew:  "subscribed",
		MergeFields:  mergeFields(sub),
	}
	if s.config.DoubleOptIn {
		member.StatusIfNew = "pending"
	}

	if err := s.client.UpsertMember(ctx, s.config.AudienceID, member); err != nil {
		s.metrics.RecordSubscriberSync(false)
		s.logger.Error("購読者の同期に失敗しました",
			slog.String("email", maskEmail(email)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("購読者の同期に失敗しました: %w", err)
	}

	if err := s.client.AddTags(ctx, s.config.AudienceID, email, s.config.DefaultTags); err != nil {
		s.logger.Warn("購読者へのタグ付与に失敗しました",
			slog.String("email", maskEmail(email)),
			slog.String("error", err.Error()),
		)
	}

	s.metrics.RecordSubscriberSync(true)
	s.logger.Info("購読者を同期しました",
		slog.String("email", maskEmail(email)),
		slog.String("status_if_new", member.StatusIfNew),
	)
	return nil
}

// mergeFields は空でない項目だけをマージフィールドに設定する。
func mergeFields(sub model.Subscriber) map[string]string {
	fields := map[string]string{}
	for key, value := range map[string]string{
		"FNAME":   sub.FirstName,
		"LNAME":   sub.LastName,
		"COMPANY": sub.Company,
		"COUNTRY": sub.Country,
	} {
		if v := strings.TrimSpace(value); v != "" {
			fields[key] = v
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// maskEmail はログ用にローカル部の先頭1文字以外を伏せる。
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
