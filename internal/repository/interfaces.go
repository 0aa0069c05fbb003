// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/newsdispatch/internal/model"
)

// EntryRepository はCMSの記事テーブルへのアクセスインターフェース。
// 記事本体はCMSが所有し、このサービスは通知済みフラグのみ書き込む。
type EntryRepository interface {
	// FindByDocumentID はdocumentIdで記事を取得する。
	// 公開リビジョンがあればそれを優先する。見つからない場合はnilを返す。
	FindByDocumentID(ctx context.Context, documentID string) (*model.ContentEntry, error)

	// CategoriesForEntry は記事に紐づくカテゴリを取得する。
	// CategoryRefsが指定されていればそのIDで、なければ中間テーブルから引く。
	CategoriesForEntry(ctx context.Context, entry *model.ContentEntry) ([]model.Category, error)

	// MarkNotified は同じdocumentIdの全リビジョンに通知済みフラグを立てる。
	MarkNotified(ctx context.Context, entry *model.ContentEntry) error
}

// DispatchLogRepository はディスパッチ台帳の永続化インターフェース。
type DispatchLogRepository interface {
	// Create は台帳に1件追記する。
	Create(ctx context.Context, log *model.DispatchLog) error

	// ListByDocumentID は記事のディスパッチ履歴を新しい順に返す。
	ListByDocumentID(ctx context.Context, documentID string, limit int) ([]*model.DispatchLog, error)

	// ListRetryCandidates は直近の結果がfailedで、since以降に記録されたdocumentIdを返す。
	ListRetryCandidates(ctx context.Context, since time.Time, limit int) ([]string, error)
}
