// Package retry は失敗したディスパッチの再試行ワーカーを提供する。
// 台帳上で最新の結果が失敗の記事を定期的に再リコンサイルする。
package retry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/newsdispatch/internal/model"
)

// defaultBatchSize は1サイクルで再試行する記事数の上限。
const defaultBatchSize = 50

// CandidateLister は再試行対象のdocumentIdを列挙する。
type CandidateLister interface {
	ListRetryCandidates(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// EntryLoader は記事の最新状態を読み込む。見つからない場合はnilを返す。
type EntryLoader interface {
	FindByDocumentID(ctx context.Context, documentID string) (*model.ContentEntry, error)
}

// Redispatcher は公開遷移判定を省略して記事を再ディスパッチする。
type Redispatcher interface {
	Redispatch(ctx context.Context, entry *model.ContentEntry) model.DispatchResult
}

// Sweeper は失敗ディスパッチの再試行を並列数を制御しながら実行する。
type Sweeper struct {
	ledger         CandidateLister
	entries        EntryLoader
	dispatcher     Redispatcher
	logger         *slog.Logger
	maxAge         time.Duration
	batchSize      int
	maxConcurrency int
	now            func() time.Time
}

// NewSweeper はSweeperを生成する。
// maxAgeより古い失敗は再試行しない。maxConcurrencyが0以下の場合は2を使用する。
func NewSweeper(
	ledger CandidateLister,
	entries EntryLoader,
	dispatcher Redispatcher,
	logger *slog.Logger,
	maxAge time.Duration,
	maxConcurrency int,
) *Sweeper {
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Sweeper{
		ledger:         ledger,
		entries:        entries,
		dispatcher:     dispatcher,
		logger:         logger,
		maxAge:         maxAge,
		batchSize:      defaultBatchSize,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
	}
}

// Start はintervalごとにRunOnceを実行する。ctxがキャンセルされるまで戻らない。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("再試行ワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("max_age", s.maxAge),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("再試行ワーカーを停止しました")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("再試行サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は再試行対象を1回取得して再ディスパッチし、処理した記事数を返す。
// 個々の記事の失敗はログのみで、他の記事の処理は継続する。
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	start := s.now()

	docIDs, err := s.ledger.ListRetryCandidates(ctx, start.Add(-s.maxAge), s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(docIDs) == 0 {
		s.logger.Debug("再試行対象のディスパッチはありません")
		return 0, nil
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		processed int
	)
	sem := make(chan struct{}, s.maxConcurrency)

	for _, docID := range docIDs {
		wg.Add(1)
		sem <- struct{}{}

		go func(docID string) {
			defer wg.Done()
			defer func() { <-sem }()

			if s.retry(ctx, docID) {
				mu.Lock()
				processed++
				mu.Unlock()
			}
		}(docID)
	}
	wg.Wait()

	s.logger.Info("再試行サイクルが完了しました",
		slog.Int("candidate_count", len(docIDs)),
		slog.Int("processed_count", processed),
		slog.Float64("duration_ms", float64(s.now().Sub(start).Milliseconds())),
	)
	return processed, nil
}

// retry は1件の記事を再ディスパッチする。再ディスパッチした場合にtrueを返す。
func (s *Sweeper) retry(ctx context.Context, docID string) bool {
	log := s.logger.With(slog.String("document_id", docID))

	entry, err := s.entries.FindByDocumentID(ctx, docID)
	if err != nil {
		log.Error("再試行対象の記事の取得に失敗しました", slog.String("error", err.Error()))
		return false
	}
	if entry == nil {
		log.Info("再試行対象の記事が削除されているためスキップします")
		return false
	}
	if !entry.IsPublished() {
		log.Info("再試行対象の記事が非公開のためスキップします")
		return false
	}

	result := s.dispatcher.Redispatch(ctx, entry)
	log.Info("失敗したディスパッチを再試行しました",
		slog.String("outcome", string(result.Outcome)),
		slog.String("campaign_id", result.CampaignID),
	)
	return true
}
