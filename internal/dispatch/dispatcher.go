package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdispatch/internal/fingerprint"
	"github.com/hitoshi/newsdispatch/internal/metrics"
	"github.com/hitoshi/newsdispatch/internal/model"
)

// EntryReconciler は1件の記事のキャンペーンを照合する。
type EntryReconciler interface {
	Reconcile(ctx context.Context, entry *model.ContentEntry) model.DispatchResult
}

// EntryLoader はコンテンツストアから記事の最新状態を読み込む。
// 見つからない場合はnilを返す。
type EntryLoader interface {
	FindByDocumentID(ctx context.Context, documentID string) (*model.ContentEntry, error)
}

// LedgerWriter はディスパッチ結果を台帳に記録する。
type LedgerWriter interface {
	Create(ctx context.Context, log *model.DispatchLog) error
}

// Dispatcher はイベントごとに公開遷移判定→配信対象判定→リコンサイルを実行する。
//
// Submitはイベントを非同期タスクとして処理し、呼び出し元をブロックしない。
// 同じdocumentIdの処理はKeyedMutexで直列化し、照会から通知済みフラグの保存までを
// 1プロセス内で排他にする。
type Dispatcher struct {
	filter     *EligibilityFilter
	reconciler EntryReconciler
	entries    EntryLoader
	ledger     LedgerWriter
	locks      *KeyedMutex
	sem        chan struct{}
	wg         sync.WaitGroup
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// NewDispatcher はDispatcherを生成する。
// entriesとledgerはnilでもよい。maxConcurrentが0以下の場合はデフォルト値4を使用する。
func NewDispatcher(
	filter *EligibilityFilter,
	reconciler EntryReconciler,
	entries EntryLoader,
	ledger LedgerWriter,
	logger *slog.Logger,
	m metrics.MetricsCollector,
	maxConcurrent int,
) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Dispatcher{
		filter:     filter,
		reconciler: reconciler,
		entries:    entries,
		ledger:     ledger,
		locks:      NewKeyedMutex(),
		sem:        make(chan struct{}, maxConcurrent),
		logger:     logger,
		metrics:    m,
	}
}

// Submit はイベントを非同期で処理する。
// タスクはリクエストのキャンセルから切り離され、完了または失敗まで実行される。
func (d *Dispatcher) Submit(ctx context.Context, event model.ChangeEvent) {
	taskCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.recoverPanic(event.Entry)

		d.sem <- struct{}{}
		defer func() { <-d.sem }()

		d.Handle(taskCtx, event)
	}()
}

// Wait は処理中のタスクの完了を待つ。ctxが先に終了した場合はエラーを返す。
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ディスパッチタスクの完了待ちが中断されました: %w", ctx.Err())
	}
}

// Handle はイベントを同期的に処理して結果を返す。
func (d *Dispatcher) Handle(ctx context.Context, event model.ChangeEvent) model.DispatchResult {
	entry := event.Entry
	if entry == nil {
		return model.DispatchResult{Outcome: model.OutcomeNotTransition}
	}

	if !IsPublishTransition(event) {
		d.logger.Debug("公開遷移ではないためキャンペーン処理をスキップします",
			slog.Int64("entry_id", entry.ID),
			slog.String("document_id", entry.DocumentID),
			slog.String("action", string(event.Action)),
		)
		d.metrics.RecordDispatchOutcome(string(model.OutcomeNotTransition))
		return model.DispatchResult{Outcome: model.OutcomeNotTransition}
	}

	return d.Redispatch(ctx, entry)
}

// Redispatch は公開遷移判定を省略して配信対象判定とリコンサイルを行う。
// 失敗したディスパッチの再試行に使う。
func (d *Dispatcher) Redispatch(ctx context.Context, entry *model.ContentEntry) model.DispatchResult {
	return d.dispatch(ctx, entry, false)
}

// dispatch は配信対象判定とリコンサイルを行い、結果を台帳に記録する。
// manualの場合は通知済みフラグに関わらず下書きの照会と作成を行う。
func (d *Dispatcher) dispatch(ctx context.Context, entry *model.ContentEntry, manual bool) model.DispatchResult {
	if !d.filter.IsEligible(ctx, entry) {
		d.logger.Info("配信対象カテゴリではないためキャンペーン処理をスキップします",
			slog.Int64("entry_id", entry.ID),
			slog.String("document_id", entry.DocumentID),
		)
		d.metrics.RecordDispatchOutcome(string(model.OutcomeIneligible))
		result := model.DispatchResult{
			Outcome:        model.OutcomeIneligible,
			IdempotencyKey: fingerprint.ComputeKey(entry),
		}
		// 最新の台帳行を置き換え、失敗行が再試行対象に残らないようにする
		d.record(ctx, entry, result)
		return result
	}
	return d.reconcileLocked(ctx, entry, manual)
}

// DispatchEntry は手動配信要求を処理する。
// 記事を読み込み、公開済みかつ配信対象であることを確認してから同期的にリコンサイルする。
// 通知済みの記事でも下書きが見つからなければキャンペーンを作成する。
func (d *Dispatcher) DispatchEntry(ctx context.Context, documentID string) (model.DispatchResult, error) {
	if d.entries == nil {
		return model.DispatchResult{}, fmt.Errorf("コンテンツストアが設定されていません")
	}
	entry, err := d.entries.FindByDocumentID(ctx, documentID)
	if err != nil {
		return model.DispatchResult{}, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if entry == nil {
		return model.DispatchResult{}, model.NewEntryNotFoundError(documentID)
	}
	if !entry.IsPublished() {
		return model.DispatchResult{}, model.NewEntryNotPublishedError()
	}

	result := d.dispatch(ctx, entry, true)
	switch result.Outcome {
	case model.OutcomeIneligible:
		return result, model.NewEntryIneligibleError()
	case model.OutcomeNotConfigured:
		return result, model.NewNotConfiguredError()
	case model.OutcomeFailed:
		return result, model.NewDispatchFailedError(result.Phase)
	}
	return result, nil
}

func (d *Dispatcher) reconcileLocked(ctx context.Context, entry *model.ContentEntry, manual bool) model.DispatchResult {
	unlock := d.locks.Lock(entry.Identity())
	defer unlock()

	// イベントのスナップショットは古い可能性があるため、ロック取得後にフラグを読み直す。
	// 手動配信はフラグを無視して照会と作成を行う。
	e := *entry
	if manual {
		e.Notified = false
	} else if d.entries != nil && e.DocumentID != "" {
		fresh, err := d.entries.FindByDocumentID(ctx, e.DocumentID)
		if err != nil {
			d.logger.Warn("記事の通知済みフラグの再取得に失敗しました",
				slog.String("document_id", e.DocumentID),
				slog.String("error", err.Error()),
			)
		} else if fresh != nil {
			e.Notified = e.Notified || fresh.Notified
		}
	}

	result := d.reconciler.Reconcile(ctx, &e)
	d.record(ctx, &e, result)
	return result
}

// record は結果を台帳に書き込む。台帳の失敗はログのみ。
func (d *Dispatcher) record(ctx context.Context, entry *model.ContentEntry, result model.DispatchResult) {
	if d.ledger == nil {
		return
	}
	entryLog := &model.DispatchLog{
		ID:             uuid.NewString(),
		DocumentID:     entry.Identity(),
		EntryID:        entry.ID,
		IdempotencyKey: result.IdempotencyKey,
		CampaignID:     result.CampaignID,
		Outcome:        result.Outcome,
		Phase:          result.Phase,
		CreatedAt:      time.Now(),
	}
	if result.Err != nil {
		entryLog.ErrorMessage = result.Err.Error()
	}
	if err := d.ledger.Create(ctx, entryLog); err != nil {
		d.logger.Error("ディスパッチ台帳への記録に失敗しました",
			slog.String("document_id", entryLog.DocumentID),
			slog.String("outcome", string(result.Outcome)),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Dispatcher) recoverPanic(entry *model.ContentEntry) {
	rec := recover()
	if rec == nil {
		return
	}
	attrs := []any{
		slog.Any("panic", rec),
		slog.String("stack", string(debug.Stack())),
	}
	if entry != nil {
		attrs = append(attrs, slog.String("document_id", entry.DocumentID))
	}
	d.logger.Error("ディスパッチタスクでpanicが発生しました", attrs...)
}
