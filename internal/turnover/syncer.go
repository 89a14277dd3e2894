package turnover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
)

// FeedName identifies the ERP turnover feed in sync_status.
const FeedName = "erp_turnover"

const syncLockKey = "sync:erp_turnover"

// ErrSyncConfig reports invalid syncer wiring.
var ErrSyncConfig = errors.New("invalid syncer config")

// SyncRun is the persisted outcome of the latest feed pass.
type SyncRun struct {
	LastRunUnixUTC     int64
	LastSuccessUnixUTC int64
	LastError          string
	RowsUpserted       int64
}

// IngestResult summarizes one atomic ingestion batch. Affected sellers
// and groups cover newly inserted rows only, since refreshes change
// nothing claimable.
type IngestResult struct {
	Inserted           int
	AffectedSellerINNs []string
	AffectedGroupIDs   []string
}

// Report summarizes one feed pass.
type Report struct {
	Skipped            bool
	Fetched            int
	Upserted           int
	Inserted           int
	AffectedSellerINNs []string
	AffectedGroupIDs   []string
}

// Store persists turnover rows and feed bookkeeping.
type Store interface {
	// IngestBatch upserts the rows by their source keys inside one
	// transaction; partial failure rolls the whole batch back. When the
	// batch inserts anything new the store also writes the outbox
	// notification carrying the result, in the same transaction.
	IngestBatch(ctx context.Context, rows []claims.TurnoverInput) (IngestResult, error)
	RecordSyncRun(ctx context.Context, name string, run SyncRun) error
	GetSyncRun(ctx context.Context, name string) (SyncRun, error)
}

// Feed delivers turnover rows from the external ERP.
type Feed interface {
	FetchTurnover(ctx context.Context) ([]claims.TurnoverInput, error)
}

// Locker serializes feed passes across replicas. Acquire reports false
// without error when another holder owns the lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(ctx context.Context) bool, bool, error)
}

// Syncer runs the ERP feed into the turnover store.
type Syncer struct {
	store   Store
	feed    Feed
	locker  Locker
	lockTTL time.Duration
	nowFn   func() int64
	logger  *zap.Logger
}

// NewSyncer wires a Syncer.
func NewSyncer(store Store, feed Feed, locker Locker, lockTTL time.Duration, now func() int64, logger *zap.Logger) (*Syncer, error) {
	if store == nil || feed == nil || locker == nil {
		return nil, fmt.Errorf("%w: store, feed, and locker are required", ErrSyncConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrSyncConfig)
	}
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{store: store, feed: feed, locker: locker, lockTTL: lockTTL, nowFn: now, logger: logger}, nil
}

// RunOnce performs a single feed pass under the distributed lock. A pass
// already running elsewhere yields a skipped report, not an error.
func (syncer *Syncer) RunOnce(ctx context.Context) (Report, error) {
	release, acquired, err := syncer.locker.Acquire(ctx, syncLockKey, syncer.lockTTL)
	if err != nil {
		return Report{}, err
	}
	if !acquired {
		syncer.logger.Info("feed pass skipped, lock held elsewhere", zap.String("feed", FeedName))
		return Report{Skipped: true}, nil
	}
	defer release(ctx)

	report, runErr := syncer.pass(ctx)
	run := SyncRun{
		LastRunUnixUTC: syncer.nowFn(),
		RowsUpserted:   int64(report.Upserted),
	}
	if runErr == nil {
		run.LastSuccessUnixUTC = run.LastRunUnixUTC
	} else {
		run.LastError = runErr.Error()
	}
	if previous, err := syncer.store.GetSyncRun(ctx, FeedName); err == nil && runErr != nil {
		run.LastSuccessUnixUTC = previous.LastSuccessUnixUTC
	}
	if err := syncer.store.RecordSyncRun(ctx, FeedName, run); err != nil {
		syncer.logger.Warn("record sync run failed", zap.String("feed", FeedName), zap.Error(err))
	}
	return report, runErr
}

func (syncer *Syncer) pass(ctx context.Context) (Report, error) {
	rows, err := syncer.feed.FetchTurnover(ctx)
	if err != nil {
		syncer.logger.Error("feed fetch failed", zap.String("feed", FeedName), zap.Error(err))
		return Report{}, err
	}
	report := Report{Fetched: len(rows)}
	result, err := syncer.store.IngestBatch(ctx, rows)
	if err != nil {
		syncer.logger.Error("turnover batch ingest failed",
			zap.String("feed", FeedName),
			zap.Int("rows", len(rows)),
			zap.Error(err))
		return report, err
	}
	report.Upserted = len(rows)
	report.Inserted = result.Inserted
	report.AffectedSellerINNs = result.AffectedSellerINNs
	report.AffectedGroupIDs = result.AffectedGroupIDs
	syncer.logger.Info("feed pass complete",
		zap.String("feed", FeedName),
		zap.Int("fetched", report.Fetched),
		zap.Int("inserted", report.Inserted))
	return report, nil
}

// Run loops RunOnce on the given interval until the context ends.
func (syncer *Syncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := syncer.RunOnce(ctx); err != nil {
			syncer.logger.Warn("feed pass failed", zap.String("feed", FeedName), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Status returns the persisted outcome of the last pass.
func (syncer *Syncer) Status(ctx context.Context) (SyncRun, error) {
	return syncer.store.GetSyncRun(ctx, FeedName)
}
