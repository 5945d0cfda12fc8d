// Package ingestion follows a chain from a persisted checkpoint and turns
// contract creations into token rows.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sentinel-ledger/internal/chain"
	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/observability"
	"sentinel-ledger/internal/storage"
)

// BlockHandler processes one fetched block.
type BlockHandler interface {
	ProcessBlock(ctx context.Context, b *chain.Block) error
}

// Listener polls one chain and advances its checkpoint batch by batch.
type Listener struct {
	chain        string
	startBlock   uint64
	batchSize    uint64
	pollInterval time.Duration
	errorBackoff time.Duration

	client      chain.Client
	handler     BlockHandler
	checkpoints storage.CheckpointStore
	skipped     storage.SkippedBlockStore
	heads       <-chan uint64
	now         func() time.Time
	logger      zerolog.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

// ListenerOptions contains configuration for creating a Listener.
type ListenerOptions struct {
	Chain        string
	StartBlock   uint64        // used when no checkpoint exists; 0 means start at head
	BatchSize    uint64        // Default: 100 blocks per batch
	PollInterval time.Duration // Default: 5s idle wait when caught up
	ErrorBackoff time.Duration // Default: 10s after a loop-level failure

	Client      chain.Client
	Handler     BlockHandler
	Checkpoints storage.CheckpointStore
	Skipped     storage.SkippedBlockStore // optional; nil keeps the lossy skip behavior

	// Heads wakes the idle wait early when a new head arrives. Optional.
	Heads <-chan uint64

	Now    func() time.Time
	Logger zerolog.Logger
}

// NewListener creates a new chain listener.
func NewListener(opts ListenerOptions) *Listener {
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}

	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = 5 * time.Second
	}

	errorBackoff := opts.ErrorBackoff
	if errorBackoff == 0 {
		errorBackoff = 10 * time.Second
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Listener{
		chain:        opts.Chain,
		startBlock:   opts.StartBlock,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		errorBackoff: errorBackoff,
		client:       opts.Client,
		handler:      opts.Handler,
		checkpoints:  opts.Checkpoints,
		skipped:      opts.Skipped,
		heads:        opts.Heads,
		now:          now,
		logger:       opts.Logger.With().Str("chain", opts.Chain).Logger(),
		stopped:      make(chan struct{}),
	}
}

// Run polls until ctx is cancelled or Stop is called. Stop is observed at
// the top of each iteration and during idle waits, so a batch in flight
// always finishes and advances the checkpoint. Cancelling ctx interrupts
// between blocks; a batch cut short that way is re-read on the next start.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Uint64("batch_size", l.batchSize).Dur("poll_interval", l.pollInterval).Msg("listener started")

	for {
		if l.stopRequested() || ctx.Err() != nil {
			l.logger.Info().Msg("listener stopped")
			return nil
		}

		advanced, err := l.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			l.logger.Error().Err(err).Dur("backoff", l.errorBackoff).Msg("listener iteration failed")
			l.sleep(ctx, l.errorBackoff, false)
			continue
		}
		if !advanced {
			l.sleep(ctx, l.pollInterval, true)
		}
	}
}

// Stop requests termination. It is safe to call before Run, more than once,
// or concurrently; Run returns after the current batch.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() { close(l.stopped) })
}

func (l *Listener) stopRequested() bool {
	select {
	case <-l.stopped:
		return true
	default:
		return false
	}
}

func (l *Listener) sleep(ctx context.Context, d time.Duration, wakeOnHead bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var heads <-chan uint64
	if wakeOnHead {
		heads = l.heads
	}

	select {
	case <-ctx.Done():
	case <-l.stopped:
	case <-timer.C:
	case <-heads:
	}
}

// Step runs one iteration: read the head, process at most one batch and
// advance the checkpoint. It reports whether any block was processed.
func (l *Listener) Step(ctx context.Context) (bool, error) {
	last, err := l.lastProcessed(ctx)
	if err != nil {
		return false, err
	}

	head, err := l.client.BlockNumber(ctx)
	if err != nil {
		return false, fmt.Errorf("read head: %w", err)
	}
	observability.UpdateChainHead(l.chain, head)

	if head <= last {
		return false, nil
	}

	from := last + 1
	to := last + l.batchSize
	if head < to {
		to = head
	}

	l.logger.Debug().Uint64("from", from).Uint64("to", to).Msg("processing batch")

	var lastHash string
	for n := from; n <= to; n++ {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		hash, err := l.processBlock(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			l.skip(ctx, n, err)
			continue
		}
		if n == to {
			lastHash = hash
		}
	}

	now := l.now()
	if err := l.checkpoints.Set(ctx, &domain.ProcessedBlock{
		Chain:       l.chain,
		BlockNumber: to,
		BlockHash:   lastHash,
		ProcessedAt: now.UnixMilli(),
	}); err != nil {
		return false, fmt.Errorf("save checkpoint %d: %w", to, err)
	}
	observability.UpdateCheckpoint(l.chain, to, now.Unix())

	return true, nil
}

// lastProcessed returns the checkpoint, the configured start block, or the
// current head when neither exists.
func (l *Listener) lastProcessed(ctx context.Context) (uint64, error) {
	cp, err := l.checkpoints.Get(ctx, l.chain)
	if err == nil {
		return cp.BlockNumber, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	if l.startBlock > 0 {
		return l.startBlock, nil
	}

	head, err := l.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("read head: %w", err)
	}
	l.logger.Info().Uint64("head", head).Msg("no checkpoint and no start block, starting at head")
	if err := l.checkpoints.Set(ctx, &domain.ProcessedBlock{
		Chain:       l.chain,
		BlockNumber: head,
		ProcessedAt: l.now().UnixMilli(),
	}); err != nil {
		return 0, fmt.Errorf("save initial checkpoint: %w", err)
	}
	return head, nil
}

// processBlock fetches and handles one block, returning its hash.
func (l *Listener) processBlock(ctx context.Context, n uint64) (string, error) {
	b, err := l.client.BlockByNumber(ctx, n)
	if err != nil {
		return "", fmt.Errorf("fetch block: %w", err)
	}
	if err := l.handler.ProcessBlock(ctx, b); err != nil {
		return "", fmt.Errorf("process block: %w", err)
	}
	observability.RecordBlockProcessed(l.chain)
	return b.Hash.Hex(), nil
}

func (l *Listener) skip(ctx context.Context, n uint64, cause error) {
	observability.RecordBlockSkipped(l.chain)
	l.logger.Warn().Err(cause).Uint64("block", n).Msg("skipping block")

	if l.skipped == nil {
		return
	}
	if err := l.skipped.Record(ctx, &domain.SkippedBlock{
		Chain:       l.chain,
		BlockNumber: n,
		Reason:      cause.Error(),
		SkippedAt:   l.now().UnixMilli(),
	}); err != nil {
		l.logger.Error().Err(err).Uint64("block", n).Msg("record skipped block")
	}
}

// RetrySkipped re-attempts up to limit unresolved skipped blocks and
// returns how many were resolved. Failures bump the attempt counter.
func (l *Listener) RetrySkipped(ctx context.Context, limit int) (int, error) {
	if l.skipped == nil {
		return 0, nil
	}

	blocks, err := l.skipped.ListUnresolved(ctx, l.chain, limit)
	if err != nil {
		return 0, fmt.Errorf("list skipped blocks: %w", err)
	}

	resolved := 0
	for _, sb := range blocks {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		if _, err := l.processBlock(ctx, sb.BlockNumber); err != nil {
			l.skip(ctx, sb.BlockNumber, err)
			continue
		}
		if err := l.skipped.Resolve(ctx, l.chain, sb.BlockNumber, l.now().UnixMilli()); err != nil {
			return resolved, fmt.Errorf("resolve block %d: %w", sb.BlockNumber, err)
		}
		resolved++
		l.logger.Info().Uint64("block", sb.BlockNumber).Int("attempts", sb.Attempts).Msg("skipped block recovered")
	}
	return resolved, nil
}
