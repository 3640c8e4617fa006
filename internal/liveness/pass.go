package liveness

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/No1412lee/il2cpp-plus/internal/typesys"
	"github.com/No1412lee/il2cpp-plus/pkg/collections"
	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
	"github.com/No1412lee/il2cpp-plus/pkg/utils"
)

// Partition selects how static owners are split between workers.
type Partition int

const (
	// PartitionSharded deals owners round robin, one share per worker.
	PartitionSharded Partition = iota
	// PartitionBatched hands out consecutive ranges of owners from a shared
	// cursor until none are left.
	PartitionBatched
)

// String returns the partition name used in configuration.
func (p Partition) String() string {
	switch p {
	case PartitionSharded:
		return "sharded"
	case PartitionBatched:
		return "batched"
	default:
		return "unknown"
	}
}

// ParsePartition parses a partition name.
func ParsePartition(s string) (Partition, error) {
	switch s {
	case "", "sharded":
		return PartitionSharded, nil
	case "batched":
		return PartitionBatched, nil
	default:
		return PartitionSharded, apperrors.Newf(apperrors.CodeInvalidInput, "unknown partition %q", s)
	}
}

// PassConfig configures a parallel statics pass.
type PassConfig struct {
	// Workers is the number of sessions. Default: min(NumCPU, 8).
	Workers int

	// MinSteal is the smallest steal worth taking. Default: 4.
	MinSteal int

	// BatchSize is the number of owners per batch for PartitionBatched.
	// Default: 64.
	BatchSize int

	Partition Partition

	// Timeout bounds the whole pass. 0 means no timeout. The deadline is
	// checked between batches and steal rounds, never inside a traversal.
	Timeout time.Duration

	Filter     *typesys.Class
	Collector  CollectFunc
	UserData   any
	Allocator  collections.Allocator[ObjectRef]
	BlockSize  int
	YieldEvery int
	Profiler   Profiler
	Clock      utils.Clock
	Logger     utils.Logger
}

// DefaultPassConfig returns the default pass configuration.
func DefaultPassConfig() PassConfig {
	return PassConfig{
		Workers:   min(runtime.NumCPU(), 8),
		MinSteal:  4,
		BatchSize: 64,
		Partition: PartitionSharded,
	}
}

// PassResult summarizes a finished pass.
type PassResult struct {
	Workers   int            `json:"workers"`
	Partition string         `json:"partition"`
	Totals    SessionStats   `json:"totals"`
	PerWorker []SessionStats `json:"per_worker"`
	Duration  time.Duration  `json:"duration"`
}

// RunPass scans every static root with a fixed pool of sessions sharing one
// MarkSet, so each reachable object is discovered and reported exactly once.
// Once a worker has finished its own share it keeps stealing queued work from
// the others until no worker is busy and a full steal round finds nothing.
//
// All sessions are finalized and ended before RunPass returns, including on
// error. The first error from any worker is returned.
func RunPass(ctx context.Context, rt Runtime, cfg PassConfig) (*PassResult, error) {
	if rt == nil {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "runtime is nil")
	}
	def := DefaultPassConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	cfg.Workers = max(cfg.Workers, 1)
	if cfg.MinSteal <= 0 {
		cfg.MinSteal = def.MinSteal
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = &utils.NullLogger{}
	}
	if cfg.Clock == nil {
		cfg.Clock = utils.NewRealClock()
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	start := cfg.Clock.Now()
	logger := cfg.Logger.WithField("partition", cfg.Partition)

	marks := NewMarkSet(rt.ObjectCapacity())
	sessions := make([]*Session, 0, cfg.Workers)
	defer func() {
		for _, s := range sessions {
			_ = s.Finalize()
			if err := s.End(); err != nil {
				logger.Warn("end session: %v", err)
			}
		}
	}()

	for i := 0; i < cfg.Workers; i++ {
		s, err := BeginSession(rt, SessionOptions{
			Filter:     cfg.Filter,
			Collector:  cfg.Collector,
			UserData:   cfg.UserData,
			Allocator:  cfg.Allocator,
			BlockSize:  cfg.BlockSize,
			MarkSet:    marks,
			YieldEvery: cfg.YieldEvery,
			Profiler:   cfg.Profiler,
			Clock:      cfg.Clock,
			Logger:     cfg.Logger,
			Name:       fmt.Sprintf("w%d", i),
		})
		if err != nil {
			return nil, fmt.Errorf("begin session %d: %w", i, err)
		}
		sessions = append(sessions, s)
	}

	p := &pass{
		cfg:      cfg,
		sessions: sessions,
		total:    len(rt.StaticOwners()),
	}
	p.busy.Store(int32(len(sessions)))

	g, gctx := errgroup.WithContext(ctx)
	for i := range sessions {
		g.Go(func() error {
			if err := p.runShare(gctx, i); err != nil {
				p.busy.Add(-1)
				return err
			}
			p.busy.Add(-1)
			return p.stealLoop(gctx, i)
		})
	}
	err := g.Wait()

	result := &PassResult{
		Workers:   len(sessions),
		Partition: cfg.Partition.String(),
		PerWorker: make([]SessionStats, len(sessions)),
		Duration:  cfg.Clock.Since(start),
	}
	for i, s := range sessions {
		st := s.Stats()
		result.PerWorker[i] = st
		result.Totals.Add(st)
	}

	if err != nil {
		logger.Error("pass failed after %v: %v", result.Duration, err)
		return result, err
	}
	logger.Info("pass finished: workers=%d discovered=%d reported=%d stolen=%d in %v",
		result.Workers, result.Totals.Discovered, result.Totals.Reported, result.Totals.Stolen, result.Duration)
	return result, nil
}

type pass struct {
	cfg      PassConfig
	sessions []*Session
	total    int
	cursor   atomic.Int64
	busy     atomic.Int32
}

// runShare seeds, drains and reports worker i's own share of static owners.
func (p *pass) runShare(ctx context.Context, i int) error {
	s := p.sessions[i]
	n := len(p.sessions)

	if p.cfg.Partition == PartitionSharded {
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.ScanStaticsSharded(i, n)
	}

	first := true
	batch := int64(p.cfg.BatchSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := p.cursor.Add(batch) - batch
		if start >= int64(p.total) {
			return nil
		}
		if err := s.CollectStaticsBatch(first, int(start), p.cfg.BatchSize); err != nil {
			return err
		}
		first = false
		if err := s.DrainAndReport(); err != nil {
			return err
		}
	}
}

// stealLoop lets an idle worker help the others until the pass is done: no
// worker is busy and a full round over every victim stole nothing.
func (p *pass) stealLoop(ctx context.Context, i int) error {
	s := p.sessions[i]
	n := len(p.sessions)
	if n < 2 {
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stolen := 0
		for j := 1; j < n; j++ {
			victim := p.sessions[(i+j)%n]
			p.busy.Add(1)
			got, err := s.TrySteal(victim, n, p.cfg.MinSteal)
			p.busy.Add(-1)
			if err != nil {
				return err
			}
			stolen += got
		}
		if stolen > 0 {
			continue
		}
		if p.busy.Load() == 0 {
			return nil
		}
		runtime.Gosched()
	}
}
