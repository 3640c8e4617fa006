package liveness

import (
	"fmt"
	"sync/atomic"

	"github.com/No1412lee/il2cpp-plus/internal/typesys"
	"github.com/No1412lee/il2cpp-plus/pkg/collections"
	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
	"github.com/No1412lee/il2cpp-plus/pkg/utils"
)

const (
	// ReportBatchSize is the largest batch handed to a collector.
	ReportBatchSize = 64

	// MaxRecursionDepth bounds how deeply inline structs may nest.
	MaxRecursionDepth = 128

	// MaxDrainDepth bounds nested drains started by early yield.
	MaxDrainDepth = 128

	// MaxStealCount is the most objects one steal moves.
	MaxStealCount = 32
)

// CollectFunc receives discovered objects. batch is reused after the call
// returns; collectors that keep refs must copy them. Sessions of a parallel
// pass call the collector concurrently.
type CollectFunc func(batch []ObjectRef, userData any) error

// SessionState is the lifecycle state of a session.
type SessionState int

const (
	StateCreated SessionState = iota
	StateSeeded
	StateDraining
	StateReported
	StateFinalized
	StateDestroyed
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSeeded:
		return "seeded"
	case StateDraining:
		return "draining"
	case StateReported:
		return "reported"
	case StateFinalized:
		return "finalized"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// SessionOptions configures BeginSession.
type SessionOptions struct {
	// Filter restricts reporting to instances of this class or its
	// descendants. Nil reports every discovered object.
	Filter *typesys.Class

	Collector CollectFunc
	UserData  any

	// Allocator supplies arena blocks. Nil uses the Go heap.
	Allocator collections.Allocator[ObjectRef]
	// BlockSize is the number of refs per arena block, 0 for the default.
	BlockSize int

	// MaxObjectCount pre-reserves room for that many discovered objects so
	// that allocator exhaustion surfaces from BeginSession.
	MaxObjectCount int

	// MarkSet is shared by the sessions of a parallel pass. Nil gives the
	// session a private one sized from the runtime.
	MarkSet *MarkSet

	// YieldEvery > 0 drains the queue after every that many objects queued
	// from one array, bounding queue growth on huge arrays. 0 runs each
	// array to completion first.
	YieldEvery int

	Profiler Profiler
	Clock    utils.Clock
	Logger   utils.Logger

	// Name labels the session in log lines.
	Name string
}

// SessionStats counts what a session did. Only the owning goroutine updates
// it; read it once the session is idle.
type SessionStats struct {
	Processed  int64 `json:"processed"`
	Discovered int64 `json:"discovered"`
	Traversed  int64 `json:"traversed"`
	Reported   int64 `json:"reported"`
	Stolen     int64 `json:"stolen"`
}

// Add accumulates other into s.
func (s *SessionStats) Add(other SessionStats) {
	s.Processed += other.Processed
	s.Discovered += other.Discovered
	s.Traversed += other.Traversed
	s.Reported += other.Reported
	s.Stolen += other.Stolen
}

// Session is one reachability scan. Its methods must be called from a single
// goroutine, except that other sessions may steal from its work queue
// concurrently through TrySteal.
type Session struct {
	rt     Runtime
	filter *typesys.Class

	collect  CollectFunc
	userData any

	marks      *MarkSet
	ownsMarks  bool
	allObjects *collections.BlockArray[ObjectRef]
	queue      *collections.BlockArray[ObjectRef]
	local      *collections.LocalBuffer[ObjectRef]
	batch      []ObjectRef
	stealBuf   [MaxStealCount]ObjectRef

	drainDepth int
	yieldEvery int

	profiler Profiler
	clock    utils.Clock
	logger   utils.Logger

	state atomic.Int32
	stats SessionStats
}

// BeginSession creates a session over rt. The filter's type hierarchy is
// prepared here so that filter checks during the scan are lock-free.
func BeginSession(rt Runtime, opts SessionOptions) (*Session, error) {
	if rt == nil {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "runtime is nil")
	}
	typesys.SetupTypeHierarchy(opts.Filter)

	marks := opts.MarkSet
	if marks == nil {
		marks = NewMarkSet(rt.ObjectCapacity())
	} else if marks.Capacity() < rt.ObjectCapacity() {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput,
			"mark set holds %d refs, runtime needs %d", marks.Capacity(), rt.ObjectCapacity())
	}

	alloc := opts.Allocator
	if alloc == nil {
		alloc = collections.HeapAllocator[ObjectRef]{}
	}

	allObjects, err := collections.NewBlockArray[ObjectRef](alloc, opts.BlockSize)
	if err != nil {
		return nil, err
	}
	queue, err := collections.NewBlockArray[ObjectRef](alloc, opts.BlockSize)
	if err != nil {
		allObjects.Destroy()
		return nil, err
	}
	if opts.MaxObjectCount > 0 {
		if err := allObjects.Reserve(opts.MaxObjectCount); err != nil {
			allObjects.Destroy()
			queue.Destroy()
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	if opts.Name != "" {
		logger = logger.WithField("session", opts.Name)
	}
	clock := opts.Clock
	if clock == nil {
		clock = utils.NewRealClock()
	}

	s := &Session{
		rt:         rt,
		filter:     opts.Filter,
		collect:    opts.Collector,
		userData:   opts.UserData,
		marks:      marks,
		ownsMarks:  opts.MarkSet == nil,
		allObjects: allObjects,
		queue:      queue,
		local:      collections.NewLocalBuffer[ObjectRef](collections.LocalBufferSize),
		batch:      make([]ObjectRef, ReportBatchSize),
		yieldEvery: opts.YieldEvery,
		profiler:   opts.Profiler,
		clock:      clock,
		logger:     logger,
	}
	s.setState(StateCreated)
	return s, nil
}

// State returns the lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// Stats returns the session counters.
func (s *Session) Stats() SessionStats {
	return s.stats
}

// MarkSet returns the mark set the session marks into.
func (s *Session) MarkSet() *MarkSet {
	return s.marks
}

// Discovered returns the number of objects this session has marked and not
// yet unmarked.
func (s *Session) Discovered() int {
	if s.State() == StateDestroyed {
		return 0
	}
	return s.allObjects.CountNoLock()
}

// ScanFromRoot reports every object reachable from root. The root itself is
// queued without being marked, so it is reported only when one of its
// descendants refers back to it. In that case it is also traversed a second
// time; nothing it references is discovered twice.
func (s *Session) ScanFromRoot(root ObjectRef) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if root != Null && s.rt.ClassOf(root) == nil {
		return apperrors.Newf(apperrors.CodeInvalidInput, "root %d is not a live object", root)
	}
	s.growMarks()
	s.resetQueue()
	s.setState(StateSeeded)
	if root != Null {
		if err := s.queue.Push(root); err != nil {
			return err
		}
	}
	return s.DrainAndReport()
}

// ScanAllStatics seeds from the statics of every static owner, then drains
// and reports.
func (s *Session) ScanAllStatics() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.growMarks()
	s.resetQueue()
	s.setState(StateSeeded)
	for _, owner := range s.rt.StaticOwners() {
		if err := s.seedStatics(owner); err != nil {
			return s.fail("seed statics", err)
		}
	}
	return s.DrainAndReport()
}

// CollectStaticsBatch seeds from the static owners in [start, start+count)
// without draining. reset clears the work queue first.
func (s *Session) CollectStaticsBatch(reset bool, start, count int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if start < 0 || count < 0 {
		return apperrors.Newf(apperrors.CodeInvalidInput, "invalid statics batch [%d, +%d)", start, count)
	}
	if reset {
		s.growMarks()
		s.resetQueue()
	}
	s.setState(StateSeeded)

	owners := s.rt.StaticOwners()
	end := start + count
	if end > len(owners) {
		end = len(owners)
	}
	for i := start; i < end; i++ {
		if err := s.seedStatics(owners[i]); err != nil {
			return s.fail("seed statics", err)
		}
	}
	return nil
}

// ScanStaticsSharded seeds from the static owners assigned to worker out of
// workers by round robin, then drains and reports. Owners are numbered from
// 1, so worker 1 takes the first owner and worker 0 the workers-th.
func (s *Session) ScanStaticsSharded(worker, workers int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if workers < 1 || worker < 0 || worker >= workers {
		return apperrors.Newf(apperrors.CodeInvalidInput, "invalid shard %d of %d", worker, workers)
	}
	s.growMarks()
	s.resetQueue()
	s.setState(StateSeeded)

	running := 0
	for _, owner := range s.rt.StaticOwners() {
		running++
		if running%workers != worker {
			continue
		}
		if err := s.seedStatics(owner); err != nil {
			return s.fail("seed statics", err)
		}
	}
	return s.DrainAndReport()
}

// StaticsCount returns the number of static owners.
func (s *Session) StaticsCount() int {
	return len(s.rt.StaticOwners())
}

// DrainAndReport traverses everything queued, then hands the objects
// discovered since the previous report to the collector.
func (s *Session) DrainAndReport() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.setState(StateDraining)
	if err := s.drain(); err != nil {
		return s.fail("drain", err)
	}
	reported, err := s.report()
	if err != nil {
		return s.fail("report", err)
	}
	s.setState(StateReported)
	s.logger.Debug("drained and reported %d objects, %d discovered so far", reported, s.allObjects.CountNoLock())
	return nil
}

// Finalize unmarks every object this session discovered and forgets them.
// It is idempotent.
func (s *Session) Finalize() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.allObjects.ResetIterator()
	for obj, ok := s.allObjects.Next(); ok; obj, ok = s.allObjects.Next() {
		s.marks.Unmark(obj)
	}
	s.allObjects.Clear()
	s.resetQueue()
	s.setState(StateFinalized)
	return nil
}

// End releases the session's arenas. Ending a session whose marks have not
// been cleared by Finalize fails with ErrNotFinalized and leaves it open.
func (s *Session) End() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if n := s.allObjects.CountNoLock(); n > 0 {
		return apperrors.Wrap(apperrors.CodeNotFinalized, "end session",
			fmt.Errorf("%d objects still marked", n))
	}
	s.allObjects.Destroy()
	s.queue.Destroy()
	s.local.Reset()
	s.setState(StateDestroyed)
	return nil
}

// growMarks replaces a private mark set that no longer covers the runtime's
// objects. Only an empty one is replaced; objects outside the set are
// rejected by addCandidate.
func (s *Session) growMarks() {
	need := s.rt.ObjectCapacity()
	if need <= s.marks.Capacity() || !s.ownsMarks || s.allObjects.CountNoLock() > 0 {
		return
	}
	s.logger.Debug("mark set grown from %d to %d refs", s.marks.Capacity(), need)
	s.marks = NewMarkSet(need)
}

func (s *Session) checkOpen() error {
	if s == nil || s.State() == StateDestroyed {
		return apperrors.ErrSessionClosed
	}
	return nil
}

func (s *Session) resetQueue() {
	s.queue.Lock()
	s.queue.Clear()
	s.queue.Unlock()
	s.local.Reset()
}

func (s *Session) fail(op string, err error) error {
	if apperrors.IsFatal(err) {
		s.logger.Error("%s aborted: %v", op, err)
	}
	return err
}

func (s *Session) passesFilter(c *typesys.Class) bool {
	return s.filter == nil || typesys.HasParent(c, s.filter)
}

// report hands every object recorded since the last report that passes the
// filter to the collector, in batches of at most ReportBatchSize.
func (s *Session) report() (int, error) {
	reported := 0
	n := 0
	for obj, ok := s.allObjects.Next(); ok; obj, ok = s.allObjects.Next() {
		if !s.passesFilter(s.rt.ClassOf(obj)) {
			continue
		}
		s.batch[n] = obj
		n++
		if n == ReportBatchSize {
			if err := s.emit(n); err != nil {
				return reported, err
			}
			reported += n
			n = 0
		}
	}
	if n > 0 {
		if err := s.emit(n); err != nil {
			return reported, err
		}
		reported += n
	}
	return reported, nil
}

func (s *Session) emit(n int) error {
	s.stats.Reported += int64(n)
	if s.collect == nil {
		return nil
	}
	if err := s.collect(s.batch[:n], s.userData); err != nil {
		return fmt.Errorf("collector: %w", err)
	}
	return nil
}
