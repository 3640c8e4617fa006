// Package service runs scans end to end: fetch a snapshot, rebuild its heap,
// scan it, and publish the result.
package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/No1412lee/il2cpp-plus/internal/liveness"
	"github.com/No1412lee/il2cpp-plus/internal/report"
	"github.com/No1412lee/il2cpp-plus/internal/repository"
	"github.com/No1412lee/il2cpp-plus/internal/snapshot"
	"github.com/No1412lee/il2cpp-plus/internal/storage"
	"github.com/No1412lee/il2cpp-plus/internal/typesys"
	"github.com/No1412lee/il2cpp-plus/pkg/collections"
	"github.com/No1412lee/il2cpp-plus/pkg/compression"
	"github.com/No1412lee/il2cpp-plus/pkg/config"
	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
	"github.com/No1412lee/il2cpp-plus/pkg/filter"
	"github.com/No1412lee/il2cpp-plus/pkg/telemetry"
	"github.com/No1412lee/il2cpp-plus/pkg/utils"
	"github.com/No1412lee/il2cpp-plus/pkg/writer"
)

// ReportName is the object name summaries are uploaded as.
const ReportName = "summary.json.gz"

// ScanRequest describes one scan.
type ScanRequest struct {
	// Snapshot is a storage key when FromStorage is set, a local path
	// otherwise.
	Snapshot    string
	FromStorage bool
	// Format overrides the format implied by the snapshot's extension.
	Format string

	Mode report.Mode
	// Root is the document id to scan from in root mode. 0 uses the
	// document's first root.
	Root uint32
	// Filter is a class name as written in the snapshot, e.g. "Node" or
	// "Node[]". Empty reports every object.
	Filter string

	// ListObjects adds the document ids of reported objects to the result.
	ListObjects bool
	// Upload publishes the summary to storage.
	Upload bool
}

// ScanResult is the outcome of a successful scan.
type ScanResult struct {
	Summary   *report.Summary
	ObjectIDs []uint32
	ReportKey string
	ReportURL string
	// MemoryPeak is the highest arena usage in bytes when a memory limit
	// is configured.
	MemoryPeak int64
}

// ScanService runs scan requests.
type ScanService struct {
	cfg     config.ScanConfig
	prefix  string
	workDir string

	storage storage.Storage
	repo    repository.ScanRepository
	logger  utils.Logger
	clock   utils.Clock
	tracer  trace.Tracer
	newID   func() string

	// blocks recycles arena blocks across runs when no memory limit is set.
	blocks *collections.PoolAllocator[liveness.ObjectRef]
}

// Option configures a ScanService.
type Option func(*ScanService)

// WithStorage sets the store snapshots are fetched from and reports go to.
func WithStorage(s storage.Storage, reportPrefix string) Option {
	return func(svc *ScanService) {
		svc.storage = s
		svc.prefix = reportPrefix
	}
}

// WithRepository persists every run.
func WithRepository(r repository.ScanRepository) Option {
	return func(svc *ScanService) { svc.repo = r }
}

// WithLogger sets the logger.
func WithLogger(l utils.Logger) Option {
	return func(svc *ScanService) { svc.logger = l }
}

// WithClock sets the clock used for timings.
func WithClock(c utils.Clock) Option {
	return func(svc *ScanService) { svc.clock = c }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(svc *ScanService) { svc.tracer = t }
}

// WithIDGenerator replaces the uuid run ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(svc *ScanService) { svc.newID = fn }
}

// WithWorkDir sets where downloaded snapshots are staged.
func WithWorkDir(dir string) Option {
	return func(svc *ScanService) { svc.workDir = dir }
}

// New creates a ScanService.
func New(cfg config.ScanConfig, opts ...Option) *ScanService {
	svc := &ScanService{
		cfg:     cfg,
		workDir: os.TempDir(),
		logger:  &utils.NullLogger{},
		clock:   utils.NewRealClock(),
		tracer:  telemetry.Tracer(),
		newID:   uuid.NewString,
		blocks:  collections.NewPoolAllocator[liveness.ObjectRef](0),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// run holds the state of one Run call.
type run struct {
	id     string
	req    ScanRequest
	timer  *utils.StageTimer
	logger utils.Logger

	snap   *snapshot.Snapshot
	hist   *report.Histogram
	list   *report.ObjectList
	cost   *liveness.CostRecorder
	budget *collections.BudgetAllocator[liveness.ObjectRef]
}

// Run executes req. Every stage is timed and traced; when a repository is
// configured a failed run is recorded as well.
func (s *ScanService) Run(ctx context.Context, req ScanRequest) (res *ScanResult, err error) {
	if req.Mode == "" {
		req.Mode = report.ModeStatics
	}
	if req.Mode != report.ModeRoot && req.Mode != report.ModeStatics {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "unknown scan mode %q", req.Mode)
	}
	if req.Snapshot == "" {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "snapshot is required")
	}
	if (req.FromStorage || req.Upload) && s.storage == nil {
		return nil, apperrors.New(apperrors.CodeConfigError, "storage is not configured")
	}

	startedAt := s.clock.Now()
	r := &run{
		id:    s.newID(),
		req:   req,
		timer: utils.NewStageTimer("scan", utils.WithClock(s.clock)),
	}
	r.logger = s.logger.WithField("run", r.id)

	ctx, span := s.tracer.Start(ctx, "scan.run", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.String("scan.mode", string(req.Mode)),
		attribute.String("scan.snapshot", req.Snapshot),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	r.logger.Info("starting %s scan of %s", req.Mode, req.Snapshot)
	summary, err := s.execute(ctx, r)
	if err != nil {
		r.logger.Error("scan failed: %v", err)
		s.recordFailure(ctx, r, err)
		return nil, err
	}
	summary.StartedAt = startedAt

	res = &ScanResult{Summary: summary}
	if r.list != nil {
		for _, ref := range r.list.Refs() {
			res.ObjectIDs = append(res.ObjectIDs, r.snap.ID(ref))
		}
	}
	if r.budget != nil {
		res.MemoryPeak = r.budget.Peak()
	}

	if req.Upload {
		if err = s.stage(ctx, r, "upload", func(ctx context.Context) error {
			return s.upload(ctx, r, res)
		}); err != nil {
			s.recordFailure(ctx, r, err)
			return nil, err
		}
	}

	if s.repo != nil {
		if err = s.stage(ctx, r, "persist", func(ctx context.Context) error {
			return s.persist(ctx, res)
		}); err != nil {
			return nil, err
		}
	}

	summary.Stages = r.timer.Stages()
	summary.Duration = r.timer.Total()
	r.logger.Info("scan finished: reported=%d in %v", summary.Reported, summary.Duration)
	return res, nil
}

func (s *ScanService) execute(ctx context.Context, r *run) (*report.Summary, error) {
	var path string
	err := s.stage(ctx, r, "fetch", func(ctx context.Context) error {
		var err error
		path, err = s.fetch(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	if r.req.FromStorage {
		defer os.RemoveAll(filepath.Dir(path))
	}

	var doc *snapshot.Document
	if err := s.stage(ctx, r, "load", func(context.Context) error {
		var err error
		doc, err = loadDocument(path, r.req.Format)
		return err
	}); err != nil {
		return nil, err
	}

	if err := s.stage(ctx, r, "build", func(context.Context) error {
		var err error
		r.snap, err = doc.Build()
		return err
	}); err != nil {
		return nil, err
	}

	var opts []report.SummaryOption
	if err := s.stage(ctx, r, "scan", func(ctx context.Context) error {
		var err error
		opts, err = s.scan(ctx, r)
		return err
	}); err != nil {
		return nil, err
	}

	opts = append(opts,
		report.WithTimer(r.timer),
		report.WithCategories(filter.NewClassFilter(s.cfg.AppPrefixes...), s.cfg.HideSystem),
	)
	if r.cost != nil {
		opts = append(opts, report.WithCostReport(r.cost, s.cfg.ProfileThreshold()))
	}
	summary := report.NewSummary(r.id, r.req.Mode, r.hist, s.cfg.TopClasses, opts...)
	summary.Snapshot = r.req.Snapshot
	summary.Filter = r.req.Filter
	summary.Root = r.req.Root
	return summary, nil
}

// stage runs fn as a timed child span of ctx.
func (s *ScanService) stage(ctx context.Context, r *run, name string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "scan."+name)
	err := r.timer.Time(name, func() error { return fn(ctx) })
	telemetry.EndSpan(span, err)
	return err
}

func (s *ScanService) fetch(ctx context.Context, r *run) (string, error) {
	if !r.req.FromStorage {
		return r.req.Snapshot, nil
	}
	dir, err := os.MkdirTemp(s.workDir, "liveness-"+r.id+"-")
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeDownloadError, "create work directory", err)
	}
	local := filepath.Join(dir, filepath.Base(r.req.Snapshot))
	if err := s.storage.DownloadFile(ctx, r.req.Snapshot, local); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return local, nil
}

func loadDocument(path, format string) (*snapshot.Document, error) {
	if format == "" {
		return snapshot.LoadFile(path)
	}
	f, err := snapshot.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.CodeNotFound, "snapshot "+path, err)
		}
		return nil, err
	}
	defer file.Close()
	rc, err := compression.AutoReader(file)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParseError, "decompress snapshot", err)
	}
	defer rc.Close()
	return snapshot.Load(rc, f)
}

func (s *ScanService) scan(ctx context.Context, r *run) ([]report.SummaryOption, error) {
	var only *typesys.Class
	if r.req.Filter != "" {
		c, ok := r.snap.Class(r.req.Filter)
		if !ok {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "filter class %q not in snapshot", r.req.Filter)
		}
		only = c
	}

	heap := r.snap.Heap
	r.hist = report.NewHistogram(heap)
	collect := r.hist.Collect
	if r.req.ListObjects {
		r.list = &report.ObjectList{}
		collect = report.Tee(r.hist.Collect, r.list.Collect)
	}

	var alloc collections.Allocator[liveness.ObjectRef] = s.blocks
	if s.cfg.MemoryLimit > 0 {
		r.budget = collections.NewBudgetAllocator[liveness.ObjectRef](s.cfg.MemoryLimit)
		alloc = r.budget
	}
	var profiler liveness.Profiler
	if s.cfg.Profile {
		r.cost = liveness.NewCostRecorder()
		profiler = r.cost
	}

	if r.req.Mode == report.ModeStatics {
		partition, err := liveness.ParsePartition(s.cfg.Partition)
		if err != nil {
			return nil, err
		}
		res, err := liveness.RunPass(ctx, heap, liveness.PassConfig{
			Workers:    s.cfg.Workers,
			MinSteal:   s.cfg.MinSteal,
			BatchSize:  s.cfg.BatchSize,
			Partition:  partition,
			Timeout:    s.cfg.Timeout(),
			Filter:     only,
			Collector:  collect,
			Allocator:  alloc,
			YieldEvery: s.cfg.YieldEvery,
			Profiler:   profiler,
			Clock:      s.clock,
			Logger:     r.logger,
		})
		if err != nil {
			return nil, err
		}
		return []report.SummaryOption{report.WithPass(res)}, nil
	}

	root, err := s.resolveRoot(r)
	if err != nil {
		return nil, err
	}
	sess, err := liveness.BeginSession(heap, liveness.SessionOptions{
		Filter:         only,
		Collector:      collect,
		Allocator:      alloc,
		MaxObjectCount: s.cfg.MaxObjectCount,
		YieldEvery:     s.cfg.YieldEvery,
		Profiler:       profiler,
		Clock:          s.clock,
		Logger:         r.logger,
		Name:           "root",
	})
	if err != nil {
		return nil, err
	}
	scanErr := sess.ScanFromRoot(root)
	stats := sess.Stats()
	if err := sess.Finalize(); err != nil && scanErr == nil {
		scanErr = err
	}
	if err := sess.End(); err != nil && scanErr == nil {
		scanErr = err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return []report.SummaryOption{report.WithStats(stats)}, nil
}

func (s *ScanService) resolveRoot(r *run) (liveness.ObjectRef, error) {
	if r.req.Root == 0 {
		roots := r.snap.Roots()
		if len(roots) == 0 {
			return liveness.Null, apperrors.New(apperrors.CodeInvalidInput, "no root given and the snapshot declares none")
		}
		r.req.Root = r.snap.ID(roots[0])
		return roots[0], nil
	}
	ref, ok := r.snap.Ref(r.req.Root)
	if !ok {
		return liveness.Null, apperrors.Newf(apperrors.CodeNotFound, "root object %d not in snapshot", r.req.Root)
	}
	return ref, nil
}

func (s *ScanService) upload(ctx context.Context, r *run, res *ScanResult) error {
	res.Summary.Stages = r.timer.Stages()
	res.Summary.Duration = r.timer.Total()

	var buf bytes.Buffer
	if err := writer.NewCompressedWriter[*report.Summary](compression.TypeGzip).Write(res.Summary, &buf); err != nil {
		return apperrors.Wrap(apperrors.CodeUploadError, "encode summary", err)
	}
	key := storage.ReportKey(s.prefix, r.id, ReportName)
	if err := s.storage.Upload(ctx, key, &buf); err != nil {
		return err
	}
	res.ReportKey = key
	res.ReportURL = s.storage.GetURL(key)
	r.logger.Info("summary uploaded to %s", res.ReportURL)
	return nil
}

func (s *ScanService) persist(ctx context.Context, res *ScanResult) error {
	rec := repository.NewScanRun(res.Summary, repository.RunStatusSucceeded, "")
	rec.ReportURL = res.ReportURL
	if err := s.repo.SaveRun(ctx, rec); err != nil {
		return err
	}
	counts := repository.NewClassCounts(res.Summary.RunID, res.Summary.Classes)
	return s.repo.SaveClassCounts(ctx, res.Summary.RunID, counts)
}

// recordFailure stores a failed run. Errors are logged only, the scan error
// is what the caller sees.
func (s *ScanService) recordFailure(ctx context.Context, r *run, cause error) {
	if s.repo == nil {
		return
	}
	rec := &repository.ScanRun{
		RunID:      r.id,
		Mode:       string(r.req.Mode),
		Snapshot:   r.req.Snapshot,
		Filter:     r.req.Filter,
		DurationMs: r.timer.Total().Milliseconds(),
		Status:     repository.RunStatusFailed,
		StatusInfo: cause.Error(),
	}
	if err := s.repo.SaveRun(ctx, rec); err != nil {
		r.logger.Warn("failed to record failed run: %v", err)
	}
}
