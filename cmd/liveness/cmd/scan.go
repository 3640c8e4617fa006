package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/No1412lee/il2cpp-plus/internal/report"
	"github.com/No1412lee/il2cpp-plus/internal/repository"
	"github.com/No1412lee/il2cpp-plus/internal/service"
	"github.com/No1412lee/il2cpp-plus/internal/storage"
	"github.com/No1412lee/il2cpp-plus/pkg/config"
	"github.com/No1412lee/il2cpp-plus/pkg/writer"
)

var (
	// Scan command flags
	snapshotPath string
	fromStorage  bool
	format       string
	mode         string
	rootID       uint32
	filterClass  string
	listObjects  bool
	upload       bool
	persist      bool
	outputDir    string

	workers     int
	minSteal    int
	batchSize   int
	partition   string
	yieldEvery  int
	maxObjects  int
	memoryLimit int64
	timeoutSec  int
	profile     bool
	topClasses  int
	hideSystem  bool
	appPrefixes []string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a heap snapshot for live objects",
	Long: `Scan a heap snapshot and report the live objects it holds.

Modes:
  - statics: every object reachable from the static fields of all loaded
             classes, scanned by a parallel pass (default)
  - root   : every object reachable from one root object; the root itself is
             reported only when something it reaches refers back to it

A filter restricts reporting to instances of one class and its subclasses.
Array classes are named with a trailing "[]", e.g. "Node[]".

Flags override the matching settings of the configuration file.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	binName := BinName()
	scanCmd.Example = `  # Scan statics with the batched partition and profiling
  ` + binName + ` scan -s ./heap.yaml --partition batched --profile

  # Scan from the snapshot's first root and list the live object ids
  ` + binName + ` scan -s ./heap.json --mode root --list`

	f := scanCmd.Flags()
	f.StringVarP(&snapshotPath, "snapshot", "s", "", "Snapshot file, or storage key with --from-storage")
	f.BoolVar(&fromStorage, "from-storage", false, "Fetch the snapshot from the configured storage")
	f.StringVar(&format, "format", "", "Snapshot format: yaml or json (default: from file extension)")
	f.StringVarP(&mode, "mode", "m", string(report.ModeStatics), "Scan mode: statics or root")
	f.Uint32Var(&rootID, "root", 0, "Root object id for --mode root (default: first root of the snapshot)")
	f.StringVarP(&filterClass, "filter", "f", "", "Report only instances of this class")
	f.BoolVar(&listObjects, "list", false, "Print the ids of every reported object")
	f.BoolVar(&upload, "upload", false, "Upload the summary to the configured storage")
	f.BoolVar(&persist, "db", false, "Record the run in the configured database")
	f.StringVarP(&outputDir, "output", "o", "", "Write summary.json under <output>/<run-id> (default: snapshot.output_dir)")

	f.IntVarP(&workers, "workers", "w", 0, "Workers of a statics pass")
	f.IntVar(&minSteal, "min-steal", 0, "Minimum queue length a worker steals from")
	f.IntVar(&batchSize, "batch", 0, "Static owners per batch in batched partition")
	f.StringVar(&partition, "partition", "", "Statics partition: sharded or batched")
	f.IntVar(&yieldEvery, "yield-every", 0, "Yield the processor every n objects")
	f.IntVar(&maxObjects, "max-objects", 0, "Reserve room for this many objects per session")
	f.Int64Var(&memoryLimit, "memory-limit", 0, "Arena memory limit in bytes, shared by all workers")
	f.IntVar(&timeoutSec, "timeout", 0, "Pass timeout in seconds")
	f.BoolVar(&profile, "profile", false, "Record per-class traversal costs")
	f.IntVarP(&topClasses, "top", "n", 0, "Number of classes in the histogram, 0 for all")
	f.BoolVar(&hideSystem, "hide-system", false, "Leave corlib and engine classes out of the histogram")
	f.StringSliceVar(&appPrefixes, "app-prefix", nil, "Namespace prefix of the game's own classes (repeatable)")
}

// applyScanFlags copies explicitly set flags over the configuration.
func applyScanFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	if f.Changed("workers") {
		c.Scan.Workers = workers
	}
	if f.Changed("min-steal") {
		c.Scan.MinSteal = minSteal
	}
	if f.Changed("batch") {
		c.Scan.BatchSize = batchSize
	}
	if f.Changed("partition") {
		c.Scan.Partition = partition
	}
	if f.Changed("yield-every") {
		c.Scan.YieldEvery = yieldEvery
	}
	if f.Changed("max-objects") {
		c.Scan.MaxObjectCount = maxObjects
	}
	if f.Changed("memory-limit") {
		c.Scan.MemoryLimit = memoryLimit
	}
	if f.Changed("timeout") {
		c.Scan.TimeoutSec = timeoutSec
	}
	if f.Changed("profile") {
		c.Scan.Profile = profile
	}
	if f.Changed("top") {
		c.Scan.TopClasses = topClasses
	}
	if f.Changed("hide-system") {
		c.Scan.HideSystem = hideSystem
	}
	if f.Changed("app-prefix") {
		c.Scan.AppPrefixes = appPrefixes
	}
	if f.Changed("format") {
		c.Snapshot.Format = format
	}
	if f.Changed("output") {
		c.Snapshot.OutputDir = outputDir
	}
	if snapshotPath != "" {
		c.Snapshot.Path = snapshotPath
	}
	if persist {
		c.Database.Enabled = true
	}
	return c.Validate()
}

func runScan(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	if err := applyScanFlags(cmd, cfg); err != nil {
		return err
	}
	if cfg.Snapshot.Path == "" {
		return fmt.Errorf("no snapshot given: use --snapshot or snapshot.path")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []service.Option{service.WithLogger(log)}
	if fromStorage || upload {
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		opts = append(opts, service.WithStorage(store, cfg.Storage.ReportPrefix))
	}
	if cfg.Database.Enabled {
		repos, err := repository.Open(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer repos.Close()
		opts = append(opts, service.WithRepository(repos.Scan))
	}

	svc := service.New(cfg.Scan, opts...)
	res, err := svc.Run(ctx, service.ScanRequest{
		Snapshot:    cfg.Snapshot.Path,
		FromStorage: fromStorage,
		Format:      cfg.Snapshot.Format,
		Mode:        report.Mode(mode),
		Root:        rootID,
		Filter:      filterClass,
		ListObjects: listObjects,
		Upload:      upload,
	})
	if err != nil {
		return err
	}

	res.Summary.Log(log)
	if res.MemoryPeak > 0 {
		log.Info("arena peak: %d of %d bytes", res.MemoryPeak, cfg.Scan.MemoryLimit)
	}
	if res.ReportURL != "" {
		log.Info("summary: %s", res.ReportURL)
	}
	if listObjects {
		printObjectIDs(cmd, res.ObjectIDs)
	}
	return saveSummary(ctx, res.Summary, cfg.Snapshot.OutputDir)
}

func printObjectIDs(cmd *cobra.Command, ids []uint32) {
	out := cmd.OutOrStdout()
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
}

func saveSummary(ctx context.Context, s *report.Summary, dir string) error {
	if dir == "" || ctx.Err() != nil {
		return nil
	}
	runDir := filepath.Join(dir, s.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(runDir, "summary.json")
	if err := writer.NewPrettyJSONWriter[*report.Summary]().WriteToFile(s, path); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	GetLogger().Info("Output files are in: %s", runDir)
	return nil
}
