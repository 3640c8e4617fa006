package pprof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	httppprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/No1412lee/il2cpp-plus/pkg/utils"
)

// Collector is the process profiler.
type Collector struct {
	cfg    Config
	logger utils.Logger
	clock  utils.Clock

	mu      sync.Mutex
	running bool
	stamp   string
	cpuFile *os.File
	files   []string

	server   *http.Server
	listener net.Listener
	serveErr chan error
}

// NewCollector creates a new Collector.
func NewCollector(cfg Config, logger utils.Logger) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Collector{cfg: cfg, logger: logger, clock: utils.NewRealClock()}, nil
}

// Start starts collecting.
func (c *Collector) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("collector is already running")
	}

	var err error
	if c.cfg.Mode == ModeHTTP {
		err = c.startHTTP()
	} else {
		err = c.startFile()
	}
	if err != nil {
		return err
	}
	c.running = true
	return nil
}

func (c *Collector) startFile() error {
	if err := os.MkdirAll(c.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	c.stamp = c.clock.Now().Format("20060102-150405")
	c.files = nil

	if c.cfg.HasProfile(ProfileBlock) {
		runtime.SetBlockProfileRate(1)
	}
	if c.cfg.HasProfile(ProfileMutex) {
		runtime.SetMutexProfileFraction(1)
	}
	if !c.cfg.HasProfile(ProfileCPU) {
		return nil
	}

	f, err := os.Create(c.path(ProfileCPU))
	if err != nil {
		return fmt.Errorf("failed to create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("failed to start CPU profile: %w", err)
	}
	c.cpuFile = f
	return nil
}

func (c *Collector) startHTTP() error {
	ln, err := net.Listen("tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", c.cfg.Addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", httppprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", httppprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", httppprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", httppprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", httppprof.Trace)

	c.listener = ln
	c.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	c.serveErr = make(chan error, 1)
	go func() {
		err := c.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		c.serveErr <- err
	}()
	c.logger.Info("pprof endpoints at http://%s/debug/pprof/", ln.Addr())
	return nil
}

// Addr returns the address the HTTP server listens on, empty in file mode.
func (c *Collector) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Files returns the profiles written by the last Stop.
func (c *Collector) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.files...)
}

// Stop stops collecting. In file mode it writes every configured profile.
func (c *Collector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false

	if c.cfg.Mode == ModeHTTP {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := c.server.Shutdown(ctx)
		if serr := <-c.serveErr; err == nil {
			err = serr
		}
		c.listener = nil
		return err
	}
	return c.stopFile()
}

func (c *Collector) stopFile() error {
	var errs []error
	if c.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := c.cpuFile.Close(); err != nil {
			errs = append(errs, err)
		} else {
			c.files = append(c.files, c.cpuFile.Name())
		}
		c.cpuFile = nil
	}

	for _, pt := range c.cfg.Profiles {
		if pt == ProfileCPU {
			continue
		}
		if err := c.writeSnapshot(pt); err != nil {
			errs = append(errs, err)
		}
	}

	if c.cfg.HasProfile(ProfileBlock) {
		runtime.SetBlockProfileRate(0)
	}
	if c.cfg.HasProfile(ProfileMutex) {
		runtime.SetMutexProfileFraction(0)
	}
	return errors.Join(errs...)
}

func (c *Collector) writeSnapshot(pt ProfileType) (err error) {
	p := pprof.Lookup(string(pt))
	if p == nil {
		return fmt.Errorf("unknown runtime profile %q", pt)
	}
	if pt == ProfileHeap || pt == ProfileAllocs {
		runtime.GC()
	}

	path := c.path(pt)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s profile: %w", pt, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := p.WriteTo(f, 0); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", pt, err)
	}
	c.files = append(c.files, path)
	return nil
}

func (c *Collector) path(pt ProfileType) string {
	return filepath.Join(c.cfg.OutputDir, fmt.Sprintf("%s-%s.pprof", pt, c.stamp))
}
