// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2024 covcore authors.

// Package lifecycle implements the Lifecycle Controller (spec §4.6):
// the glue that starts a measurement session, reacts to process
// signals by flushing (and, for SIGTERM, re-raising the default
// action so the process still dies the way it would have without
// measurement installed), and wraps the Data Store's combine
// operation for a clean session teardown. It plays the same role the
// corpus's top-level tracer.Start/tracer.Stop pair plays for span
// tracing: a small amount of process-lifetime bookkeeping sitting in
// front of the packages that do the real work.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/nedbat/covcore/config"
	"github.com/nedbat/covcore/datastore"
	"github.com/nedbat/covcore/ext"
	"github.com/nedbat/covcore/internal/log"
)

// EventSource is the surface the Controller drives: a hook-installed
// tracer that can be flushed and uninstalled. Satisfied by
// *tracer.Tracer; kept as an interface so tests can substitute a
// fake without needing a live Data Store.
type EventSource interface {
	Flush() error
	Uninstall()
}

// metricsClient is the subset of *statsd.Client the controller uses,
// kept as an interface so a nil/no-op client and a real one are
// interchangeable without a branch at every call site.
type metricsClient interface {
	Incr(name string, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
	Close() error
}

type noopMetrics struct{}

func (noopMetrics) Incr(string, []string, float64) error           { return nil }
func (noopMetrics) Gauge(string, float64, []string, float64) error { return nil }
func (noopMetrics) Close() error                                   { return nil }

// Option configures a Controller, following the same functional-option
// idiom used by config.Option.
type Option func(*Controller)

// WithStatsdAddr enables metrics reporting to a Datadog Agent's
// DogStatsD listener. Flush counts and the measured-file count are
// reported as the controller flushes.
func WithStatsdAddr(addr string) Option {
	return func(c *Controller) { c.statsdAddr = addr }
}

// WithExtraSignals overrides the flush-without-stop signal set, which
// defaults to SIGUSR1 and SIGUSR2.
func WithExtraSignals(sigs ...os.Signal) Option {
	return func(c *Controller) { c.extraSignals = sigs }
}

// Controller owns a measurement session's process-lifetime concerns:
// the tracer it drives, the data store flushes land in, and the
// signal handlers that keep both safe across a SIGTERM.
type Controller struct {
	store   *datastore.Store
	source  EventSource
	cfg     *config.Config
	metrics metricsClient

	statsdAddr   string
	extraSignals []os.Signal

	flushRequests chan struct{}
	sigCh         chan os.Signal
	extraCh       chan os.Signal
	done          chan struct{}
	wg            sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New builds a Controller for the given store, event source, and
// resolved configuration.
func New(store *datastore.Store, source EventSource, cfg *config.Config, opts ...Option) *Controller {
	c := &Controller{
		store:         store,
		source:        source,
		cfg:           cfg,
		metrics:       noopMetrics{},
		extraSignals:  []os.Signal{syscall.SIGUSR1, syscall.SIGUSR2},
		flushRequests: make(chan struct{}, 8),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start installs signal handling and begins the dedicated flush
// goroutine. It is safe to call only once; later calls are no-ops.
func (c *Controller) Start(ctx context.Context) error {
	var startErr error
	c.startOnce.Do(func() {
		if c.statsdAddr != "" {
			client, err := statsd.New(c.statsdAddr)
			if err != nil {
				startErr = fmt.Errorf("lifecycle: statsd client: %w", err)
				return
			}
			c.metrics = client
		}

		c.logStartup()

		c.sigCh = make(chan os.Signal, 1)
		signal.Notify(c.sigCh, syscall.SIGTERM)
		c.extraCh = make(chan os.Signal, 1)
		if len(c.extraSignals) > 0 {
			signal.Notify(c.extraCh, c.extraSignals...)
		}

		c.wg.Add(1)
		go c.flushLoop()

		c.wg.Add(1)
		go c.signalLoop(ctx)
	})
	return startErr
}

// flushLoop is the "dedicated goroutine" spec §5 calls for: the only
// place that actually touches the Data Store on a flush, so neither
// the SIGTERM handler nor the SIGUSR1/2 handler ever blocks on disk
// I/O from inside signal delivery.
func (c *Controller) flushLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.flushRequests:
			if err := c.source.Flush(); err != nil {
				log.Error("lifecycle: flush failed: %v", err)
				continue
			}
			if files, err := c.store.MeasuredFiles(); err == nil {
				c.metrics.Gauge("covcore.measured_files", float64(len(files)), nil, 1)
			}
			c.metrics.Incr("covcore.flush", nil, 1)
		case <-c.done:
			return
		}
	}
}

func (c *Controller) signalLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-c.sigCh:
			c.requestFlush()
			c.reraiseSIGTERM()
			return
		case <-c.extraCh:
			c.requestFlush()
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

// requestFlush enqueues a flush without blocking; if the channel is
// already full a flush is already pending, so the request is dropped
// rather than piling up behind it.
func (c *Controller) requestFlush() {
	select {
	case c.flushRequests <- struct{}{}:
	default:
	}
}

// reraiseSIGTERM restores the default SIGTERM disposition and sends it
// to this process again, so a measured process still terminates the
// way an unmeasured one would (spec §5's "re-raise default action").
func (c *Controller) reraiseSIGTERM() {
	signal.Reset(syscall.SIGTERM)
	_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
}

// Stop uninstalls the tracer and flushes synchronously, then shuts
// down the controller's background goroutines.
func (c *Controller) Stop() error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.sigCh != nil {
			signal.Stop(c.sigCh)
		}
		if c.extraCh != nil {
			signal.Stop(c.extraCh)
		}
		c.source.Uninstall()
		stopErr = c.source.Flush()
		close(c.done)
		c.wg.Wait()
		_ = c.metrics.Close()
	})
	return stopErr
}

// PrepareSubprocessEnv returns env with COVERAGE_PROCESS_START set to
// the controller's data file path, replacing any earlier entry for that
// variable; env is returned unchanged when no data file is configured.
// No configuration file path is propagated: Config carries none.
func (c *Controller) PrepareSubprocessEnv(env []string) []string {
	if c.cfg.DataFile == "" {
		return env
	}
	entry := ext.EnvProcessStart + "=" + c.cfg.DataFile
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, ext.EnvProcessStart+"=") {
			continue
		}
		out = append(out, kv)
	}
	return append(out, entry)
}

// Combine merges the given data files into the controller's store,
// wrapping datastore.Combine with the identity alias (spec §4.4).
func (c *Controller) Combine(paths []string, keep bool) error {
	return datastore.Combine(c.store, paths, func(path string) string { return path }, keep)
}

// logStartup emits the one-line summary the corpus's startup-log
// facility prints on first Start, gated the same way: only when
// COVERAGE_DEBUG names the "config" facility.
func (c *Controller) logStartup() {
	facility := false
	for _, f := range c.cfg.DebugFacilities {
		if f == "config" {
			facility = true
			break
		}
	}
	if !facility {
		return
	}
	mode := "line"
	if c.cfg.Branch {
		mode = "arc"
	}
	log.Info("covcore starting: sources=%d include=%d omit=%d mode=%s parallel=%v",
		len(c.cfg.Sources), len(c.cfg.Include), len(c.cfg.Omit), mode, c.cfg.ParallelMode)
}
