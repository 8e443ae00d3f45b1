package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig configures continuous profiling through Pyroscope.
type ProfilerConfig struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
	// Basic auth is only sent when both are set.
	BasicAuthUser     string
	BasicAuthPassword string
	// Types defaults to DefaultProfileTypes.
	Types []pyroscope.ProfileType
	// Sampling rates for the mutex and block profiles; 0 means 5.
	MutexProfileFraction int
	BlockProfileRate     int
}

// DefaultProfileTypes covers CPU, heap, goroutines and mutex contention,
// which is where row-lock waits show up.
var DefaultProfileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
}

// Profiler owns the running Pyroscope session, if any.
type Profiler struct {
	session *pyroscope.Profiler
	log     *zap.Logger
	once    sync.Once
}

// NewProfiler starts profiling when cfg.Enabled; otherwise it returns an
// idle Profiler.
func NewProfiler(cfg ProfilerConfig, log *zap.Logger) (*Profiler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Profiler{log: log}
	if !cfg.Enabled {
		return p, nil
	}
	if cfg.ServerAddress == "" || cfg.ApplicationName == "" {
		return nil, errors.New("profiler needs both a server address and an application name")
	}

	types := cfg.Types
	if len(types) == 0 {
		types = DefaultProfileTypes
	}
	for _, t := range types {
		switch t {
		case pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration:
			runtime.SetMutexProfileFraction(orDefault(cfg.MutexProfileFraction, 5))
		case pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration:
			runtime.SetBlockProfileRate(orDefault(cfg.BlockProfileRate, 5))
		}
	}

	tags := map[string]string{}
	if host, _ := os.Hostname(); host != "" {
		tags["hostname"] = host
	}
	if pod := os.Getenv("POD_NAME"); pod != "" {
		tags["pod"] = pod
	}

	session, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.ApplicationName,
		ServerAddress:     cfg.ServerAddress,
		BasicAuthUser:     cfg.BasicAuthUser,
		BasicAuthPassword: cfg.BasicAuthPassword,
		Logger:            log.Named("pyroscope").Sugar(),
		Tags:              tags,
		ProfileTypes:      types,
	})
	if err != nil {
		return nil, fmt.Errorf("start pyroscope: %w", err)
	}
	p.session = session
	log.Info("Continuous profiling started",
		zap.String("server", cfg.ServerAddress),
		zap.String("application", cfg.ApplicationName),
		zap.Int("profile_types", len(types)),
	)
	return p, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// IsEnabled reports whether a profiling session is running.
func (p *Profiler) IsEnabled() bool {
	return p != nil && p.session != nil
}

// Stop flushes and ends the session. Later calls are no-ops.
func (p *Profiler) Stop() error {
	if !p.IsEnabled() {
		return nil
	}
	var err error
	p.once.Do(func() {
		if err = p.session.Stop(); err == nil {
			p.log.Info("Continuous profiling stopped")
		}
	})
	return err
}

// Profiling label keys.
const (
	ProfilingLabelController = "controller"
	ProfilingLabelRoute      = "route"
	ProfilingLabelMethod     = "method"
	ProfilingLabelOperatorID = "operator_id"
	ProfilingLabelOperation  = "operation"
)

// maxLabelValueLength caps label values before they reach pprof.
const maxLabelValueLength = 128

// unboundedLabels never become pprof labels: every session, order and
// request would open a new series.
var unboundedLabels = map[string]struct{}{
	"session_id": {},
	"order_no":   {},
	"request_id": {},
	"trace_id":   {},
	"span_id":    {},
}

// WithProfilingLabels runs fn with labels attached to every sample it
// produces. Empty and unbounded labels are dropped.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := labelPairs(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// OperationLabels is extra plus the operation label.
func OperationLabels(operation string, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+1)
	for k, v := range extra {
		labels[k] = v
	}
	labels[ProfilingLabelOperation] = operation
	return labels
}

// labelPairs flattens labels into key/value pairs sorted by normalized key.
func labelPairs(labels map[string]string) []string {
	clean := make(map[string]string, len(labels))
	for k, v := range labels {
		key := normalizeLabelKey(k)
		if key == "" || v == "" {
			continue
		}
		if _, skip := unboundedLabels[key]; skip {
			continue
		}
		if len(v) > maxLabelValueLength {
			v = v[:maxLabelValueLength]
		}
		clean[key] = v
	}

	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, clean[k])
	}
	return pairs
}

// normalizeLabelKey lowercases k and keeps [a-z0-9_], mapping '-' and ' '
// to '_'.
func normalizeLabelKey(k string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == '-', r == ' ':
			return '_'
		default:
			return -1
		}
	}, k)
}
