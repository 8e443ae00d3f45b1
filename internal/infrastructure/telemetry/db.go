package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig controls GORM instrumentation.
type DBConfig struct {
	// System is the db.system value reported on spans, e.g. "postgresql".
	System string
	// Tracing registers otelgorm so each statement gets its own span.
	Tracing bool
	// IncludeSQLVariables puts bound values into db.statement. Development only.
	IncludeSQLVariables bool
	// Metrics records query counts, latency and pool usage.
	Metrics       bool
	SlowThreshold time.Duration
}

// DBInstrumentation times every GORM statement. Slow or failed statements
// are flagged on the active span and, when metrics are on, counted.
type DBInstrumentation struct {
	cfg DBConfig
	log *zap.Logger

	queries  *Counter
	latency  *Histogram
	slow     *Counter
	poolStat metric.Registration
}

type statementStartKey struct{}

// InstrumentDB attaches tracing and metrics to db per cfg. Close the
// result on shutdown to detach the pool observer.
func InstrumentDB(db *gorm.DB, cfg DBConfig, meters *MeterProvider, log *zap.Logger) (*DBInstrumentation, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 200 * time.Millisecond
	}
	d := &DBInstrumentation{cfg: cfg, log: log}

	if cfg.Metrics && meters.IsEnabled() {
		if err := d.initMetrics(db, meters.Meter("arcade.db")); err != nil {
			return nil, err
		}
	}

	// Registered ahead of otelgorm so the after hooks still see the
	// statement span open.
	if err := db.Use(d); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("register db instrumentation: %w", err)
	}

	if cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.System)}
		if !cfg.IncludeSQLVariables {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("register otelgorm: %w", err)
		}
	}

	log.Info("Database instrumentation enabled",
		zap.String("db_system", cfg.System),
		zap.Bool("tracing", cfg.Tracing),
		zap.Bool("metrics", d.queries != nil),
		zap.Duration("slow_threshold", cfg.SlowThreshold),
	)
	return d, nil
}

func (d *DBInstrumentation) initMetrics(db *gorm.DB, meter metric.Meter) error {
	var err error
	if d.queries, err = NewCounter(meter, "db_query_total", "Statements executed by operation", "{query}"); err != nil {
		return err
	}
	if d.latency, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return err
	}
	if d.slow, err = NewCounter(meter, "db_slow_query_total", "Statements slower than the slow threshold", "{query}"); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("pool stats: %w", err)
	}
	conns, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Pool connections by state"), metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	maxConns, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Pool connection limit"), metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Connection requests that had to wait"), metric.WithUnit("{wait}"))
	if err != nil {
		return err
	}
	d.poolStat, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := sqlDB.Stats()
		o.ObserveInt64(conns, int64(s.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(conns, int64(s.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(conns, int64(s.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
		o.ObserveInt64(maxConns, int64(s.MaxOpenConnections))
		o.ObserveInt64(waits, s.WaitCount)
		return nil
	}, conns, maxConns, waits)
	return err
}

// Close stops observing the connection pool.
func (d *DBInstrumentation) Close() error {
	if d == nil || d.poolStat == nil {
		return nil
	}
	return d.poolStat.Unregister()
}

// Name implements gorm.Plugin.
func (d *DBInstrumentation) Name() string {
	return "arcade:db_instrumentation"
}

// Initialize implements gorm.Plugin.
func (d *DBInstrumentation) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		operation string
		before    func(string, func(*gorm.DB)) error
		after     func(string, func(*gorm.DB)) error
	}{
		{"INSERT", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"SELECT", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"UPDATE", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"DELETE", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for i, h := range hooks {
		name := fmt.Sprintf("%s:%d", d.Name(), i)
		if err := h.before(name+":before", markStart); err != nil {
			return err
		}
		if err := h.after(name+":after", d.finish(h.operation)); err != nil {
			return err
		}
	}
	return nil
}

func markStart(tx *gorm.DB) {
	if tx.Statement.Context == nil {
		tx.Statement.Context = context.Background()
	}
	tx.Statement.Context = context.WithValue(tx.Statement.Context, statementStartKey{}, time.Now())
}

// finish records one completed statement. An empty operation is read off
// the SQL text, for Row and Raw statements.
func (d *DBInstrumentation) finish(operation string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		ctx := tx.Statement.Context
		if ctx == nil {
			return
		}
		start, ok := ctx.Value(statementStartKey{}).(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)
		slow := elapsed > d.cfg.SlowThreshold
		op := operation
		if op == "" {
			op = sqlVerb(tx.Statement.SQL.String())
		}
		table := tx.Statement.Table

		if d.queries != nil {
			d.queries.Inc(ctx, AttrDBOperation.String(op))
			d.latency.RecordDuration(ctx, elapsed, AttrDBOperation.String(op))
			if slow {
				d.slow.Inc(ctx, AttrDBTable.String(orUnknown(table)))
			}
		}

		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return
		}
		attrs := []attribute.KeyValue{attribute.Int64("db.rows_affected", tx.Statement.RowsAffected)}
		if table != "" {
			attrs = append(attrs, attribute.String("db.sql.table", table))
		}
		if slow {
			attrs = append(attrs,
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
		span.SetAttributes(attrs...)
		if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			span.RecordError(tx.Error)
			span.SetStatus(codes.Error, tx.Error.Error())
		}
	}
}

func sqlVerb(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexAny(sql, " \t\n("); i > 0 {
		sql = sql[:i]
	}
	switch verb := strings.ToUpper(sql); verb {
	case "SELECT", "INSERT", "UPDATE", "DELETE", "WITH":
		return verb
	default:
		return "OTHER"
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
