package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arcade/backend/internal/infrastructure/telemetry"
)

type ledgerRow struct {
	ID     uint
	Amount int64
}

func (ledgerRow) TableName() string { return "ledger_rows" }

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&ledgerRow{}))
	return db
}

func TestInstrumentDB_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p := setup(t, telemetry.ExportConfig{Metrics: true}, telemetry.WithMetricReader(reader))
	db := openSQLite(t)

	inst, err := telemetry.InstrumentDB(db, telemetry.DBConfig{System: "sqlite", Metrics: true}, p.Meter, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close() })

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).Create(&ledgerRow{Amount: 500}).Error)
	var rows []ledgerRow
	require.NoError(t, db.WithContext(ctx).Find(&rows).Error)
	require.NoError(t, db.WithContext(ctx).Exec("DELETE FROM ledger_rows").Error)

	metrics := collect(t, reader)
	assert.Equal(t, int64(3), sumOf(t, metrics["db_query_total"]))

	ops := map[string]bool{}
	for _, dp := range metrics["db_query_total"].Data.(metricdata.Sum[int64]).DataPoints {
		op, _ := dp.Attributes.Value(telemetry.AttrDBOperation)
		ops[op.AsString()] = true
	}
	assert.Equal(t, map[string]bool{"INSERT": true, "SELECT": true, "DELETE": true}, ops)

	pool, ok := metrics["db_pool_connections_max"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, pool.DataPoints, 1)
	assert.Equal(t, int64(1), pool.DataPoints[0].Value)
}

func TestInstrumentDB_MetricsOffWithoutMeter(t *testing.T) {
	db := openSQLite(t)

	inst, err := telemetry.InstrumentDB(db, telemetry.DBConfig{System: "sqlite", Metrics: true}, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, inst.Close())

	require.NoError(t, db.Create(&ledgerRow{Amount: 1}).Error)
}

func TestInstrumentDB_AnnotatesActiveSpan(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	db := openSQLite(t)
	_, err := telemetry.InstrumentDB(db, telemetry.DBConfig{System: "sqlite", SlowThreshold: 1}, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, span := tp.Tracer("test").Start(context.Background(), "billing.charge")
	require.NoError(t, db.WithContext(ctx).Create(&ledgerRow{Amount: 500}).Error)
	err = db.WithContext(ctx).Exec("INSERT INTO missing_table (id) VALUES (1)").Error
	require.Error(t, err)
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	attrs := spans[0].Attributes
	assert.Contains(t, attrs, attribute.String("db.sql.table", "ledger_rows"))
	assert.Contains(t, attrs, attribute.Bool("db.slow_query", true))
	assert.Equal(t, "Error", spans[0].Status.Code.String())
}

func TestInstrumentDB_Tracing(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p := setup(t, telemetry.ExportConfig{Traces: true, SamplingRatio: 1}, telemetry.WithSpanExporter(exp))
	db := openSQLite(t)

	_, err := telemetry.InstrumentDB(db, telemetry.DBConfig{System: "sqlite", Tracing: true}, nil, zap.NewNop())
	require.NoError(t, err)

	var rows []ledgerRow
	require.NoError(t, db.WithContext(context.Background()).Find(&rows).Error)
	require.NoError(t, p.Flush(context.Background()))

	assert.NotEmpty(t, exp.GetSpans(), "otelgorm opens a span per statement")
}
