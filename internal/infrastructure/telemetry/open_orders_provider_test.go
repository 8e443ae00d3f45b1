package telemetry_test

import (
	"context"
	"testing"

	"github.com/arcade/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestGormOpenOrdersProvider_CountOpenOrdersByStatus(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE recharge_orders (order_no TEXT PRIMARY KEY, status TEXT NOT NULL)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO recharge_orders (order_no, status) VALUES
		('RC1', 'PENDING'), ('RC2', 'PENDING'), ('RC3', 'SUCCESS'), ('RC4', 'ANOMALY')`).Error)

	counts, err := telemetry.NewGormOpenOrdersProvider(db).CountOpenOrdersByStatus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"PENDING": 2, "PROCESSING": 0}, counts)
}
