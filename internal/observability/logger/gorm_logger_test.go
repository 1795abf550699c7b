package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	cases := []struct {
		sql  string
		want string
	}{
		{"SELECT * FROM billing_records WHERE id = ?", "SELECT"},
		{"INSERT INTO billing_records (id) VALUES (?)", "INSERT"},
		{"UPDATE billing_records SET storage_tier = ?", "UPDATE"},
		{"DELETE FROM billing_records WHERE id = ?", "DELETE"},
		{"WITH tiers AS (SELECT storage_tier FROM billing_records) SELECT * FROM tiers", "SELECT"},
		{"", "UNKNOWN"},
		{"EXPLAIN", "UNKNOWN"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, operationFromSQL(tc.sql), tc.sql)
	}
}

func TestParamsFilterStripsBoundValues(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())

	sql, params := l.ParamsFilter(context.Background(), "SELECT * FROM billing_records WHERE customer_id = ?", "cust-1")
	assert.Equal(t, "SELECT * FROM billing_records WHERE customer_id = ?", sql)
	assert.Nil(t, params)
}

func TestLogModeReturnsIndependentCopy(t *testing.T) {
	base := NewGormLogger(DefaultGormLoggerConfig())

	silenced := base.LogMode(gormlogger.Silent)
	assert.NotSame(t, base, silenced)
	assert.Equal(t, gormlogger.Warn, base.level)
}
