package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestSQLVerb(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM members":                            "SELECT",
		"  insert into invoices (id) values (1)":           "INSERT",
		"UPDATE member_achievements SET completed_at = ?":  "UPDATE",
		"WITH due AS (DELETE FROM push_tokens) SELECT 1":   "DELETE",
		"":       "OTHER",
		"VACUUM": "OTHER",
	}
	for sql, want := range cases {
		assert.Equal(t, want, sqlVerb(sql), sql)
	}
}

func TestSQLParamsFilter(t *testing.T) {
	ctx := context.Background()

	_, params := NewSQLLogger(SQLOptions{}).ParamsFilter(ctx, "SELECT 1 WHERE id = ?", 42)
	assert.Nil(t, params)

	_, params = NewSQLLogger(SQLOptions{WithParams: true}).ParamsFilter(ctx, "SELECT 1 WHERE id = ?", 42)
	assert.Equal(t, []interface{}{42}, params)
}

func observeGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestSQLTrace(t *testing.T) {
	logs := observeGlobal(t)
	ctx := context.Background()
	l := NewSQLLogger(SQLOptions{SlowQuery: time.Second})
	stmt := func() (string, int64) { return "SELECT * FROM plans", 3 }

	l.Trace(ctx, time.Now(), stmt, nil)
	l.Trace(ctx, time.Now(), stmt, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len(), "fast and not-found statements stay quiet at warn")

	l.Trace(ctx, time.Now().Add(-2*time.Second), stmt, nil)
	l.Trace(ctx, time.Now(), stmt, errors.New("boom"))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "db.query.slow", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "db.query.failed", entries[1].Message)
	assert.Equal(t, "SELECT", entries[1].ContextMap()["verb"])
	assert.Equal(t, int64(3), entries[1].ContextMap()["rows"])

	l.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), stmt, errors.New("boom"))
	assert.Equal(t, 2, logs.Len())
}
