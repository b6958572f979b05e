package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// SQLOptions tune the statement log. Bound parameters can hold member
// emails and phone numbers, so WithParams stays off in production.
type SQLOptions struct {
	SlowQuery  time.Duration
	WithParams bool
	Verbose    bool
}

// SQLLogger routes gorm output to the zap logger carried by the context,
// so statements line up with request_id and location_id.
type SQLLogger struct {
	level      gormlogger.LogLevel
	slowQuery  time.Duration
	withParams bool
}

func NewSQLLogger(opts SQLOptions) *SQLLogger {
	l := &SQLLogger{level: gormlogger.Warn, slowQuery: opts.SlowQuery, withParams: opts.WithParams}
	if opts.Verbose {
		l.level = gormlogger.Info
	}
	if l.slowQuery == 0 {
		l.slowQuery = 250 * time.Millisecond
	}
	return l
}

func (l *SQLLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *SQLLogger) Info(ctx context.Context, format string, args ...interface{}) {
	l.printf(ctx, gormlogger.Info, zapcore.InfoLevel, format, args)
}

func (l *SQLLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.printf(ctx, gormlogger.Warn, zapcore.WarnLevel, format, args)
}

func (l *SQLLogger) Error(ctx context.Context, format string, args ...interface{}) {
	l.printf(ctx, gormlogger.Error, zapcore.ErrorLevel, format, args)
}

func (l *SQLLogger) printf(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, format string, args []interface{}) {
	if l.level < min {
		return
	}
	FromContext(ctx).Log(level, fmt.Sprintf(format, args...), zap.String("component", "gorm"))
}

// Trace logs failed statements at error, slow ones at warn and, in verbose
// mode, everything else at debug. Missing rows are a normal lookup outcome
// and are not logged.
func (l *SQLLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level == gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	if errors.Is(err, gormlogger.ErrRecordNotFound) {
		err = nil
	}

	var msg string
	var level zapcore.Level
	switch {
	case err != nil && l.level >= gormlogger.Error:
		msg, level = "db.query.failed", zapcore.ErrorLevel
	case elapsed > l.slowQuery && l.level >= gormlogger.Warn:
		msg, level = "db.query.slow", zapcore.WarnLevel
	case l.level >= gormlogger.Info:
		msg, level = "db.query", zapcore.DebugLevel
	default:
		return
	}

	log := FromContext(ctx)
	if !log.Core().Enabled(level) {
		return
	}
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("verb", sqlVerb(sql)),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Duration("elapsed", elapsed),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	log.Log(level, msg, fields...)
}

// ParamsFilter drops bound values from the logged SQL unless enabled.
func (l *SQLLogger) ParamsFilter(_ context.Context, sql string, params ...interface{}) (string, []interface{}) {
	if !l.withParams {
		return sql, nil
	}
	return sql, params
}

var sqlVerbs = map[string]bool{"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true}

// sqlVerb skips a leading CTE to find the statement kind.
func sqlVerb(sql string) string {
	for _, word := range strings.Fields(sql) {
		word = strings.ToUpper(strings.Trim(word, "();"))
		if sqlVerbs[word] {
			return word
		}
	}
	return "OTHER"
}

var _ gormlogger.Interface = (*SQLLogger)(nil)
