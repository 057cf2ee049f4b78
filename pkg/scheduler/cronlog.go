package scheduler

import (
	"fmt"

	"tender-ingest/pkg/logger"
)

// cronLogger routes robfig/cron's logging into the zap logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(kv []any) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
