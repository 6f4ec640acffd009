package observability

import (
	"fmt"

	"github.com/go-logr/logr"
)

// NewLogr adapts logger to logr for libraries that log through logr, such as
// the OpenTelemetry SDK. logr verbosity 0 maps to Info, anything higher to Debug.
func NewLogr(logger Logger) logr.Logger {
	return logr.New(&logrSink{logger: logger})
}

type logrSink struct {
	logger Logger
	name   string
}

func (s *logrSink) Init(logr.RuntimeInfo) {}

func (s *logrSink) Enabled(int) bool { return true }

func (s *logrSink) Info(level int, msg string, keysAndValues ...any) {
	fields := kvFields(keysAndValues)
	if level > 0 {
		s.logger.Debug(msg, fields...)
		return
	}
	s.logger.Info(msg, fields...)
}

func (s *logrSink) Error(err error, msg string, keysAndValues ...any) {
	s.logger.Error(msg, append(kvFields(keysAndValues), Error(err))...)
}

func (s *logrSink) WithValues(keysAndValues ...any) logr.LogSink {
	return &logrSink{logger: s.logger.With(kvFields(keysAndValues)...), name: s.name}
}

func (s *logrSink) WithName(name string) logr.LogSink {
	if s.name != "" {
		name = s.name + "." + name
	}
	return &logrSink{logger: s.logger.With(String("logger", name)), name: name}
}

func kvFields(keysAndValues []any) []Field {
	fields := make([]Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			fields = append(fields, Any("ignored_key", key))
			break
		}
		fields = append(fields, Any(key, keysAndValues[i+1]))
	}
	return fields
}
