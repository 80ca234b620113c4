// Package zerolog bridges a zerolog.Logger to the glog contracts used by the
// quickbooks service, so hosts logging with zerolog get the service's
// structured lines in the same stream.
package zerolog

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/rs/zerolog"
)

type Logger struct {
	zl zerolog.Logger
}

func New(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

func (l *Logger) Trace(msg string, args ...any) { l.emit(l.zl.Trace(), msg, args) }
func (l *Logger) Debug(msg string, args ...any) { l.emit(l.zl.Debug(), msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.emit(l.zl.Info(), msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.emit(l.zl.Warn(), msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.emit(l.zl.Error(), msg, args) }

// Fatal logs at fatal level without exiting the process.
func (l *Logger) Fatal(msg string, args ...any) {
	l.emit(l.zl.WithLevel(zerolog.FatalLevel), msg, args)
}

// WithContext prefers a logger attached to ctx with zerolog's WithContext.
func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	if attached := zerolog.Ctx(ctx); attached != nil && attached.GetLevel() != zerolog.Disabled {
		return &Logger{zl: *attached}
	}
	return l
}

func (l *Logger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	return &Logger{zl: l.zl.With().Fields(fields).Logger()}
}

func (l *Logger) emit(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	event.Fields(pairs(args)).Msg(msg)
}

// pairs turns key/value arguments into a map. A dangling value is kept
// under "extra".
func pairs(args []any) map[string]any {
	fields := make(map[string]any, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["extra"] = args[i]
			break
		}
		key := strings.TrimSpace(fmt.Sprint(args[i]))
		if key == "" {
			continue
		}
		if err, ok := args[i+1].(error); ok {
			fields[key] = err.Error()
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}

// Provider hands out loggers tagged with a "logger" field.
type Provider struct {
	zl zerolog.Logger
}

func NewProvider(zl zerolog.Logger) *Provider {
	return &Provider{zl: zl}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return New(p.zl)
	}
	return New(p.zl.With().Str("logger", name).Logger())
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.FieldsLogger   = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
