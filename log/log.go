// Package log wraps github.com/ethereum/go-ethereum/log with a per-component
// name, mirroring the teacher's plugin/evm/log.go / logger_adapter.go thin
// wrapper pattern so every package gets consistent structured logging
// without threading a logger instance through every call site by hand.
package log

import (
	"os"

	ethlog "github.com/ethereum/go-ethereum/log"
)

// Logger is a structured, leveled logger bound to one component name.
type Logger struct {
	component string
	inner     ethlog.Logger
}

// New returns a Logger tagged with component, e.g. "orderpool.indexer".
func New(component string) Logger {
	return Logger{component: component, inner: ethlog.Root().With("component", component)}
}

func (l Logger) Debug(msg string, ctx ...interface{}) { l.inner.Debug(msg, ctx...) }
func (l Logger) Info(msg string, ctx ...interface{})  { l.inner.Info(msg, ctx...) }
func (l Logger) Warn(msg string, ctx ...interface{})  { l.inner.Warn(msg, ctx...) }
func (l Logger) Error(msg string, ctx ...interface{}) { l.inner.Error(msg, ctx...) }

// With returns a child logger carrying additional key/value context.
func (l Logger) With(ctx ...interface{}) Logger {
	return Logger{component: l.component, inner: l.inner.With(ctx...)}
}

// SetLevel installs a terminal handler at the given level as the process
// default, grounded on cmd/evm-node/main.go's app.Before hook.
func SetLevel(level ethlog.Level) {
	ethlog.SetDefault(ethlog.NewLogger(ethlog.NewTerminalHandlerWithLevel(os.Stderr, level, true)))
}
