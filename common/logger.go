package common

import (
	"sync"

	"go.uber.org/zap"
)

var (
	loggerMu sync.RWMutex
	logger   = zap.NewNop().Sugar()
)

// InitLogger installs the default production logger. Safe to call more
// than once.
func InitLogger() {
	l, err := zap.NewProduction()
	if err != nil {
		return
	}
	SetLogger(l.Sugar())
}

// SetLogger replaces the process-wide logger sink.
func SetLogger(l *zap.SugaredLogger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// Log returns the current logger sink.
func Log() *zap.SugaredLogger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}
