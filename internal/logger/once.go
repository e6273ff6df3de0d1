package logger

import (
	"sync"

	"go.uber.org/zap"
)

// Once forwards each message key to the wrapped logger only the first time
// it is seen. It is safe for concurrent use.
type Once struct {
	log  *zap.Logger
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewOnce wraps log. A nil log discards.
func NewOnce(log *zap.Logger) *Once {
	if log == nil {
		log = zap.NewNop()
	}
	return &Once{log: log, seen: make(map[string]struct{})}
}

// first reports whether key has not been logged before and records it.
func (o *Once) first(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.seen[key]; ok {
		return false
	}
	o.seen[key] = struct{}{}
	return true
}

// Info logs msg at info level once per key.
func (o *Once) Info(key, msg string, fields ...zap.Field) {
	if o.first(key) {
		o.log.Info(msg, fields...)
	}
}

// Warn logs msg at warn level once per key.
func (o *Once) Warn(key, msg string, fields ...zap.Field) {
	if o.first(key) {
		o.log.Warn(msg, fields...)
	}
}

// Error logs msg at error level once per key.
func (o *Once) Error(key, msg string, fields ...zap.Field) {
	if o.first(key) {
		o.log.Error(msg, fields...)
	}
}

// Seen reports whether key has already been logged.
func (o *Once) Seen(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.seen[key]
	return ok
}

// Reset forgets every key so each message may be logged again.
func (o *Once) Reset() {
	o.mu.Lock()
	o.seen = make(map[string]struct{})
	o.mu.Unlock()
}
