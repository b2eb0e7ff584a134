package logger

// NoOpLogger is a logger implementation that performs no actions.
// Useful for tests and for components constructed without a logger.
type NoOpLogger struct{}

// Discard is a ready-to-use NoOpLogger instance.
var Discard Logger = NoOpLogger{}

// Debug performs no action.
func (l NoOpLogger) Debug(msg string) {}

// Info performs no action.
func (l NoOpLogger) Info(msg string) {}

// Warn performs no action.
func (l NoOpLogger) Warn(msg string) {}

// Error performs no action.
func (l NoOpLogger) Error(msg string) {}

// Fatal performs no action. Unlike ZapLogger it does NOT exit the application.
func (l NoOpLogger) Fatal(msg string) {}

// Debugf performs no action.
func (l NoOpLogger) Debugf(format string, args ...interface{}) {}

// Infof performs no action.
func (l NoOpLogger) Infof(format string, args ...interface{}) {}

// Warnf performs no action.
func (l NoOpLogger) Warnf(format string, args ...interface{}) {}

// Errorf performs no action.
func (l NoOpLogger) Errorf(format string, args ...interface{}) {}

// Fatalf performs no action.
func (l NoOpLogger) Fatalf(format string, args ...interface{}) {}

// WithField returns the same NoOpLogger instance.
func (l NoOpLogger) WithField(key string, value interface{}) Logger {
	return l
}

// WithFields returns the same NoOpLogger instance.
func (l NoOpLogger) WithFields(fields map[string]interface{}) Logger {
	return l
}

// Sync performs no action and returns nil as there is nothing to sync.
func (l NoOpLogger) Sync() error {
	return nil
}

// OrDiscard returns l, or Discard when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard
	}
	return l
}

var _ Logger = NoOpLogger{}
