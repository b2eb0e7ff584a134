package logger

import "github.com/stretchr/testify/mock"

// MockLogger implements a test-friendly logger.
// WithField and WithFields record the call and return the mock itself.
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

// Debug mocks the Debug method
func (m *MockLogger) Debug(msg string) {
	m.Called(msg)
}

// Info mocks the Info method
func (m *MockLogger) Info(msg string) {
	m.Called(msg)
}

// Warn mocks the Warn method
func (m *MockLogger) Warn(msg string) {
	m.Called(msg)
}

// Error mocks the Error method
func (m *MockLogger) Error(msg string) {
	m.Called(msg)
}

// Fatal mocks the Fatal method
func (m *MockLogger) Fatal(msg string) {
	m.Called(msg)
}

// Debugf mocks the Debugf method
func (m *MockLogger) Debugf(format string, args ...interface{}) {
	m.Called(format, args)
}

// Infof mocks the Infof method
func (m *MockLogger) Infof(format string, args ...interface{}) {
	m.Called(format, args)
}

// Warnf mocks the Warnf method
func (m *MockLogger) Warnf(format string, args ...interface{}) {
	m.Called(format, args)
}

// Errorf mocks the Errorf method
func (m *MockLogger) Errorf(format string, args ...interface{}) {
	m.Called(format, args)
}

// Fatalf mocks the Fatalf method
func (m *MockLogger) Fatalf(format string, args ...interface{}) {
	m.Called(format, args)
}

// WithField mocks the WithField method
func (m *MockLogger) WithField(key string, value interface{}) Logger {
	m.Called(key, value)
	return m
}

// WithFields mocks the WithFields method
func (m *MockLogger) WithFields(fields map[string]interface{}) Logger {
	m.Called(fields)
	return m
}

// Sync mocks the Sync method
func (m *MockLogger) Sync() error {
	args := m.Called()
	return args.Error(0)
}
