package router

import (
	"context"

	"github.com/apps78/cotune-bridge/internal/bridge"
	"github.com/apps78/cotune-bridge/internal/control"
	"github.com/apps78/cotune-bridge/internal/endpoint"
	"github.com/stretchr/testify/mock"
)

// MockBackend is a mock implementation of Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Resolve(args endpoint.Args) (endpoint.Request, error) {
	ret := m.Called(args)
	return ret.Get(0).(endpoint.Request), ret.Error(1)
}

func (m *MockBackend) StartNode(ctx context.Context, req endpoint.Request) (bridge.StartOutcome, error) {
	ret := m.Called(ctx, req)
	return ret.Get(0).(bridge.StartOutcome), ret.Error(1)
}

func (m *MockBackend) StopNode(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBackend) Status(ctx context.Context) (control.NodeStatus, error) {
	ret := m.Called(ctx)
	return ret.Get(0).(control.NodeStatus), ret.Error(1)
}

func (m *MockBackend) PeerInfo(ctx context.Context) control.PeerInfo {
	return m.Called(ctx).Get(0).(control.PeerInfo)
}

func (m *MockBackend) KnownPeers(ctx context.Context) ([]control.PeerInfo, error) {
	ret := m.Called(ctx)
	peers, _ := ret.Get(0).([]control.PeerInfo)
	return peers, ret.Error(1)
}

func (m *MockBackend) Info() bridge.Info {
	return m.Called().Get(0).(bridge.Info)
}
