package app

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/store"
	"github.com/civicportal/portal-sync/internal/sync/coordinator"
	"github.com/civicportal/portal-sync/internal/telemetry"
)

// mockCoordinator implements the coordinator.Coordinator interface for testing
type mockCoordinator struct {
	mu          sync.Mutex
	startCalled bool
	stopCalled  bool
	cycles      int
	started     chan struct{}
}

func newMockCoordinator() *mockCoordinator {
	return &mockCoordinator{started: make(chan struct{})}
}

func (m *mockCoordinator) Start(ctx context.Context) error {
	m.mu.Lock()
	m.startCalled = true
	m.mu.Unlock()
	close(m.started)

	<-ctx.Done()
	return nil
}

func (m *mockCoordinator) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalled = true
	return nil
}

func (m *mockCoordinator) RunCycle(context.Context) *coordinator.CycleReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles++
	return &coordinator.CycleReport{}
}

func (m *mockCoordinator) wasStopCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalled
}

// createTestApp creates an App around a mock coordinator, skipping the store and lock setup of New
func createTestApp(t *testing.T, addr string) (*App, *mockCoordinator) {
	t.Helper()

	tel, err := telemetry.New(context.Background())
	require.NoError(t, err)

	coord := newMockCoordinator()
	components := &Components{
		Config:      config.NewStaticManager(&config.Config{}),
		Store:       store.NewMemoryStore(),
		Coordinator: coord,
		Telemetry:   tel,
	}

	b, err := baseConfig(WithConfigManager(components.Config), WithAddress(addr))
	require.NoError(t, err)
	server, err := buildHTTPServer(b, components)
	require.NoError(t, err)

	appCtx, cancel := context.WithCancel(context.Background())
	return &App{
		components: components,
		httpServer: server,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, coord
}

func freeAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func TestApp_StartStop(t *testing.T) {
	t.Parallel()

	addr := freeAddress(t)
	app, coord := createTestApp(t, addr)

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	select {
	case <-coord.started:
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator was not started")
	}

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, app.Stop(5*time.Second))
	assert.True(t, coord.wasStopCalled())

	select {
	case startErr := <-errChan:
		require.NoError(t, startErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestApp_StopWithoutStart(t *testing.T) {
	t.Parallel()

	app, coord := createTestApp(t, ":0")
	require.NoError(t, app.Stop(time.Second))
	assert.True(t, coord.wasStopCalled())
	assert.Error(t, app.ctx.Err())
}

func TestApp_StartFailsOnBusyPort(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	app, _ := createTestApp(t, listener.Addr().String())
	err = app.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP server failed")
	require.NoError(t, app.Close())
}

func TestApp_RunCycleDelegates(t *testing.T) {
	t.Parallel()

	app, coord := createTestApp(t, ":0")
	t.Cleanup(func() { _ = app.Close() })

	require.NotNil(t, app.RunCycle(context.Background()))
	require.NotNil(t, app.RunCycle(context.Background()))

	coord.mu.Lock()
	defer coord.mu.Unlock()
	assert.Equal(t, 2, coord.cycles)
}
