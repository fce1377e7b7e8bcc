package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Manager holds the current configuration snapshot and reloads it when the file changes.
// Snapshots are immutable: a reload publishes a new *Config, it never mutates the old one.
type Manager interface {
	// Snapshot returns the current configuration
	Snapshot() *Config

	// Reload reads the file and publishes it if valid.
	// The previous snapshot stays active on error.
	Reload() error

	// Watch reloads the configuration whenever the file changes.
	// Blocks until the context is cancelled.
	Watch(ctx context.Context) error

	// OnReload registers a callback invoked with every newly published snapshot
	OnReload(fn func(*Config))

	// Close releases the file watcher
	Close() error
}

type fileManager struct {
	path      string
	current   atomic.Pointer[Config]
	mu        sync.Mutex
	callbacks []func(*Config)
	watcher   *fsnotify.Watcher
}

// NewManager loads the configuration at path and returns a Manager serving it.
func NewManager(path string) (Manager, error) {
	m := &fileManager{path: path}
	if err := m.Reload(); err != nil {
		return nil, fmt.Errorf("failed to load initial configuration: %w", err)
	}
	return m, nil
}

// NewStaticManager returns a Manager that always serves cfg. Reload and Watch are no-ops.
func NewStaticManager(cfg *Config) Manager {
	m := &fileManager{}
	m.current.Store(cfg)
	return m
}

func (m *fileManager) Snapshot() *Config {
	return m.current.Load()
}

func (m *fileManager) Reload() error {
	if m.path == "" {
		return nil
	}

	cfg, err := LoadConfig(WithConfigPath(m.path))
	if err != nil {
		return err
	}

	m.current.Store(cfg)
	slog.Info("Configuration loaded", "path", m.path, "tenants", len(cfg.Tenants))

	m.mu.Lock()
	callbacks := append([]func(*Config){}, m.callbacks...)
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return nil
}

func (m *fileManager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

func (m *fileManager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}

	m.mu.Lock()
	if m.watcher != nil {
		m.mu.Unlock()
		return fmt.Errorf("config watcher is already running")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	m.watcher = watcher
	m.mu.Unlock()

	if err := watcher.Add(m.path); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", m.path, err)
	}

	slog.Info("Watching configuration file", "path", m.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := m.Reload(); err != nil {
					slog.Error("Configuration reload rejected, keeping previous snapshot", "error", err)
				}
			}

			// Editors and volume mounts replace the file; watch the new inode
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				_ = watcher.Add(m.path)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Config file watcher error", "error", err)
		}
	}
}

func (m *fileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			return fmt.Errorf("failed to close file watcher: %w", err)
		}
		m.watcher = nil
	}
	return nil
}
