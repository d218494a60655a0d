// Package recovery repairs state left behind by a previous process before CommerceBridge
// starts serving. Components register a Recoverable; RecoverAll runs each once at startup.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
)

// Recoverable restores one component's persisted state.
type Recoverable interface {
	// Name identifies the component in logs.
	Name() string
	// RecoverState runs once before the component starts serving.
	RecoverState(ctx context.Context) error
}

// Manager orchestrates recovery of all registered components.
type Manager struct {
	recoverables []Recoverable
}

// NewManager creates a new recovery manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a component that can be recovered.
func (m *Manager) Register(r Recoverable) {
	m.recoverables = append(m.recoverables, r)
}

// RecoverAll recovers every registered component in registration order. A failing
// component does not stop the others; the returned error counts the failures.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Recovery.RecoverAll: starting", "components", len(m.recoverables))

	failed := 0
	for _, r := range m.recoverables {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.RecoverState(ctx); err != nil {
			slog.Error("Recovery.RecoverAll: component recovery failed", "component", r.Name(), "error", err)
			failed++
			continue
		}
		slog.Debug("Recovery.RecoverAll: component recovered", "component", r.Name())
	}

	slog.Info("Recovery.RecoverAll: completed", "recovered", len(m.recoverables)-failed, "errors", failed)
	if failed > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", failed, len(m.recoverables))
	}
	return nil
}
