package sqlite

import "context"

// HealthCheck implements ports.HealthChecker for SQLite.
type HealthCheck struct {
	store *Store
}

// NewHealthCheck creates a SQLite health checker.
func NewHealthCheck(store *Store) *HealthCheck {
	return &HealthCheck{store: store}
}

// Ping checks the database file is readable.
func (h *HealthCheck) Ping(ctx context.Context) error {
	_, err := h.store.db.ExecContext(ctx, "SELECT 1")
	return err
}

// Name returns the dependency name.
func (h *HealthCheck) Name() string {
	return "sqlite"
}
