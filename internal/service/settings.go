package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/platbet/wallet-core/internal/models"
)

// SettingsService reads and writes the process-wide wallet configuration.
// The auto-approval limit is read on every withdrawal decision, so admin
// writes take effect immediately for subsequent decisions and never touch
// in-flight transactions.
type SettingsService struct {
	store    QueryStore
	defaults models.Settings
}

func NewSettingsService(store QueryStore, defaults models.Settings) *SettingsService {
	return &SettingsService{store: store, defaults: defaults}
}

// Get returns the current settings, falling back to configured defaults when
// the settings row was never written.
func (s *SettingsService) Get(ctx context.Context) (models.Settings, error) {
	settings, err := s.store.Queries().GetSettings(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.defaults, nil
		}
		return models.Settings{}, err
	}
	return settings, nil
}

// SetAutoApprovalLimit writes the new limit.
func (s *SettingsService) SetAutoApprovalLimit(ctx context.Context, limit int64) (models.Settings, error) {
	if limit < 0 {
		return models.Settings{}, fmt.Errorf("auto approval limit must not be negative: %d", limit)
	}
	rows, err := s.store.Queries().UpdateAutoApprovalLimit(ctx, limit)
	if err != nil {
		return models.Settings{}, err
	}
	if err := requireExactlyOne(rows, "update auto approval limit"); err != nil {
		return models.Settings{}, err
	}
	return s.Get(ctx)
}
