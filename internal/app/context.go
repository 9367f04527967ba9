package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"motorpool/internal/config"
	"motorpool/internal/domain"
	"motorpool/internal/repo"
)

// ResolveFleetAndConfig picks the active fleet and ensures a fleet + config
// exist in the DB, seeding defaults if missing. It prefers the override,
// then the single fleet already in the DB. A missing fleet is created on
// the fly.
func ResolveFleetAndConfig(ctx context.Context, fleetOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	fleetID := fleetOverride
	if fleetID == "" {
		f, err := r.SingleFleet(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("fleet not specified; use --fleet")
		}
		fleetID = f.ID
	}
	seedCfg := config.Default(fleetID)

	if _, err := r.GetFleet(ctx, fleetID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createFleet(ctx, r, fleetID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetFleetConfig(ctx, fleetID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertFleetConfig(ctx, fleetID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed fleet config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Fleet.ID = fleetID
	return fleetID, cfg, nil
}

// createFleet inserts a minimal fleet footprint using the seed config.
func createFleet(ctx context.Context, r repo.Repo, fleetID string, seedCfg *config.Config, actorID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(fleetID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	f := domain.Fleet{
		ID:        fleetID,
		Name:      seedCfg.Fleet.Name,
		Status:    "active",
		CreatedAt: now,
	}
	if f.Name == "" {
		f.Name = fleetID
	}
	if err := r.InsertFleetTx(ctx, tx, f); err != nil {
		return fmt.Errorf("insert fleet: %w", err)
	}
	if err := r.UpsertFleetConfigTx(ctx, tx, fleetID, seedCfg); err != nil {
		return fmt.Errorf("insert fleet config: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if err := r.EnsureActor(ctx, tx, actorID, now); err != nil {
		return fmt.Errorf("ensure actor: %w", err)
	}
	return tx.Commit()
}
