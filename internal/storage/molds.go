package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenRotoCore/internal/molding"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("not found")

const upsertMoldSQL = `
	INSERT INTO molds (mold_id, mold_type, volume, weight, heating_time, heating_temperature,
	                   cooling_time, mounting_time, distance_from_center, available_quantity)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (mold_id) DO UPDATE SET
		mold_type = EXCLUDED.mold_type,
		volume = EXCLUDED.volume,
		weight = EXCLUDED.weight,
		heating_time = EXCLUDED.heating_time,
		heating_temperature = EXCLUDED.heating_temperature,
		cooling_time = EXCLUDED.cooling_time,
		mounting_time = EXCLUDED.mounting_time,
		distance_from_center = EXCLUDED.distance_from_center,
		available_quantity = EXCLUDED.available_quantity,
		updated_at = NOW()
`

// UpsertMolds writes all molds in one transaction.
func (p *PostgresClient) UpsertMolds(ctx context.Context, molds []molding.Mold) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, m := range molds {
		batch.Queue(upsertMoldSQL,
			m.MoldID, m.MoldType, m.Volume, m.Weight, m.HeatingTime, m.HeatingTemperature,
			m.CoolingTime, m.MountingTime, m.DistanceFromCenter, m.AvailableQuantity)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert molds: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *PostgresClient) LoadMolds(ctx context.Context) ([]molding.Mold, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT mold_id, mold_type, volume, weight, heating_time, heating_temperature,
		       cooling_time, mounting_time, distance_from_center, available_quantity
		FROM molds
		ORDER BY mold_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load molds: %w", err)
	}
	defer rows.Close()

	molds := make([]molding.Mold, 0)
	for rows.Next() {
		var m molding.Mold
		if err := rows.Scan(&m.MoldID, &m.MoldType, &m.Volume, &m.Weight, &m.HeatingTime,
			&m.HeatingTemperature, &m.CoolingTime, &m.MountingTime, &m.DistanceFromCenter,
			&m.AvailableQuantity); err != nil {
			return nil, fmt.Errorf("failed to scan mold: %w", err)
		}
		molds = append(molds, m)
	}
	return molds, rows.Err()
}
