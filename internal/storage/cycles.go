package storage

import (
	"context"
	"fmt"
)

const defaultCycleListLimit = 100

func (p *PostgresClient) RecordCycle(ctx context.Context, rec CycleRecord) (*CycleRecord, error) {
	if rec.MoldIDs == nil {
		rec.MoldIDs = []string{}
	}

	err := p.pool.QueryRow(ctx, `
		INSERT INTO cycles (machine_id, cycle_number, success, message, mold_ids)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, executed_at
	`, rec.MachineID, rec.CycleNumber, rec.Success, rec.Message, rec.MoldIDs).Scan(&rec.ID, &rec.ExecutedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record cycle: %w", err)
	}
	return &rec, nil
}

// ListCycles returns the newest cycles of a machine first.
func (p *PostgresClient) ListCycles(ctx context.Context, machineID string, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = defaultCycleListLimit
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, machine_id, cycle_number, success, message, mold_ids, executed_at
		FROM cycles
		WHERE machine_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`, machineID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	records := make([]CycleRecord, 0)
	for rows.Next() {
		var rec CycleRecord
		if err := rows.Scan(&rec.ID, &rec.MachineID, &rec.CycleNumber, &rec.Success,
			&rec.Message, &rec.MoldIDs, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
