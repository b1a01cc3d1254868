package storage

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenBusSpoofer/internal/audit"
	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
)

// Record stores one telemetry line; PostgresClient satisfies audit.Recorder.
func (p *PostgresClient) Record(ctx context.Context, rec audit.Record) error {
	var stored []byte
	if rec.Stored != nil {
		stored = rec.Stored
	}

	var register *int16
	if rec.HasRegister {
		r := int16(rec.Register)
		register = &r
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO telemetry_frames (received_at, topic, raw_register, register, line, stored, accepted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.Time, rec.Topic, rec.RawRegister, register, rec.Line, stored, rec.Stored != nil)

	if err != nil {
		return fmt.Errorf("failed to insert telemetry frame: %w", err)
	}
	return nil
}

// RecentFrames returns the newest frames recorded for reg
func (p *PostgresClient) RecentFrames(ctx context.Context, reg types.Register, limit int) ([]TelemetryFrame, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, received_at, topic, raw_register, register, line, stored, accepted
		FROM telemetry_frames
		WHERE register = $1
		ORDER BY received_at DESC
		LIMIT $2
	`, int16(reg), limit)

	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry frames: %w", err)
	}
	defer rows.Close()

	frames := make([]TelemetryFrame, 0)

	for rows.Next() {
		var f TelemetryFrame
		var register int16
		if err := rows.Scan(&f.ID, &f.ReceivedAt, &f.Topic, &f.RawRegister, &register, &f.Line, &f.Stored, &f.Accepted); err != nil {
			return nil, fmt.Errorf("failed to scan telemetry frame: %w", err)
		}
		f.Register = int(register)
		frames = append(frames, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read telemetry frames: %w", err)
	}

	return frames, nil
}

// LogReload records the outcome of a table load
func (p *PostgresClient) LogReload(ctx context.Context, tableName, filePath string, entries int, loadErr error) error {
	var errText *string
	if loadErr != nil {
		s := loadErr.Error()
		errText = &s
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO table_reloads (table_name, file_path, entries, success, error)
		VALUES ($1, $2, $3, $4, $5)
	`, tableName, filePath, entries, loadErr == nil, errText)

	if err != nil {
		return fmt.Errorf("failed to log reload: %w", err)
	}
	return nil
}

// RecentReloads lists the latest table loads, newest first
func (p *PostgresClient) RecentReloads(ctx context.Context, limit int) ([]TableReload, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, loaded_at, table_name, file_path, entries, success, error
		FROM table_reloads
		ORDER BY loaded_at DESC
		LIMIT $1
	`, limit)

	if err != nil {
		return nil, fmt.Errorf("failed to query reloads: %w", err)
	}
	defer rows.Close()

	reloads := make([]TableReload, 0)

	for rows.Next() {
		var r TableReload
		if err := rows.Scan(&r.ID, &r.LoadedAt, &r.TableName, &r.FilePath, &r.Entries, &r.Success, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan reload: %w", err)
		}
		reloads = append(reloads, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reloads: %w", err)
	}

	return reloads, nil
}
