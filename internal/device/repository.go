package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/homeforge/control-core/internal/corekey"
)

// SQLiteRepository persists Records into the devices table described in
// §6: `devices(integration_id, device_id) -> {name, scene_id,
// state-blob, raw-blob}`, upserted with ON CONFLICT REPLACE. Grounded on
// the teacher's device.SQLiteRepository: named query constants, a
// scanDevice-style row mapper, database/sql directly (no ORM).
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an open *sql.DB. The devices table is
// created by the migrations in internal/infrastructure/database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const upsertDeviceQuery = `
INSERT INTO devices (integration_id, device_id, name, scene_id, data_kind, state_json, raw_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(integration_id, device_id) DO UPDATE SET
	name = excluded.name,
	scene_id = excluded.scene_id,
	data_kind = excluded.data_kind,
	state_json = excluded.state_json,
	raw_json = excluded.raw_json,
	updated_at = excluded.updated_at
`

// Upsert persists r, replacing any existing row for its key.
func (repo *SQLiteRepository) Upsert(ctx context.Context, r *Record) error {
	var stateBlob []byte
	var err error
	var sceneID string

	switch r.DataKind {
	case DataControllable:
		if r.Controllable != nil {
			stateBlob, err = json.Marshal(r.Controllable)
			sceneID = r.Controllable.SceneID
		}
	case DataSensor:
		if r.Sensor != nil {
			stateBlob, err = json.Marshal(r.Sensor)
		}
	}
	if err != nil {
		return fmt.Errorf("device: marshal state: %w", err)
	}

	rawBlob, err := json.Marshal(r.Raw)
	if err != nil {
		return fmt.Errorf("device: marshal raw: %w", err)
	}

	_, err = repo.db.ExecContext(ctx, upsertDeviceQuery,
		r.Key.IntegrationID, r.Key.DeviceID, r.Name, sceneID, string(r.DataKind),
		string(stateBlob), string(rawBlob), r.CreatedAt, r.StateUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("device: upsert %s: %w", r.Key.String(), err)
	}
	return nil
}

const loadDevicesQuery = `
SELECT integration_id, device_id, name, scene_id, data_kind, state_json, raw_json, created_at, updated_at
FROM devices
`

// Load returns every persisted record, used to hydrate the Store at
// startup (§3 Lifecycle).
func (repo *SQLiteRepository) Load(ctx context.Context) ([]*Record, error) {
	rows, err := repo.db.QueryContext(ctx, loadDevicesQuery)
	if err != nil {
		return nil, fmt.Errorf("device: load: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("device: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Record, error) {
	var r Record
	var integrationID, deviceID, sceneID, dataKind, stateJSON, rawJSON string

	if err := row.Scan(&integrationID, &deviceID, &r.Name, &sceneID, &dataKind,
		&stateJSON, &rawJSON, &r.CreatedAt, &r.StateUpdatedAt); err != nil {
		return nil, err
	}

	r.Key = corekey.DeviceKey{IntegrationID: integrationID, DeviceID: deviceID}
	r.IntegrationID = integrationID
	r.DataKind = DataKind(dataKind)

	switch r.DataKind {
	case DataControllable:
		if stateJSON != "" {
			var cs ControllableState
			if err := json.Unmarshal([]byte(stateJSON), &cs); err != nil {
				return nil, fmt.Errorf("unmarshal controllable state: %w", err)
			}
			if sceneID != "" {
				cs.SceneID = sceneID
			}
			r.Controllable = &cs
		}
	case DataSensor:
		if stateJSON != "" {
			var ss SensorState
			if err := json.Unmarshal([]byte(stateJSON), &ss); err != nil {
				return nil, fmt.Errorf("unmarshal sensor state: %w", err)
			}
			r.Sensor = &ss
		}
	}

	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &r.Raw); err != nil {
			return nil, fmt.Errorf("unmarshal raw: %w", err)
		}
	}

	return &r, nil
}
