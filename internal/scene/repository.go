package scene

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// sceneConfigJSON is the JSON wire form of Config, kept as a separate
// shape from Config so the union-type encoding (§9 "Serialization of
// union types... a rewrite should consider tagged variants") is explicit
// and stable independent of in-memory field layout.
type sceneConfigJSON struct {
	Name    string                    `json:"name"`
	Hidden  bool                      `json:"hidden"`
	Devices map[string]map[string]Target `json:"devices"`
	Groups  map[string]Target            `json:"groups"`
}

// SQLiteRepository persists scene configs into the scenes table, per §6
// `scenes(scene_id) -> {name, config-blob}`.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an open *sql.DB.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const upsertSceneQuery = `
INSERT INTO scenes (scene_id, name, config_json)
VALUES (?, ?, ?)
ON CONFLICT(scene_id) DO UPDATE SET
	name = excluded.name,
	config_json = excluded.config_json
`

// Upsert persists cfg, replacing any existing row for its id.
func (repo *SQLiteRepository) Upsert(ctx context.Context, cfg Config) error {
	blob, err := json.Marshal(sceneConfigJSON{
		Name: cfg.Name, Hidden: cfg.Hidden, Devices: cfg.Devices, Groups: cfg.Groups,
	})
	if err != nil {
		return fmt.Errorf("scene: marshal config: %w", err)
	}
	if _, err := repo.db.ExecContext(ctx, upsertSceneQuery, cfg.ID, cfg.Name, string(blob)); err != nil {
		return fmt.Errorf("scene: upsert %s: %w", cfg.ID, err)
	}
	return nil
}

// Delete removes a scene row.
func (repo *SQLiteRepository) Delete(ctx context.Context, sceneID string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM scenes WHERE scene_id = ?`, sceneID); err != nil {
		return fmt.Errorf("scene: delete %s: %w", sceneID, err)
	}
	return nil
}

// Load returns every persisted scene config.
func (repo *SQLiteRepository) Load(ctx context.Context) ([]Config, error) {
	rows, err := repo.db.QueryContext(ctx, `SELECT scene_id, name, config_json FROM scenes`)
	if err != nil {
		return nil, fmt.Errorf("scene: load: %w", err)
	}
	defer rows.Close()

	var out []Config
	for rows.Next() {
		var id, name, blob string
		if err := rows.Scan(&id, &name, &blob); err != nil {
			return nil, fmt.Errorf("scene: scan: %w", err)
		}
		var wire sceneConfigJSON
		if err := json.Unmarshal([]byte(blob), &wire); err != nil {
			return nil, fmt.Errorf("scene: unmarshal config %s: %w", id, err)
		}
		out = append(out, Config{
			ID: id, Name: wire.Name, Hidden: wire.Hidden,
			Devices: wire.Devices, Groups: wire.Groups,
		})
	}
	return out, rows.Err()
}
