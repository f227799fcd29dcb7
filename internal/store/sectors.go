package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/game"
)

// SaveSector upserts one sector's knowledge as JSON. Incoming data is merged
// with the stored record so persistence obeys the same grow-only rule as the
// in-memory graph.
func (s *Store) SaveSector(sk *game.SectorKnowledge) error {
	existing, err := s.LoadSector(sk.SectorID)
	if err != nil {
		return err
	}
	merged := sk
	if existing != nil {
		if err := existing.Merge(sk); err != nil {
			return fmt.Errorf("save sector %d: %w", sk.SectorID, err)
		}
		merged = existing
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal sector %d: %w", sk.SectorID, err)
	}
	_, err = s.db.Exec(`INSERT INTO sectors (sector_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(sector_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		merged.SectorID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save sector %d: %w", sk.SectorID, err)
	}
	return nil
}

// LoadSector returns one sector's stored knowledge, or nil.
func (s *Store) LoadSector(id int) (*game.SectorKnowledge, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM sectors WHERE sector_id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sector %d: %w", id, err)
	}
	sk := game.NewSectorKnowledge(id)
	if err := json.Unmarshal([]byte(data), sk); err != nil {
		return nil, fmt.Errorf("decode sector %d: %w", id, err)
	}
	return sk, nil
}

// LoadGraph reconstructs the whole shared graph.
func (s *Store) LoadGraph() (*game.Knowledge, error) {
	rows, err := s.db.Query("SELECT sector_id, data FROM sectors")
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	defer rows.Close()

	k := game.NewKnowledge()
	for rows.Next() {
		var (
			id   int
			data string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan sector: %w", err)
		}
		sk := game.NewSectorKnowledge(id)
		if err := json.Unmarshal([]byte(data), sk); err != nil {
			return nil, fmt.Errorf("decode sector %d: %w", id, err)
		}
		k.Sectors[id] = sk
	}
	return k, rows.Err()
}

// SaveGraph persists every sector of a graph.
func (s *Store) SaveGraph(k *game.Knowledge) error {
	for _, sk := range k.Sectors {
		if err := s.SaveSector(sk); err != nil {
			return err
		}
	}
	return nil
}

// ClearSectors wipes the shared graph (swarm clear).
func (s *Store) ClearSectors() error {
	if _, err := s.db.Exec("DELETE FROM sectors"); err != nil {
		return fmt.Errorf("clear sectors: %w", err)
	}
	return nil
}
