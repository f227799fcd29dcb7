package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Character is one persisted character record.
type Character struct {
	Name           string
	ShipName       *string
	Credits        int
	TurnsUsed      int
	Deaths         int
	SessionsPlayed int
	CreatedAt      time.Time
	Retired        bool
}

func (s *Store) UpsertCharacter(c *Character) error {
	_, err := s.db.Exec(`INSERT INTO characters (name, ship_name, credits, turns_used, deaths, sessions_played, created_at, retired)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			ship_name = excluded.ship_name,
			credits = excluded.credits,
			turns_used = excluded.turns_used,
			deaths = excluded.deaths,
			sessions_played = excluded.sessions_played,
			retired = excluded.retired`,
		c.Name, c.ShipName, c.Credits, c.TurnsUsed, c.Deaths, c.SessionsPlayed, c.CreatedAt.UTC(), c.Retired)
	if err != nil {
		return fmt.Errorf("upsert character: %w", err)
	}
	return nil
}

func (s *Store) GetCharacter(name string) (*Character, error) {
	c := &Character{}
	err := s.db.QueryRow(`SELECT name, ship_name, credits, turns_used, deaths, sessions_played, created_at, retired
		FROM characters WHERE name = ?`, name).Scan(
		&c.Name, &c.ShipName, &c.Credits, &c.TurnsUsed, &c.Deaths, &c.SessionsPlayed, &c.CreatedAt, &c.Retired)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get character: %w", err)
	}
	return c, nil
}

func (s *Store) ListCharacters(includeRetired bool) ([]*Character, error) {
	q := `SELECT name, ship_name, credits, turns_used, deaths, sessions_played, created_at, retired
		FROM characters`
	if !includeRetired {
		q += " WHERE retired = 0"
	}
	q += " ORDER BY name"

	rows, err := s.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()
	var out []*Character
	for rows.Next() {
		c := &Character{}
		if err := rows.Scan(&c.Name, &c.ShipName, &c.Credits, &c.TurnsUsed, &c.Deaths, &c.SessionsPlayed, &c.CreatedAt, &c.Retired); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecordDeath bumps the death counter and optionally retires the character.
func (s *Store) RecordDeath(name string, retire bool) error {
	_, err := s.db.Exec("UPDATE characters SET deaths = deaths + 1, retired = retired OR ? WHERE name = ?", retire, name)
	if err != nil {
		return fmt.Errorf("record death: %w", err)
	}
	return nil
}

// RecordSession bumps the session counter and refreshes credits/turns.
func (s *Store) RecordSession(name string, credits, turnsUsed int) error {
	_, err := s.db.Exec(`UPDATE characters SET sessions_played = sessions_played + 1,
		credits = ?, turns_used = ? WHERE name = ?`, credits, turnsUsed, name)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// ReserveName persists a name into the used set; reports whether it was new.
func (s *Store) ReserveName(name string) (bool, error) {
	res, err := s.db.Exec("INSERT OR IGNORE INTO used_names (name) VALUES (?)", name)
	if err != nil {
		return false, fmt.Errorf("reserve name: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve name: %w", err)
	}
	return n > 0, nil
}

// UsedNames returns every reserved name, for seeding the generator.
func (s *Store) UsedNames() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM used_names ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("used names: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
