// Package alert implements the per-timeframe price alert set: a durable
// store surviving restarts, and the engine that detects threshold crossings
// between successive tick prices.
package alert

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/whdcks5588-jpg/chanyview/internal/model"
)

// Store persists alert sets in a local SQLite database, one key/value row per
// timeframe partition. Only {id, price} pairs are persisted; rendering-layer
// marker handles live in the clients and never reach the store.
//
// Each partition also has an in-memory working set, populated by Load and
// kept in sync by Add/Remove/Save, which the engine iterates on every tick.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	sets map[model.Timeframe][]model.Alert
}

// OpenStore opens (creating if needed) the alert database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert database: %w", err)
	}

	createTableQuery := `
	CREATE TABLE IF NOT EXISTS alert_sets (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	);`
	if _, err := db.Exec(createTableQuery); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create alert_sets table: %w", err)
	}

	return &Store{
		db:   db,
		sets: make(map[model.Timeframe][]model.Alert),
	}, nil
}

// partitionKey builds the storage key of one timeframe's alert set.
func partitionKey(timeframe model.Timeframe) string {
	return "alerts:" + string(timeframe)
}

// Load reads the persisted partition for a timeframe into the working set and
// returns it. An absent key or a malformed payload resolves to an empty set;
// read failures are logged but never surface to the caller.
func (s *Store) Load(timeframe model.Timeframe) []model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw []byte
	err := s.db.QueryRow(
		`SELECT value FROM alert_sets WHERE key = ?;`, partitionKey(timeframe),
	).Scan(&raw)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.sets[timeframe] = nil
		return nil
	case err != nil:
		log.Warn().Err(err).
			Str("timeframe", string(timeframe)).
			Msg("failed to read alert partition, treating as empty")
		s.sets[timeframe] = nil
		return nil
	}

	var alerts []model.Alert
	if err := json.Unmarshal(raw, &alerts); err != nil {
		log.Warn().Err(err).
			Str("timeframe", string(timeframe)).
			Msg("malformed alert partition, treating as empty")
		s.sets[timeframe] = nil
		return nil
	}

	s.sets[timeframe] = alerts
	return cloneAlerts(alerts)
}

// Save overwrites the persisted partition with the given alerts and replaces
// the working set.
func (s *Store) Save(timeframe model.Timeframe, alerts []model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(timeframe, alerts)
}

func (s *Store) saveLocked(timeframe model.Timeframe, alerts []model.Alert) error {
	raw, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to encode alert partition: %w", err)
	}

	_, err = s.db.Exec(`
	INSERT INTO alert_sets (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value;`,
		partitionKey(timeframe), raw)
	if err != nil {
		return fmt.Errorf("failed to write alert partition: %w", err)
	}

	s.sets[timeframe] = cloneAlerts(alerts)
	return nil
}

// Add mints a new alert at the given threshold, appends it to the timeframe's
// working set and persists the partition. Ids are unique per partition.
func (s *Store) Add(timeframe model.Timeframe, price decimal.Decimal) (model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := model.Alert{ID: uuid.NewString(), Price: price}
	next := append(cloneAlerts(s.sets[timeframe]), a)
	if err := s.saveLocked(timeframe, next); err != nil {
		return model.Alert{}, err
	}
	return a, nil
}

// Remove deletes an alert by id and persists the partition. Removing an
// absent id is a no-op.
func (s *Store) Remove(timeframe model.Timeframe, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.sets[timeframe]
	next := make([]model.Alert, 0, len(current))
	for _, a := range current {
		if a.ID != id {
			next = append(next, a)
		}
	}
	if len(next) == len(current) {
		return nil
	}
	return s.saveLocked(timeframe, next)
}

// List returns a copy of the timeframe's in-memory working set.
func (s *Store) List(timeframe model.Timeframe) []model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAlerts(s.sets[timeframe])
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func cloneAlerts(alerts []model.Alert) []model.Alert {
	if alerts == nil {
		return nil
	}
	out := make([]model.Alert, len(alerts))
	copy(out, alerts)
	return out
}
