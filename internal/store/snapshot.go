package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"optrack/internal/domain"
)

// Compile-time interface check.
var _ PositionStore = (*SnapshotStore)(nil)

// SnapshotStore implements PositionStore over a single JSON file holding a
// list of position records. Every write replaces the whole file; the
// previous contents are copied to a timestamped backup first, so a botched
// write never loses the prior snapshot.
type SnapshotStore struct {
	path string
	log  *slog.Logger

	mu        sync.Mutex
	positions map[int64]*domain.Position
	nextID    int64
}

// NewSnapshotStore loads the snapshot at path, or starts empty when the file
// does not exist yet. The id watermark resumes above the highest persisted
// id.
func NewSnapshotStore(path string) (*SnapshotStore, error) {
	s := &SnapshotStore{
		path:      path,
		log:       slog.Default().With("component", "snapshot-store"),
		positions: make(map[int64]*domain.Position),
		nextID:    1,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.log.Info("snapshot file missing, starting empty", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading snapshot %s: %v", domain.ErrPersistence, path, err)
	}
	if len(data) == 0 {
		return s, nil
	}

	var list []*domain.Position
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: parsing snapshot %s: %v", domain.ErrPersistence, path, err)
	}
	for _, p := range list {
		s.positions[p.ID] = p
		if p.ID >= s.nextID {
			s.nextID = p.ID + 1
		}
	}
	return s, nil
}

// Close is a no-op; every mutation is flushed synchronously.
func (s *SnapshotStore) Close() error { return nil }

// Add persists a new position and returns its assigned id.
func (s *SnapshotStore) Add(_ context.Context, p *domain.Position) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	stored := p.Clone()
	stored.ID = id
	s.positions[id] = stored

	if err := s.save(); err != nil {
		delete(s.positions, id)
		return 0, err
	}
	return id, nil
}

// Get returns the position for id.
func (s *SnapshotStore) Get(_ context.Context, id int64) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	return p.Clone(), nil
}

// Update writes the allow-listed fields for id.
func (s *SnapshotStore) Update(_ context.Context, id int64, fields map[string]any) error {
	if err := validateFields(fields); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}

	updated := p.Clone()
	if err := applyFields(updated, fields); err != nil {
		return err
	}
	s.positions[id] = updated

	if err := s.save(); err != nil {
		s.positions[id] = p
		return err
	}
	return nil
}

// Delete removes the position for id.
func (s *SnapshotStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	delete(s.positions, id)

	if err := s.save(); err != nil {
		s.positions[id] = p
		return err
	}
	return nil
}

// List returns positions matching the filter ordered by expiration date
// ascending, with position id as the tie-breaker.
func (s *SnapshotStore) List(_ context.Context, f Filter) ([]*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var positions []*domain.Position
	for _, p := range s.positions {
		switch f {
		case FilterActive:
			if p.IsExpired {
				continue
			}
		case FilterInactive:
			if !p.IsExpired {
				continue
			}
		}
		positions = append(positions, p.Clone())
	}

	sort.Slice(positions, func(i, j int) bool {
		if positions[i].ExpirationDate != positions[j].ExpirationDate {
			return positions[i].ExpirationDate.Before(positions[j].ExpirationDate)
		}
		return positions[i].ID < positions[j].ID
	})
	return positions, nil
}

// IsExpired reports the persisted expiry flag for id.
func (s *SnapshotStore) IsExpired(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return false, fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	return p.IsExpired, nil
}

// save writes the full snapshot to disk, backing up the previous file first.
// Caller holds mu.
func (s *SnapshotStore) save() error {
	list := make([]*domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].ExpirationDate != list[j].ExpirationDate {
			return list[i].ExpirationDate.Before(list[j].ExpirationDate)
		}
		return list[i].ID < list[j].ID
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding snapshot: %v", domain.ErrPersistence, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: creating snapshot dir: %v", domain.ErrPersistence, err)
	}

	if prev, err := os.ReadFile(s.path); err == nil {
		backup := s.backupPath(time.Now())
		if err := os.WriteFile(backup, prev, 0o644); err != nil {
			return fmt.Errorf("%w: writing backup %s: %v", domain.ErrPersistence, backup, err)
		}
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing snapshot %s: %v", domain.ErrPersistence, s.path, err)
	}
	return nil
}

// backupPath derives the timestamped backup name for the current snapshot.
func (s *SnapshotStore) backupPath(now time.Time) string {
	base := strings.TrimSuffix(s.path, filepath.Ext(s.path))
	return fmt.Sprintf("%s_backup_%s.json", base, now.Format("20060102T150405"))
}

// applyFields patches an in-memory position with allow-listed update values.
func applyFields(p *domain.Position, fields map[string]any) error {
	for name, value := range fields {
		switch name {
		case "quantity":
			n, ok := toInt(value)
			if !ok {
				return fmt.Errorf("%w: quantity %v", domain.ErrInvalidField, value)
			}
			p.Quantity = n
		case "trade_direction":
			d, err := domain.ParseTradeDirection(fmt.Sprint(value))
			if err != nil {
				return fmt.Errorf("%w: trade_direction %v", domain.ErrInvalidField, value)
			}
			p.TradeDirection = d
		case "premium":
			f, ok := toFloat(value)
			if !ok {
				return fmt.Errorf("%w: premium %v", domain.ErrInvalidField, value)
			}
			p.Premium = f
		case "position_status":
			st, err := domain.ParseStatus(fmt.Sprint(value))
			if err != nil {
				return fmt.Errorf("%w: position_status %v", domain.ErrInvalidField, value)
			}
			p.Status = st
		case "close_price":
			f, ok := toFloat(value)
			if !ok {
				return fmt.Errorf("%w: close_price %v", domain.ErrInvalidField, value)
			}
			p.ClosePrice = f
		case "profit":
			f, ok := toFloat(value)
			if !ok {
				return fmt.Errorf("%w: profit %v", domain.ErrInvalidField, value)
			}
			p.Profit = f
		case "is_expired":
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("%w: is_expired %v", domain.ErrInvalidField, value)
			}
			p.IsExpired = b
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
