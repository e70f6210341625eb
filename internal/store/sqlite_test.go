package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"

	"optrack/internal/domain"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "positions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPosition(t *testing.T, ticker string, expiration civil.Date) *domain.Position {
	t.Helper()
	p, err := domain.NewPosition(domain.Terms{
		Ticker:         ticker,
		ContractType:   domain.ContractCall,
		TradeDirection: domain.DirectionLong,
		Quantity:       2,
		StrikePrice:    100,
		ExpirationDate: expiration,
		Premium:        10,
		OpenPrice:      95,
		OpenDate:       civil.Date{Year: 2024, Month: 1, Day: 2},
	}, civil.Date{Year: 2025, Month: 6, Day: 15})
	if err != nil {
		t.Fatalf("NewPosition: %v", err)
	}
	return p
}

func TestSQLiteAddGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p := testPosition(t, "AAPL", civil.Date{Year: 2030, Month: 1, Day: 17})
	id, err := s.Add(ctx, p)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id <= 0 {
		t.Fatalf("Add returned id %d, want positive", id)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != id {
		t.Errorf("ID = %d, want %d", got.ID, id)
	}
	if got.Ticker != "AAPL" || got.ContractType != domain.ContractCall || got.Quantity != 2 {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.ExpirationDate != p.ExpirationDate || got.OpenDate != p.OpenDate {
		t.Errorf("date round-trip mismatch: %+v", got)
	}
	if got.CurrentPrice != domain.PriceUnset {
		t.Errorf("CurrentPrice = %v, want unset (not persisted)", got.CurrentPrice)
	}
}

func TestSQLiteMonotonicIDs(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	exp := civil.Date{Year: 2030, Month: 1, Day: 17}
	id1, _ := s.Add(ctx, testPosition(t, "AAPL", exp))
	id2, _ := s.Add(ctx, testPosition(t, "MSFT", exp))
	if id2 <= id1 {
		t.Errorf("ids not monotonic: %d then %d", id1, id2)
	}
}

func TestSQLiteGetMissing(t *testing.T) {
	s := newTestSQLite(t)
	if _, err := s.Get(context.Background(), 42); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(42) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteUpdate(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	id, _ := s.Add(ctx, testPosition(t, "AAPL", civil.Date{Year: 2030, Month: 1, Day: 17}))

	err := s.Update(ctx, id, map[string]any{
		"position_status": string(domain.StatusExercised),
		"close_price":     120.0,
		"profit":          2000.0,
		"is_expired":      true,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.StatusExercised || got.ClosePrice != 120 || got.Profit != 2000 || !got.IsExpired {
		t.Errorf("update not persisted: %+v", got)
	}
}

func TestSQLiteUpdateRejectsUnknownField(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	id, _ := s.Add(ctx, testPosition(t, "AAPL", civil.Date{Year: 2030, Month: 1, Day: 17}))

	tests := []map[string]any{
		{"ticker": "MSFT"},                      // contract term, immutable
		{"strike_price": 1.0},                   // contract term, immutable
		{"premium": 12.0, "open_date": "2024"},  // one bad field poisons the update
		{},                                      // empty update
	}
	for _, fields := range tests {
		if err := s.Update(ctx, id, fields); !errors.Is(err, domain.ErrInvalidField) {
			t.Errorf("Update(%v) error = %v, want ErrInvalidField", fields, err)
		}
	}

	// The failed updates must not have touched the row.
	got, _ := s.Get(ctx, id)
	if got.Ticker != "AAPL" || got.Premium != 10 {
		t.Errorf("rejected update leaked into the row: %+v", got)
	}
}

func TestSQLiteUpdateMissing(t *testing.T) {
	s := newTestSQLite(t)
	err := s.Update(context.Background(), 42, map[string]any{"premium": 5.0})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Update(42) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteDelete(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	id, _ := s.Add(ctx, testPosition(t, "AAPL", civil.Date{Year: 2030, Month: 1, Day: 17}))
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestSQLiteListOrderedAndFiltered(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	// Insert out of expiration order.
	late := testPosition(t, "CCC", civil.Date{Year: 2031, Month: 3, Day: 21})
	early := testPosition(t, "AAA", civil.Date{Year: 2029, Month: 6, Day: 20})
	mid := testPosition(t, "BBB", civil.Date{Year: 2030, Month: 1, Day: 17})
	mid.IsExpired = true
	mid.Status = domain.StatusExpired
	mid.ClosePrice = 90
	for _, p := range []*domain.Position{late, early, mid} {
		if _, err := s.Add(ctx, p); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	all, err := s.List(ctx, FilterAll)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List(all) returned %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ExpirationDate.Before(all[i-1].ExpirationDate) {
			t.Errorf("List not ordered by expiration: %s before %s",
				all[i-1].ExpirationDate, all[i].ExpirationDate)
		}
	}

	active, _ := s.List(ctx, FilterActive)
	if len(active) != 2 {
		t.Errorf("List(active) returned %d, want 2", len(active))
	}
	inactive, _ := s.List(ctx, FilterInactive)
	if len(inactive) != 1 || inactive[0].Ticker != "BBB" {
		t.Errorf("List(inactive) = %+v, want just BBB", inactive)
	}
}

func TestSQLiteIsExpired(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p := testPosition(t, "AAPL", civil.Date{Year: 2030, Month: 1, Day: 17})
	id, _ := s.Add(ctx, p)

	expired, err := s.IsExpired(ctx, id)
	if err != nil {
		t.Fatalf("IsExpired: %v", err)
	}
	if expired {
		t.Error("fresh position should not be expired")
	}

	if _, err := s.IsExpired(ctx, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("IsExpired(99) error = %v, want ErrNotFound", err)
	}
}
