package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"

	"optrack/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ PositionStore = (*SQLiteStore)(nil)

// SQLiteStore implements PositionStore backed by a SQLite database.
// current_price is a live quote and is deliberately not a column; positions
// read back from the database carry the unset sentinel.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS option_positions (
	position_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker          TEXT    NOT NULL,
	contract_type   TEXT    NOT NULL,
	quantity        INTEGER NOT NULL,
	trade_direction TEXT    NOT NULL,
	strike_price    REAL    NOT NULL,
	expiration_date TEXT    NOT NULL,
	is_expired      INTEGER NOT NULL,
	premium         REAL    NOT NULL,
	open_price      REAL    NOT NULL,
	open_date       TEXT    NOT NULL,
	position_status TEXT    NOT NULL,
	close_price     REAL    NOT NULL,
	profit          REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_expiration ON option_positions (expiration_date);
CREATE INDEX IF NOT EXISTS idx_positions_is_expired ON option_positions (is_expired);
`

const selectCols = `position_id, ticker, contract_type, quantity, trade_direction,
	strike_price, expiration_date, is_expired, premium, open_price, open_date,
	position_status, close_price, profit`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", domain.ErrPersistence, dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", domain.ErrPersistence, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Add inserts the position and returns its AUTOINCREMENT id.
func (s *SQLiteStore) Add(ctx context.Context, p *domain.Position) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO option_positions (
			ticker, contract_type, quantity, trade_direction, strike_price,
			expiration_date, is_expired, premium, open_price, open_date,
			position_status, close_price, profit
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Ticker, string(p.ContractType), p.Quantity, string(p.TradeDirection), p.StrikePrice,
		p.ExpirationDate.String(), p.IsExpired, p.Premium, p.OpenPrice, p.OpenDate.String(),
		string(p.Status), p.ClosePrice, p.Profit,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert position: %v", domain.ErrPersistence, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: last insert id: %v", domain.ErrPersistence, err)
	}
	return id, nil
}

// Get returns the position for id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectCols+` FROM option_positions WHERE position_id = ?`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get position %d: %v", domain.ErrPersistence, id, err)
	}
	return p, nil
}

// Update writes the allow-listed fields for id.
func (s *SQLiteStore) Update(ctx context.Context, id int64, fields map[string]any) error {
	if err := validateFields(fields); err != nil {
		return err
	}

	// Deterministic column order keeps the statement stable across runs.
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	assigns := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		assigns = append(assigns, name+" = ?")
		args = append(args, fields[name])
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE option_positions SET `+strings.Join(assigns, ", ")+` WHERE position_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("%w: update position %d: %v", domain.ErrPersistence, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", domain.ErrPersistence, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	return nil
}

// Delete removes the position for id.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM option_positions WHERE position_id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete position %d: %v", domain.ErrPersistence, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", domain.ErrPersistence, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	return nil
}

// List returns positions matching the filter ordered by expiration date
// ascending, with position id as the tie-breaker.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]*domain.Position, error) {
	query := `SELECT ` + selectCols + ` FROM option_positions`
	switch f {
	case FilterActive:
		query += ` WHERE is_expired = 0`
	case FilterInactive:
		query += ` WHERE is_expired = 1`
	}
	query += ` ORDER BY expiration_date ASC, position_id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list positions: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan position: %v", domain.ErrPersistence, err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list positions: %v", domain.ErrPersistence, err)
	}
	return positions, nil
}

// IsExpired reports the persisted expiry flag for id.
func (s *SQLiteStore) IsExpired(ctx context.Context, id int64) (bool, error) {
	var expired bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_expired FROM option_positions WHERE position_id = ?`, id).Scan(&expired)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("%w: is_expired for %d: %v", domain.ErrPersistence, id, err)
	}
	return expired, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(row scanner) (*domain.Position, error) {
	var (
		p                  domain.Position
		contractType       string
		tradeDirection     string
		status             string
		expiration, opened string
	)
	err := row.Scan(
		&p.ID, &p.Ticker, &contractType, &p.Quantity, &tradeDirection,
		&p.StrikePrice, &expiration, &p.IsExpired, &p.Premium, &p.OpenPrice, &opened,
		&status, &p.ClosePrice, &p.Profit,
	)
	if err != nil {
		return nil, err
	}

	if p.ContractType, err = domain.ParseContractType(contractType); err != nil {
		return nil, err
	}
	if p.TradeDirection, err = domain.ParseTradeDirection(tradeDirection); err != nil {
		return nil, err
	}
	if p.Status, err = domain.ParseStatus(status); err != nil {
		return nil, err
	}
	if p.ExpirationDate, err = civil.ParseDate(expiration); err != nil {
		return nil, err
	}
	if p.OpenDate, err = civil.ParseDate(opened); err != nil {
		return nil, err
	}

	// Live quotes are not persisted.
	p.CurrentPrice = domain.PriceUnset
	return &p, nil
}
