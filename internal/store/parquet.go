package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"optrack/internal/domain"
)

// ArchiveRecord is the Parquet schema for settled positions exported by the
// archive tool. Dates are kept as ISO-8601 strings to match the JSON
// snapshot format.
type ArchiveRecord struct {
	PositionID     int64   `parquet:"position_id"`
	Ticker         string  `parquet:"ticker"`
	ContractType   string  `parquet:"contract_type"`
	Quantity       int32   `parquet:"quantity"`
	TradeDirection string  `parquet:"trade_direction"`
	StrikePrice    float64 `parquet:"strike_price"`
	ExpirationDate string  `parquet:"expiration_date"`
	Premium        float64 `parquet:"premium"`
	OpenPrice      float64 `parquet:"open_price"`
	OpenDate       string  `parquet:"open_date"`
	PositionStatus string  `parquet:"position_status"`
	ClosePrice     float64 `parquet:"close_price"`
	Profit         float64 `parquet:"profit"`
}

// WriteArchive writes the given positions to a Parquet file at path,
// creating parent directories as needed. Intended for settled positions;
// live-quote state is not part of the schema.
func WriteArchive(path string, positions []*domain.Position) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}

	records := make([]ArchiveRecord, 0, len(positions))
	for _, p := range positions {
		records = append(records, ArchiveRecord{
			PositionID:     p.ID,
			Ticker:         p.Ticker,
			ContractType:   string(p.ContractType),
			Quantity:       int32(p.Quantity),
			TradeDirection: string(p.TradeDirection),
			StrikePrice:    p.StrikePrice,
			ExpirationDate: p.ExpirationDate.String(),
			Premium:        p.Premium,
			OpenPrice:      p.OpenPrice,
			OpenDate:       p.OpenDate.String(),
			PositionStatus: string(p.Status),
			ClosePrice:     p.ClosePrice,
			Profit:         p.Profit,
		})
	}

	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("writing archive %s: %w", path, err)
	}
	return nil
}

// ReadArchive reads an archive file back, mostly for verification in tests
// and ad-hoc inspection.
func ReadArchive(path string) ([]ArchiveRecord, error) {
	records, err := parquet.ReadFile[ArchiveRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading archive %s: %w", path, err)
	}
	return records, nil
}
