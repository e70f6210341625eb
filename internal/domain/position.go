// Package domain defines the options-position entity, its lifecycle
// transitions, and the error taxonomy shared across the system.
package domain

import (
	"fmt"
	"math"
	"strings"

	"cloud.google.com/go/civil"
)

// ContractType is the option side of a position.
type ContractType string

const (
	ContractCall ContractType = "CALL"
	ContractPut  ContractType = "PUT"
)

// ParseContractType converts caller-supplied input (case-insensitive) into a
// ContractType.
func ParseContractType(s string) (ContractType, error) {
	switch ContractType(strings.ToUpper(strings.TrimSpace(s))) {
	case ContractCall:
		return ContractCall, nil
	case ContractPut:
		return ContractPut, nil
	}
	return "", fmt.Errorf("%w: unknown contract type %q", ErrValidation, s)
}

// TradeDirection is the side the holder took on the contract.
type TradeDirection string

const (
	DirectionLong  TradeDirection = "LONG"
	DirectionShort TradeDirection = "SHORT"
)

// ParseTradeDirection converts caller-supplied input (case-insensitive) into
// a TradeDirection.
func ParseTradeDirection(s string) (TradeDirection, error) {
	switch TradeDirection(strings.ToUpper(strings.TrimSpace(s))) {
	case DirectionLong:
		return DirectionLong, nil
	case DirectionShort:
		return DirectionShort, nil
	}
	return "", fmt.Errorf("%w: unknown trade direction %q", ErrValidation, s)
}

// Status is the lifecycle state of a position.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusExpired   Status = "EXPIRED"
	StatusExercised Status = "EXERCISED"

	// StatusClosed is reserved for early-close support; the lifecycle never
	// produces it today.
	StatusClosed Status = "CLOSED"
)

// ParseStatus converts a stored status string back into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusOpen:
		return StatusOpen, nil
	case StatusExpired:
		return StatusExpired, nil
	case StatusExercised:
		return StatusExercised, nil
	case StatusClosed:
		return StatusClosed, nil
	}
	return "", fmt.Errorf("%w: unknown position status %q", ErrValidation, s)
}

// PriceUnset marks close_price before settlement and current_price after it.
const PriceUnset = -1

// ContractMultiplier is the number of underlying shares per contract.
const ContractMultiplier = 100

// Terms are the immutable contract terms supplied when a position is opened.
type Terms struct {
	Ticker         string
	ContractType   ContractType
	TradeDirection TradeDirection
	Quantity       int
	StrikePrice    float64
	ExpirationDate civil.Date
	Premium        float64
	OpenPrice      float64
	OpenDate       civil.Date
}

// Position is one options contract holding. Contract terms never change
// after construction; Status, ClosePrice, and Profit are written exactly
// once, at settlement. CurrentPrice is a live quote and is not persisted by
// the SQL backend.
type Position struct {
	ID             int64          `json:"position_id"`
	Ticker         string         `json:"ticker"`
	ContractType   ContractType   `json:"contract_type"`
	Quantity       int            `json:"quantity"`
	TradeDirection TradeDirection `json:"trade_direction"`
	StrikePrice    float64        `json:"strike_price"`
	ExpirationDate civil.Date     `json:"expiration_date"`
	IsExpired      bool           `json:"is_expired"`
	Premium        float64        `json:"premium"`
	OpenPrice      float64        `json:"open_price"`
	OpenDate       civil.Date     `json:"open_date"`
	Status         Status         `json:"position_status"`
	ClosePrice     float64        `json:"close_price"`
	Profit         float64        `json:"profit"`
	CurrentPrice   float64        `json:"current_price"`
}

// NewPosition validates the terms and returns an open position. IsExpired is
// computed against today; resolving a settlement price for an
// already-expired position is the coordinator's job, so the entity itself
// never touches the oracle.
func NewPosition(t Terms, today civil.Date) (*Position, error) {
	if !t.OpenDate.Before(t.ExpirationDate) {
		return nil, fmt.Errorf("%w: open date %s must be before expiration date %s",
			ErrValidation, t.OpenDate, t.ExpirationDate)
	}
	if t.Premium <= 0 {
		return nil, fmt.Errorf("%w: premium must be positive, got %v", ErrValidation, t.Premium)
	}
	if t.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", ErrValidation, t.Quantity)
	}
	if _, err := ParseContractType(string(t.ContractType)); err != nil {
		return nil, err
	}
	if _, err := ParseTradeDirection(string(t.TradeDirection)); err != nil {
		return nil, err
	}

	return &Position{
		Ticker:         strings.ToUpper(t.Ticker),
		ContractType:   t.ContractType,
		Quantity:       t.Quantity,
		TradeDirection: t.TradeDirection,
		StrikePrice:    t.StrikePrice,
		ExpirationDate: t.ExpirationDate,
		IsExpired:      today.After(t.ExpirationDate),
		Premium:        t.Premium,
		OpenPrice:      t.OpenPrice,
		OpenDate:       t.OpenDate,
		Status:         StatusOpen,
		ClosePrice:     PriceUnset,
		CurrentPrice:   PriceUnset,
	}, nil
}

// AssignID records the store-issued id. It may only be called once, on a
// position that has never been persisted.
func (p *Position) AssignID(id int64) error {
	if p.ID != 0 {
		return fmt.Errorf("position already has id %d, refusing to reassign to %d", p.ID, id)
	}
	p.ID = id
	return nil
}

// ExpiredAsOf reports whether the contract's expiration date has passed as
// of today.
func (p *Position) ExpiredAsOf(today civil.Date) bool {
	return today.After(p.ExpirationDate)
}

// MarkQuote records the live option quote for an open position and
// recomputes its unrealized profit.
func (p *Position) MarkQuote(price float64) error {
	if p.Status != StatusOpen {
		return fmt.Errorf("cannot mark quote on %s position %d", p.Status, p.ID)
	}
	p.CurrentPrice = price
	p.Profit = p.computeProfit()
	return nil
}

// Settle transitions the position out of OPEN given the underlying price at
// expiration. A CALL is exercised when the underlying closed above the
// strike, a PUT when it closed below; everything else expires worthless.
// Re-settling with the same price is a no-op; re-settling with a different
// price is rejected so a terminal position is never silently rewritten.
func (p *Position) Settle(underlying float64) error {
	if p.Status != StatusOpen {
		if p.ClosePrice == underlying {
			return nil
		}
		return fmt.Errorf("position %d already settled at %.2f, refusing to resettle at %.2f",
			p.ID, p.ClosePrice, underlying)
	}

	exercised := (p.ContractType == ContractCall && underlying > p.StrikePrice) ||
		(p.ContractType == ContractPut && underlying < p.StrikePrice)
	if exercised {
		p.Status = StatusExercised
	} else {
		p.Status = StatusExpired
	}

	p.ClosePrice = underlying
	p.IsExpired = true
	p.CurrentPrice = PriceUnset
	p.Profit = p.computeProfit()
	return nil
}

// computeProfit returns the total profit of the position. For open positions
// this is the unrealized mark against the live quote; for settled positions
// it is the intrinsic value at close less the premium paid.
func (p *Position) computeProfit() float64 {
	var perUnderlying float64
	if p.Status == StatusOpen {
		perUnderlying = p.CurrentPrice - p.Premium
	} else {
		priceDiff := p.ClosePrice - p.StrikePrice
		perUnderlying = -p.Premium
		switch p.ContractType {
		case ContractCall:
			perUnderlying += math.Max(priceDiff, 0)
		case ContractPut:
			perUnderlying += math.Max(-priceDiff, 0)
		}
	}

	sign := 1.0
	if p.TradeDirection == DirectionShort {
		sign = -1.0
	}
	return float64(p.Quantity) * perUnderlying * ContractMultiplier * sign
}

// Clone returns a copy of the position for read-only snapshots.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}
