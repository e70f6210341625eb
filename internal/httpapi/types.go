// Package httpapi provides the REST surface over the lifecycle coordinator:
// thin request/response marshaling, nothing more.
package httpapi

import (
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/civil"

	"optrack/internal/domain"
)

// AddPositionRequest carries caller-supplied contract terms. Numeric fields
// may arrive as JSON strings (frontends are sloppy about this) and are
// coerced during decoding.
type AddPositionRequest struct {
	Ticker         string    `json:"ticker"`
	ContractType   string    `json:"contract_type"`
	TradeDirection string    `json:"trade_direction"`
	Quantity       flexInt   `json:"quantity"`
	StrikePrice    flexFloat `json:"strike_price"`
	ExpirationDate string    `json:"expiration_date"`
	Premium        flexFloat `json:"premium"`
	OpenPrice      flexFloat `json:"open_price"`
	OpenDate       string    `json:"open_date"`
}

// Terms validates and converts the request into domain terms.
func (r *AddPositionRequest) Terms() (domain.Terms, error) {
	ct, err := domain.ParseContractType(r.ContractType)
	if err != nil {
		return domain.Terms{}, err
	}
	td, err := domain.ParseTradeDirection(r.TradeDirection)
	if err != nil {
		return domain.Terms{}, err
	}
	expiration, err := civil.ParseDate(r.ExpirationDate)
	if err != nil {
		return domain.Terms{}, fmt.Errorf("%w: expiration_date %q", domain.ErrValidation, r.ExpirationDate)
	}
	opened, err := civil.ParseDate(r.OpenDate)
	if err != nil {
		return domain.Terms{}, fmt.Errorf("%w: open_date %q", domain.ErrValidation, r.OpenDate)
	}

	return domain.Terms{
		Ticker:         r.Ticker,
		ContractType:   ct,
		TradeDirection: td,
		Quantity:       int(r.Quantity),
		StrikePrice:    float64(r.StrikePrice),
		ExpirationDate: expiration,
		Premium:        float64(r.Premium),
		OpenPrice:      float64(r.OpenPrice),
		OpenDate:       opened,
	}, nil
}

// AddPositionResponse reports the assigned id and whether the position was
// settled on arrival.
type AddPositionResponse struct {
	ID      int64 `json:"id"`
	Settled bool  `json:"settled"`
}

// DeletePositionResponse reports whether the removed position had settled.
type DeletePositionResponse struct {
	Settled bool `json:"settled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// flexFloat decodes from either a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: not a number: %q", domain.ErrValidation, s)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: not a number: %s", domain.ErrValidation, b)
	}
	*f = flexFloat(v)
	return nil
}

// flexInt decodes from either a JSON number or a numeric string.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	*n = flexInt(f)
	return nil
}
