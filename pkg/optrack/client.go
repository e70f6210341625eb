// Package optrack provides a Go client for the optrack-server API.
//
// The package is self-contained: it speaks the server's JSON wire format
// directly and does not depend on the server's internal types, so it can be
// vendored into other projects as-is.
package optrack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sentinel errors mapped from the server's HTTP status codes. Match with
// errors.Is.
var (
	// ErrInvalidRequest covers malformed or unacceptable contract terms.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound means the position id is unknown to the server.
	ErrNotFound = errors.New("position not found")
	// ErrPriceUnavailable means the server could not resolve a settlement
	// price or a live quote for the contract.
	ErrPriceUnavailable = errors.New("price unavailable")
)

// Client talks to a running optrack-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Position is a tracked options position as reported by the server. Dates
// are ISO-8601 strings (YYYY-MM-DD). ClosePrice and CurrentPrice are -1
// when not applicable.
type Position struct {
	ID             int64   `json:"position_id"`
	Ticker         string  `json:"ticker"`
	ContractType   string  `json:"contract_type"`
	Quantity       int     `json:"quantity"`
	TradeDirection string  `json:"trade_direction"`
	StrikePrice    float64 `json:"strike_price"`
	ExpirationDate string  `json:"expiration_date"`
	IsExpired      bool    `json:"is_expired"`
	Premium        float64 `json:"premium"`
	OpenPrice      float64 `json:"open_price"`
	OpenDate       string  `json:"open_date"`
	Status         string  `json:"position_status"`
	ClosePrice     float64 `json:"close_price"`
	Profit         float64 `json:"profit"`
	CurrentPrice   float64 `json:"current_price"`
}

// NewPosition describes the contract terms for AddPosition.
type NewPosition struct {
	Ticker         string  `json:"ticker"`
	ContractType   string  `json:"contract_type"`
	TradeDirection string  `json:"trade_direction"`
	Quantity       int     `json:"quantity"`
	StrikePrice    float64 `json:"strike_price"`
	ExpirationDate string  `json:"expiration_date"`
	Premium        float64 `json:"premium"`
	OpenPrice      float64 `json:"open_price"`
	OpenDate       string  `json:"open_date"`
}

// AddPositionResult reports the outcome of an AddPosition call.
type AddPositionResult struct {
	ID      int64 `json:"id"`
	Settled bool  `json:"settled"`
}

// ActivePositions returns all open positions ordered by expiration date.
func (c *Client) ActivePositions(ctx context.Context) ([]Position, error) {
	var out []Position
	if err := c.get(ctx, "/api/positions/active", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InactivePositions returns all settled positions ordered by expiration date.
func (c *Client) InactivePositions(ctx context.Context) ([]Position, error) {
	var out []Position
	if err := c.get(ctx, "/api/positions/inactive", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddPosition registers a new position and returns its assigned id along
// with whether it was settled on arrival.
func (c *Client) AddPosition(ctx context.Context, p NewPosition) (AddPositionResult, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return AddPositionResult{}, fmt.Errorf("encoding position: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/positions", bytes.NewReader(body))
	if err != nil {
		return AddPositionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out AddPositionResult
	if err := c.do(req, http.StatusCreated, &out); err != nil {
		return AddPositionResult{}, err
	}
	return out, nil
}

// DeletePosition removes a position by id. The returned flag reports whether
// the removed position had settled.
func (c *Client) DeletePosition(ctx context.Context, id int64) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/api/positions/%d", c.baseURL, id), nil)
	if err != nil {
		return false, err
	}
	var out struct {
		Settled bool `json:"settled"`
	}
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return false, err
	}
	return out.Settled, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusOK, out)
}

// do executes the request, maps error statuses onto the package's sentinel
// errors, and decodes a successful response into out.
func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	msg := resp.Status
	if raw, err := io.ReadAll(resp.Body); err == nil {
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			msg = body.Error
		}
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrPriceUnavailable, msg)
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}
}
