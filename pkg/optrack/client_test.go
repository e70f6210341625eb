package optrack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newStubServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/positions/active", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([]Position{{
			ID: 1, Ticker: "AAPL", ContractType: "CALL", TradeDirection: "LONG",
			Quantity: 2, StrikePrice: 150, ExpirationDate: "2030-01-17",
			Premium: 10, OpenPrice: 148.5, OpenDate: "2024-01-02",
			Status: "OPEN", ClosePrice: -1, CurrentPrice: 12.5, Profit: 500,
		}})
	})
	mux.HandleFunc("GET /api/positions/inactive", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([]Position{})
	})
	mux.HandleFunc("POST /api/positions", func(w http.ResponseWriter, r *http.Request) {
		var p NewPosition
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Ticker == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "validation failed"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(AddPositionResult{ID: 7, Settled: false})
	})
	mux.HandleFunc("DELETE /api/positions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "no such position"})
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"settled": true})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, NewClient(ts.URL)
}

func TestActivePositions(t *testing.T) {
	_, c := newStubServer(t)

	positions, err := c.ActivePositions(context.Background())
	if err != nil {
		t.Fatalf("ActivePositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	p := positions[0]
	if p.ID != 1 || p.Ticker != "AAPL" || p.CurrentPrice != 12.5 {
		t.Errorf("position = %+v", p)
	}
}

func TestInactivePositionsEmpty(t *testing.T) {
	_, c := newStubServer(t)

	positions, err := c.InactivePositions(context.Background())
	if err != nil {
		t.Fatalf("InactivePositions: %v", err)
	}
	if len(positions) != 0 {
		t.Errorf("got %d positions, want 0", len(positions))
	}
}

func TestAddPosition(t *testing.T) {
	_, c := newStubServer(t)

	res, err := c.AddPosition(context.Background(), NewPosition{
		Ticker: "AAPL", ContractType: "CALL", TradeDirection: "LONG",
		Quantity: 2, StrikePrice: 150, ExpirationDate: "2030-01-17",
		Premium: 10, OpenPrice: 148.5, OpenDate: "2024-01-02",
	})
	if err != nil {
		t.Fatalf("AddPosition: %v", err)
	}
	if res.ID != 7 || res.Settled {
		t.Errorf("result = %+v", res)
	}
}

func TestAddPositionInvalid(t *testing.T) {
	_, c := newStubServer(t)

	_, err := c.AddPosition(context.Background(), NewPosition{})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestDeletePosition(t *testing.T) {
	_, c := newStubServer(t)

	settled, err := c.DeletePosition(context.Background(), 7)
	if err != nil {
		t.Fatalf("DeletePosition: %v", err)
	}
	if !settled {
		t.Error("settled = false, want true")
	}

	_, err = c.DeletePosition(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
