// Package lifecycle coordinates options positions from opening through
// expiry and settlement, keeping the in-memory ordered lists and the backing
// store consistent as time advances and new positions arrive.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"optrack/internal/domain"
	"optrack/internal/oracle"
	"optrack/internal/store"
)

// Coordinator owns the active and inactive position lists, both kept ordered
// ascending by expiration date. The store is the source of truth; the lists
// are a rebuildable index over it, reconstructed on every Initialize.
//
// All mutations run under a single mutex, so no two transitions interleave
// against the same list. Queries hand out copies, never live references.
type Coordinator struct {
	store  store.PositionStore
	oracle oracle.PriceOracle
	log    *slog.Logger
	today  func() civil.Date

	mu       sync.Mutex
	active   []*domain.Position
	inactive []*domain.Position
}

// New creates a Coordinator over the given store and oracle. Call Initialize
// before serving queries.
func New(st store.PositionStore, po oracle.PriceOracle) *Coordinator {
	return &Coordinator{
		store:  st,
		oracle: po,
		log:    slog.Default().With("component", "lifecycle"),
		today:  func() civil.Date { return civil.DateOf(time.Now()) },
	}
}

// Initialize loads all positions from the store partitioned by expiry flag,
// then settles every active position whose expiration has passed. The active
// list is sorted before the scan rather than trusting store order, so the
// expired positions form a contiguous prefix and the scan can stop at the
// first position that is still live.
//
// Any oracle or store failure aborts the batch: progress already persisted
// stays persisted, and the next Initialize picks up where this one stopped.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	positions, err := c.store.List(ctx, store.FilterAll)
	if err != nil {
		return fmt.Errorf("loading positions: %w", err)
	}

	c.active = c.active[:0]
	c.inactive = c.inactive[:0]
	for _, p := range positions {
		if p.IsExpired {
			c.inactive = append(c.inactive, p)
		} else {
			c.active = append(c.active, p)
		}
	}
	sortByExpiration(c.active)
	sortByExpiration(c.inactive)

	today := c.today()
	settled := 0
	for len(c.active) > 0 {
		p := c.active[0]
		if !p.ExpiredAsOf(today) {
			break
		}
		if err := c.settle(ctx, p); err != nil {
			return err
		}
		c.active = c.active[1:]
		insertOrdered(&c.inactive, p)
		settled++
	}

	c.log.Info("initialized",
		"active", len(c.active),
		"inactive", len(c.inactive),
		"settled", settled,
	)
	return nil
}

// AddPosition validates the terms, resolves prices through the oracle,
// persists the position, and files it into the correct ordered list. Returns
// the assigned id and whether the position arrived already settled.
func (c *Coordinator) AddPosition(ctx context.Context, t domain.Terms) (int64, bool, error) {
	today := c.today()
	p, err := domain.NewPosition(t, today)
	if err != nil {
		return 0, false, err
	}

	if p.IsExpired {
		// Expired on arrival: resolve the settlement price immediately.
		price, err := c.oracle.ClosingPrice(ctx, p.Ticker, p.ExpirationDate)
		if err != nil {
			return 0, false, err
		}
		if err := p.Settle(price); err != nil {
			return 0, false, err
		}
	} else {
		quote, err := c.oracle.CurrentOptionQuote(ctx, p.Ticker, p.ExpirationDate,
			p.StrikePrice, p.ContractType == domain.ContractCall)
		if err != nil {
			return 0, false, err
		}
		if err := p.MarkQuote(quote); err != nil {
			return 0, false, err
		}
	}

	id, err := c.store.Add(ctx, p)
	if err != nil {
		return 0, false, fmt.Errorf("persisting new position: %w", err)
	}
	if err := p.AssignID(id); err != nil {
		return 0, false, err
	}

	c.mu.Lock()
	if p.IsExpired {
		insertOrdered(&c.inactive, p)
	} else {
		insertOrdered(&c.active, p)
	}
	c.mu.Unlock()

	c.log.Info("position added", "id", id, "ticker", p.Ticker, "settled", p.IsExpired)
	return id, p.IsExpired, nil
}

// DeletePosition removes the position from its in-memory list and from the
// store. The expiry status is read from the store first to know which list
// holds the id. On any failure both the lists and the store are left
// unchanged.
func (c *Coordinator) DeletePosition(ctx context.Context, id int64) (bool, error) {
	expired, err := c.store.IsExpired(ctx, id)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	list := &c.active
	if expired {
		list = &c.inactive
	}
	idx := indexByID(*list, id)
	if idx < 0 {
		return false, fmt.Errorf("%w: id %d not in %s list", domain.ErrNotFound, id, listName(expired))
	}

	if err := c.store.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("deleting position %d: %w", id, err)
	}
	*list = append((*list)[:idx], (*list)[idx+1:]...)

	c.log.Info("position deleted", "id", id, "settled", expired)
	return expired, nil
}

// ActivePositions returns a snapshot of the active list ordered by
// expiration date.
func (c *Coordinator) ActivePositions() []*domain.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clonePositions(c.active)
}

// InactivePositions returns a snapshot of the inactive list ordered by
// expiration date.
func (c *Coordinator) InactivePositions() []*domain.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clonePositions(c.inactive)
}

// settle resolves the settlement price, transitions the position, and
// persists the outcome. Caller holds mu. A crash between the store update
// and the list reinsertion is healed by the next Initialize, which rebuilds
// the lists from the store.
func (c *Coordinator) settle(ctx context.Context, p *domain.Position) error {
	price, err := c.oracle.ClosingPrice(ctx, p.Ticker, p.ExpirationDate)
	if err != nil {
		return fmt.Errorf("resolving settlement price for position %d: %w", p.ID, err)
	}
	if err := p.Settle(price); err != nil {
		return err
	}
	if err := c.store.Update(ctx, p.ID, store.SettlementFields(p)); err != nil {
		return fmt.Errorf("persisting settlement for position %d: %w", p.ID, err)
	}
	c.log.Info("position settled",
		"id", p.ID,
		"ticker", p.Ticker,
		"status", p.Status,
		"close", p.ClosePrice,
		"profit", p.Profit,
	)
	return nil
}

// insertOrdered places p into list keeping ascending expiration-date order.
// Equal dates insert after existing entries, so batch order is preserved.
func insertOrdered(list *[]*domain.Position, p *domain.Position) {
	i := sort.Search(len(*list), func(i int) bool {
		return (*list)[i].ExpirationDate.After(p.ExpirationDate)
	})
	*list = append(*list, nil)
	copy((*list)[i+1:], (*list)[i:])
	(*list)[i] = p
}

func sortByExpiration(list []*domain.Position) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].ExpirationDate.Before(list[j].ExpirationDate)
	})
}

func indexByID(list []*domain.Position, id int64) int {
	for i, p := range list {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func clonePositions(list []*domain.Position) []*domain.Position {
	out := make([]*domain.Position, len(list))
	for i, p := range list {
		out[i] = p.Clone()
	}
	return out
}

func listName(expired bool) string {
	if expired {
		return "inactive"
	}
	return "active"
}
