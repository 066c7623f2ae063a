package orders

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/KevinKickass/OpenRotoCore/internal/api/websocket"
	"github.com/KevinKickass/OpenRotoCore/internal/molding"
	"go.uber.org/zap"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrOrderExists   = errors.New("order already exists")
	ErrInvalidOrder  = errors.New("invalid order")
)

// Store is the persistence the service writes through to. *Repository satisfies it.
type Store interface {
	Save(ctx context.Context, o *molding.Order) error
	LoadAll(ctx context.Context) ([]*molding.Order, error)
}

type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

// Progress is a read-only view of one order.
type Progress struct {
	OrderID          string         `json:"order_id"`
	MoldRequirements map[string]int `json:"mold_requirements"`
	CompletionStatus map[string]int `json:"completion_status"`
	Remaining        map[string]int `json:"remaining"`
	Deadline         *time.Time     `json:"deadline,omitempty"`
	IsComplete       bool           `json:"is_complete"`
	IsOverdue        bool           `json:"is_overdue"`
}

// Service owns the live order ledger. A nil store keeps orders in memory only.
type Service struct {
	logger *zap.Logger
	store  Store
	hub    Broadcaster
	now    func() time.Time

	mu     sync.RWMutex
	orders map[string]*molding.Order
}

func NewService(store Store, hub Broadcaster, logger *zap.Logger) *Service {
	return &Service{
		logger: logger,
		store:  store,
		hub:    hub,
		now:    time.Now,
		orders: make(map[string]*molding.Order),
	}
}

// Load replaces the in-memory ledger with the stored orders.
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	loaded, err := s.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = make(map[string]*molding.Order, len(loaded))
	for _, o := range loaded {
		s.orders[o.OrderID] = o
	}
	s.logger.Info("Orders loaded", zap.Int("count", len(loaded)))
	return nil
}

func (s *Service) Create(ctx context.Context, orderID string, requirements map[string]int, deadline time.Time) (Progress, error) {
	if orderID == "" {
		return Progress{}, fmt.Errorf("%w: order id is required", ErrInvalidOrder)
	}
	if len(requirements) == 0 {
		return Progress{}, fmt.Errorf("%w: no mold requirements", ErrInvalidOrder)
	}
	for moldID, qty := range requirements {
		if qty <= 0 {
			return Progress{}, fmt.Errorf("%w: quantity for %s must be positive", ErrInvalidOrder, moldID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[orderID]; exists {
		return Progress{}, fmt.Errorf("%w: %s", ErrOrderExists, orderID)
	}

	o := molding.NewOrder(orderID, requirements, deadline)
	if err := s.persist(ctx, o); err != nil {
		return Progress{}, err
	}
	s.orders[orderID] = o

	s.logger.Info("Order created",
		zap.String("order_id", orderID),
		zap.Int("molds", len(requirements)))
	return s.progress(o), nil
}

func (s *Service) Get(orderID string) (Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok {
		return Progress{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return s.progress(o), nil
}

// List returns every order sorted by id.
func (s *Service) List() []Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(s.orders))
	out := make([]Progress, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.progress(s.orders[id]))
	}
	return out
}

// RecordProduction credits qty parts of moldID to the order.
func (s *Service) RecordProduction(ctx context.Context, orderID, moldID string, qty int) (Progress, error) {
	if qty < 0 {
		return Progress{}, fmt.Errorf("%w: produced quantity must not be negative", ErrInvalidOrder)
	}
	return s.update(ctx, orderID, func(o *molding.Order) {
		o.UpdateProgress(moldID, qty)
	})
}

// CreditCycle credits one part per mounted mold from a successful cycle.
func (s *Service) CreditCycle(ctx context.Context, orderID string, moldIDs []string) (Progress, error) {
	return s.update(ctx, orderID, func(o *molding.Order) {
		for _, moldID := range moldIDs {
			o.UpdateProgress(moldID, 1)
		}
	})
}

func (s *Service) CheckCompletion(orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return o.CheckCompletion(), nil
}

// update applies fn, refreshes completion, persists, and broadcasts. The in-memory
// order is kept even if persisting fails; the error is returned to the caller.
func (s *Service) update(ctx context.Context, orderID string, fn func(o *molding.Order)) (Progress, error) {
	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return Progress{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	wasComplete := o.IsComplete
	fn(o)
	o.CheckCompletion()
	p := s.progress(o)
	err := s.persist(ctx, o)
	s.mu.Unlock()

	if p.IsComplete && !wasComplete {
		s.logger.Info("Order completed", zap.String("order_id", orderID))
	}
	if s.hub != nil {
		s.hub.Broadcast(websocket.NewOrderProgressMessage(orderID, p.Remaining, p.IsComplete))
	}
	return p, err
}

func (s *Service) persist(ctx context.Context, o *molding.Order) error {
	if s.store == nil {
		return nil
	}
	return s.store.Save(ctx, o)
}

func (s *Service) progress(o *molding.Order) Progress {
	p := Progress{
		OrderID:          o.OrderID,
		MoldRequirements: maps.Clone(o.MoldRequirements),
		CompletionStatus: maps.Clone(o.CompletionStatus),
		Remaining:        o.Remaining(),
		IsComplete:       o.IsComplete,
		IsOverdue:        o.IsOverdue(s.now()),
	}
	if !o.Deadline.IsZero() {
		d := o.Deadline
		p.Deadline = &d
	}
	return p
}
