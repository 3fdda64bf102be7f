package storefront

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"invoicesync/internal/models"
)

// MemoryStore keeps orders in process. It backs local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[int64]*models.Order
	notes    map[int64][]string
	gateways []models.PaymentGateway
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[int64]*models.Order),
		notes:  make(map[int64][]string),
	}
}

// Put stores a copy of the order, replacing any previous version.
func (m *MemoryStore) Put(order *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = cloneOrder(order)
}

func (m *MemoryStore) GetOrder(_ context.Context, orderID int64) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrOrderNotFound)
	}
	return cloneOrder(o), nil
}

func (m *MemoryStore) UpdateOrderMeta(_ context.Context, orderID int64, updates map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrOrderNotFound)
	}
	o.ApplyMeta(updates)
	return nil
}

func (m *MemoryStore) AddOrderNote(_ context.Context, orderID int64, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrOrderNotFound)
	}
	m.notes[orderID] = append(m.notes[orderID], note)
	return nil
}

// Notes returns the notes added to an order, oldest first.
func (m *MemoryStore) Notes(orderID int64) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.notes[orderID])
}

func (m *MemoryStore) SetPaymentGateways(gateways []models.PaymentGateway) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateways = slices.Clone(gateways)
}

func (m *MemoryStore) PaymentGateways(context.Context) ([]models.PaymentGateway, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.gateways), nil
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	c.Meta = maps.Clone(o.Meta)
	if c.Meta == nil {
		c.Meta = make(map[string]string)
	}
	return &c
}
