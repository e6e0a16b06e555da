package stock

import (
	"context"
	"sync"
)

type cellKey struct {
	productID string
	variant   string
}

// MemoryLedger is an in-process Ledger with the same semantics as
// PGLedger, used in tests and for running the API without Postgres.
// A single mutex covers all cells; check and decrement happen under it.
type MemoryLedger struct {
	mu       sync.Mutex
	cells    map[cellKey]int
	inactive map[string]bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		cells:    make(map[cellKey]int),
		inactive: make(map[string]bool),
	}
}

// SetStock creates or overwrites a cell. Setup only, not a write path
// for callers of Ledger.
func (l *MemoryLedger) SetStock(productID, variant string, stock int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cells[cellKey{productID, variant}] = stock
}

func (l *MemoryLedger) SetActive(productID string, active bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if active {
		delete(l.inactive, productID)
	} else {
		l.inactive[productID] = true
	}
}

// Remove deletes a cell, simulating a product or variant that was
// removed from the catalog after orders referenced it.
func (l *MemoryLedger) Remove(productID, variant string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cells, cellKey{productID, variant})
}

func (l *MemoryLedger) Read(ctx context.Context, productID, variant string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stock, ok := l.cells[cellKey{productID, variant}]
	if !ok || l.inactive[productID] {
		return 0, ErrInvalidTarget
	}
	return stock, nil
}

func (l *MemoryLedger) TryReserve(ctx context.Context, productID, variant string, qty int) error {
	if qty < 1 {
		return ErrInvalidQty
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := cellKey{productID, variant}
	stock, ok := l.cells[key]
	if !ok || l.inactive[productID] {
		return ErrInvalidTarget
	}
	if stock < qty {
		return ErrInsufficientStock
	}
	l.cells[key] = stock - qty
	return nil
}

func (l *MemoryLedger) Release(ctx context.Context, productID, variant string, qty int) error {
	if qty < 1 {
		return ErrInvalidQty
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := cellKey{productID, variant}
	stock, ok := l.cells[key]
	if !ok {
		return ErrInvalidTarget
	}
	l.cells[key] = stock + qty
	return nil
}
