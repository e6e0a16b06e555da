package orders

import (
	"context"
	"sync"

	"github.com/mdrakib/shopstock/internal/catalog"
	"github.com/mdrakib/shopstock/internal/stock"
)

// fakeProducts serves the catalog read path from a map, honoring the
// active-only contract of ActiveByIDs.
type fakeProducts struct {
	products map[string]catalog.Product
}

func (f *fakeProducts) ActiveByIDs(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	out := make(map[string]catalog.Product)
	for _, id := range ids {
		if p, ok := f.products[id]; ok && p.IsActive {
			out[id] = p
		}
	}
	return out, nil
}

// memStore is an in-memory Store with hooks to force Create/UpdateStatus
// failures.
type memStore struct {
	mu         sync.Mutex
	orders     map[string]*Order
	byNo       map[string]bool
	byExt      map[string]string // external id -> order id
	createErrs []error           // popped one per Create call
	updateErr  error
}

func newMemStore() *memStore {
	return &memStore{
		orders: make(map[string]*Order),
		byNo:   make(map[string]bool),
		byExt:  make(map[string]string),
	}
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.Items = append([]Line(nil), o.Items...)
	return &c
}

func (s *memStore) Create(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if s.byNo[o.OrderNo] {
		return ErrDuplicateOrderNo
	}
	if o.ExternalID != "" && s.byExt[o.ExternalID] != "" {
		return ErrDuplicateExternalID
	}
	s.byNo[o.OrderNo] = true
	if o.ExternalID != "" {
		s.byExt[o.ExternalID] = o.ID
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *memStore) GetByExternalID(ctx context.Context, ext string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExt[ext]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(s.orders[id]), nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	o, ok := s.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != from {
		return ErrStatusConflict
	}
	o.Status = to
	return nil
}

func (s *memStore) ListByUser(ctx context.Context, userID string, st Status) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.UserID == userID && (st == "" || o.Status == st) {
			out = append(out, *cloneOrder(o))
		}
	}
	return out, nil
}

func (s *memStore) ListAll(ctx context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		out = append(out, *cloneOrder(o))
	}
	return out, nil
}

// seed registers a product with the fake catalog and mirrors its stock
// cells into the ledger, the way schema.sql holds them side by side.
func seed(f *fakeProducts, l *stock.MemoryLedger, p catalog.Product) {
	f.products[p.ID] = p
	if len(p.Variants) == 0 {
		l.SetStock(p.ID, "", p.Stock)
	}
	for _, v := range p.Variants {
		l.SetStock(p.ID, v.Name, v.Stock)
	}
	l.SetActive(p.ID, p.IsActive)
}

func newTestService() (*Service, *fakeProducts, *stock.MemoryLedger, *memStore) {
	f := &fakeProducts{products: make(map[string]catalog.Product)}
	l := stock.NewMemoryLedger()
	st := newMemStore()
	svc := &Service{
		Ledger:              l,
		Products:            f,
		Store:               st,
		ServiceName:         "shop-api-test",
		DeliveryChargeCents: 11000,
	}
	return svc, f, l, st
}

func validShipping() Shipping {
	return Shipping{
		FullName:    "Rahim Uddin",
		Phone1:      "01700000000",
		Division:    "Dhaka",
		District:    "Dhaka",
		Upazila:     "Savar",
		AddressLine: "House 12, Road 3",
	}
}

func mustStock(l *stock.MemoryLedger, productID, variant string) int {
	n, err := l.Read(context.Background(), productID, variant)
	if err != nil {
		panic(err)
	}
	return n
}
