package orders

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdrakib/shopstock/internal/catalog"
	"github.com/mdrakib/shopstock/internal/stock"
)

func tshirt() catalog.Product {
	return catalog.Product{
		ID:         "p-tshirt",
		Title:      "Premium T-Shirt",
		PriceCents: 45000,
		Images:     []string{"https://cdn.example.com/tshirt.jpg"},
		Variants: []catalog.Variant{
			{Name: "M", Stock: 10},
			{Name: "L", Stock: 5},
		},
		IsActive: true,
	}
}

func mug() catalog.Product {
	return catalog.Product{
		ID:         "p-mug",
		Title:      "Ceramic Mug",
		PriceCents: 25000,
		Stock:      3, // no variants, root counter
		IsActive:   true,
	}
}

func TestCheckout_HappyPath(t *testing.T) {
	svc, f, l, st := newTestService()
	seed(f, l, tshirt())
	seed(f, l, mug())

	o, err := svc.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p-tshirt", Variant: "M", Qty: 3},
		{ProductID: "p-mug", Qty: 1},
	}, validShipping(), "COD", "")
	require.NoError(t, err)

	assert.Equal(t, StatusPlaced, o.Status)
	assert.Equal(t, PaymentCOD, o.PaymentMethod)
	assert.True(t, strings.HasPrefix(o.OrderNo, "#"))

	require.Len(t, o.Items, 2)
	assert.Equal(t, "Premium T-Shirt", o.Items[0].Title)
	assert.Equal(t, "https://cdn.example.com/tshirt.jpg", o.Items[0].Image)
	assert.Equal(t, "M", o.Items[0].Variant)
	assert.Equal(t, 45000, o.Items[0].PriceCents)
	assert.Equal(t, "", o.Items[1].Variant)

	assert.Equal(t, 3*45000+25000, o.SubTotalCents)
	assert.Equal(t, 11000, o.DeliveryChargeCents)
	assert.Equal(t, o.SubTotalCents+11000, o.TotalCents)

	assert.Equal(t, 7, mustStock(l, "p-tshirt", "M"))
	assert.Equal(t, 2, mustStock(l, "p-mug", ""))

	stored, err := st.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNo, stored.OrderNo)
}

func TestCheckout_NoItems(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Checkout(context.Background(), "u1", nil, validShipping(), "COD", "")
	assert.ErrorIs(t, err, ErrNoItems)
}

func TestCheckout_InvalidShippingBeforeAnyReservation(t *testing.T) {
	svc, f, l, _ := newTestService()
	seed(f, l, tshirt())

	ship := validShipping()
	ship.Division = ""
	_, err := svc.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p-tshirt", Variant: "M", Qty: 2},
	}, ship, "COD", "")

	assert.ErrorIs(t, err, ErrInvalidShipping)
	assert.Equal(t, 10, mustStock(l, "p-tshirt", "M"))
}

func TestCheckout_LineValidation(t *testing.T) {
	tests := []struct {
		name    string
		items   []ItemInput
		wantErr error
		line    int
	}{
		{
			name:    "unknown product",
			items:   []ItemInput{{ProductID: "nope", Qty: 1}},
			wantErr: stock.ErrInvalidTarget,
		},
		{
			name:    "inactive product",
			items:   []ItemInput{{ProductID: "p-off", Qty: 1}},
			wantErr: stock.ErrInvalidTarget,
		},
		{
			name:    "unknown variant",
			items:   []ItemInput{{ProductID: "p-tshirt", Variant: "XXL", Qty: 1}},
			wantErr: stock.ErrInvalidTarget,
		},
		{
			name:    "variant required but missing",
			items:   []ItemInput{{ProductID: "p-tshirt", Qty: 1}},
			wantErr: stock.ErrInvalidTarget,
		},
		{
			name:    "variant given for variant-less product",
			items:   []ItemInput{{ProductID: "p-mug", Variant: "M", Qty: 1}},
			wantErr: stock.ErrInvalidTarget,
		},
		{
			name:    "non-positive qty",
			items:   []ItemInput{{ProductID: "p-tshirt", Variant: "M", Qty: 0}},
			wantErr: stock.ErrInvalidQty,
		},
		{
			name: "failing line reported by index",
			items: []ItemInput{
				{ProductID: "p-tshirt", Variant: "M", Qty: 1},
				{ProductID: "p-tshirt", Variant: "XXL", Qty: 1},
			},
			wantErr: stock.ErrInvalidTarget,
			line:    1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, f, l, _ := newTestService()
			seed(f, l, tshirt())
			seed(f, l, mug())
			off := mug()
			off.ID = "p-off"
			off.IsActive = false
			seed(f, l, off)

			_, err := svc.Checkout(context.Background(), "u1", tc.items, validShipping(), "COD", "")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)

			var le *LineError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tc.line, le.Line)

			// validation failures never touch stock
			assert.Equal(t, 10, mustStock(l, "p-tshirt", "M"))
			assert.Equal(t, 3, mustStock(l, "p-mug", ""))
		})
	}
}

// A two-line checkout where the second line cannot be reserved must
// leave the first line's stock exactly where it started.
func TestCheckout_RollbackOnPartialFailure(t *testing.T) {
	svc, f, l, _ := newTestService()
	seed(f, l, tshirt())
	seed(f, l, mug())

	_, err := svc.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p-tshirt", Variant: "M", Qty: 2},
		{ProductID: "p-mug", Qty: 9}, // only 3 in stock
	}, validShipping(), "COD", "")

	require.Error(t, err)
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)
	var le *LineError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 1, le.Line)
	assert.Equal(t, "p-mug", le.ProductID)

	assert.Equal(t, 10, mustStock(l, "p-tshirt", "M"))
	assert.Equal(t, 3, mustStock(l, "p-mug", ""))
}

func TestCheckout_ReleasesStockWhenPersistFails(t *testing.T) {
	svc, f, l, st := newTestService()
	seed(f, l, tshirt())
	dbDown := errors.New("db down")
	st.createErrs = []error{dbDown}

	_, err := svc.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p-tshirt", Variant: "M", Qty: 4},
	}, validShipping(), "COD", "")

	require.ErrorIs(t, err, dbDown)
	assert.Equal(t, 10, mustStock(l, "p-tshirt", "M"))
}

func TestCheckout_RetriesOnOrderNoCollision(t *testing.T) {
	svc, f, l, st := newTestService()
	seed(f, l, tshirt())
	st.createErrs = []error{ErrDuplicateOrderNo}

	o, err := svc.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p-tshirt", Variant: "L", Qty: 1},
	}, validShipping(), "COD", "")

	require.NoError(t, err)
	assert.NotEmpty(t, o.OrderNo)
	// one reservation, not one per attempt
	assert.Equal(t, 4, mustStock(l, "p-tshirt", "L"))
}

func TestCheckout_PaymentMethodNormalized(t *testing.T) {
	svc, f, l, _ := newTestService()
	seed(f, l, tshirt())

	o, err := svc.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p-tshirt", Variant: "M", Qty: 1},
	}, validShipping(), "bkash", "")
	require.NoError(t, err)
	assert.Equal(t, PaymentCOD, o.PaymentMethod)

	o2, err := svc.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p-tshirt", Variant: "M", Qty: 1},
	}, validShipping(), "FULL_PAYMENT", "")
	require.NoError(t, err)
	assert.Equal(t, PaymentFull, o2.PaymentMethod)
}

// A retried checkout carrying the same external id must hand back the
// stored order instead of reserving a second time.
func TestCheckout_ExternalIDReplaysExistingOrder(t *testing.T) {
	svc, f, l, st := newTestService()
	seed(f, l, tshirt())

	o1, err := svc.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p-tshirt", Variant: "M", Qty: 2},
	}, validShipping(), "COD", "ext-42")
	require.NoError(t, err)
	assert.Equal(t, 8, mustStock(l, "p-tshirt", "M"))

	o2, err := svc.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p-tshirt", Variant: "M", Qty: 2},
	}, validShipping(), "COD", "ext-42")
	require.NoError(t, err)
	assert.Equal(t, o1.ID, o2.ID)
	assert.Equal(t, o1.OrderNo, o2.OrderNo)
	assert.Equal(t, 8, mustStock(l, "p-tshirt", "M"))

	all, err := st.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// When the duplicate external id only surfaces at insert time (a twin
// request won the race after our replay check), the reservation must be
// given back.
func TestCheckout_ExternalIDRaceReleasesStock(t *testing.T) {
	svc, f, l, st := newTestService()
	seed(f, l, tshirt())
	st.createErrs = []error{ErrDuplicateExternalID}

	_, err := svc.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p-tshirt", Variant: "M", Qty: 2},
	}, validShipping(), "COD", "ext-9")

	require.ErrorIs(t, err, ErrDuplicateExternalID)
	assert.Equal(t, 10, mustStock(l, "p-tshirt", "M"))
}

// Changing the product after placement must not leak into the frozen
// line snapshot.
func TestCheckout_SnapshotImmutable(t *testing.T) {
	svc, f, l, st := newTestService()
	seed(f, l, tshirt())

	o, err := svc.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p-tshirt", Variant: "M", Qty: 2},
	}, validShipping(), "COD", "")
	require.NoError(t, err)

	p := f.products["p-tshirt"]
	p.PriceCents = 99000
	p.Title = "Renamed"
	f.products["p-tshirt"] = p

	stored, err := st.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, 45000, stored.Items[0].PriceCents)
	assert.Equal(t, "Premium T-Shirt", stored.Items[0].Title)
	assert.Equal(t, 2*45000, stored.SubTotalCents)
	assert.Equal(t, 2*45000+11000, stored.TotalCents)
}
