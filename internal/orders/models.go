package orders

import "time"

// Line is a frozen snapshot of one purchased variant at order-creation
// time. ProductID is a reference, not ownership: the product's price or
// availability may drift afterwards without affecting the line.
type Line struct {
	ProductID  string `json:"product_id"`
	Title      string `json:"title"`
	Image      string `json:"image"`
	Variant    string `json:"variant"` // empty when the product has no variants
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

type Shipping struct {
	FullName    string `json:"full_name"`
	Phone1      string `json:"phone1"`
	Phone2      string `json:"phone2"`
	Division    string `json:"division"`
	District    string `json:"district"`
	Upazila     string `json:"upazila"`
	AddressLine string `json:"address_line"`
	Note        string `json:"note"`
}

// Validate reports the first required field that is missing.
func (s Shipping) Validate() string {
	switch {
	case s.FullName == "":
		return "full_name"
	case s.Phone1 == "":
		return "phone1"
	case s.Division == "":
		return "division"
	case s.District == "":
		return "district"
	case s.Upazila == "":
		return "upazila"
	case s.AddressLine == "":
		return "address_line"
	}
	return ""
}

type PaymentMethod string

const (
	PaymentCOD  PaymentMethod = "COD"
	PaymentFull PaymentMethod = "FULL_PAYMENT"
)

// NormalizePayment defaults anything but FULL_PAYMENT to COD.
func NormalizePayment(s string) PaymentMethod {
	if PaymentMethod(s) == PaymentFull {
		return PaymentFull
	}
	return PaymentCOD
}

// Order is created once by a successful reservation pass over every
// line and is never deleted; only Status changes afterwards.
type Order struct {
	ID                  string        `json:"id"`
	OrderNo             string        `json:"order_no"`
	ExternalID          string        `json:"external_id,omitempty"` // client-supplied idempotency key
	UserID              string        `json:"user_id"`
	Items               []Line        `json:"items"`
	Shipping            Shipping      `json:"shipping"`
	PaymentMethod       PaymentMethod `json:"payment_method"`
	SubTotalCents       int           `json:"sub_total_cents"`
	DeliveryChargeCents int           `json:"delivery_charge_cents"`
	TotalCents          int           `json:"total_cents"`
	Status              Status        `json:"status"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}
