package catalog

import "time"

// Variant is a named stock-keeping unit within a product. Its stock
// counter is mutated only through the stock package.
type Variant struct {
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

type Product struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	CategoryID     string    `json:"category_id"`
	PriceCents     int       `json:"price_cents"`
	CompareAtCents int       `json:"compare_at_cents"`
	Images         []string  `json:"images"`
	Description    string    `json:"description"`
	Variants       []Variant `json:"variants"`
	DeliveryDays   string    `json:"delivery_days"`
	IsActive       bool      `json:"is_active"`
	// Stock is the root counter, used only when the product has no
	// variants.
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Product) HasVariants() bool { return len(p.Variants) > 0 }

func (p *Product) HasVariant(name string) bool {
	for _, v := range p.Variants {
		if v.Name == name {
			return true
		}
	}
	return false
}

func (p *Product) FirstImage() string {
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return ""
}
