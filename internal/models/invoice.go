package models

import "fmt"

// Invoice is a quotation attached to a booking after the pricing step.
type Invoice struct {
	Number   string        `json:"number"`
	Subtotal float64       `json:"subtotal"`
	Discount float64       `json:"discount"`
	Tax      float64       `json:"tax"`
	Total    float64       `json:"total"`
	Items    []InvoiceItem `json:"items,omitempty"`
}

// InvoiceItem is a single priced line on an invoice.
type InvoiceItem struct {
	ServiceName string  `json:"service_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalPrice  float64 `json:"total_price"`
}

// Validate checks invoice amounts are usable for ledger computation.
func (i *Invoice) Validate() error {
	if i.Total < 0 {
		return fmt.Errorf("invoice total must not be negative")
	}
	if i.Subtotal < 0 || i.Discount < 0 || i.Tax < 0 {
		return fmt.Errorf("invoice amounts must not be negative")
	}
	for _, item := range i.Items {
		if item.Quantity < 0 || item.UnitPrice < 0 || item.TotalPrice < 0 {
			return fmt.Errorf("invoice item %q has negative amount", item.ServiceName)
		}
	}
	return nil
}
