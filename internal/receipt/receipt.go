package receipt

import "fmt"

// Receipt is the structured document extracted from a receipt photo
type Receipt struct {
	Merchant      Merchant    `json:"merchant"`
	Transaction   Transaction `json:"transaction"`
	Items         []Item      `json:"items"`
	Totals        Totals      `json:"totals"`
	PaymentMethod string      `json:"payment_method"`
}

// Merchant identifies the store; any field may be missing from the print
type Merchant struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
}

// Transaction holds when the purchase happened
type Transaction struct {
	Date          string  `json:"date"` // YYYY-MM-DD
	Time          string  `json:"time"` // HH:mm
	ReceiptNumber *string `json:"receipt_number"`
}

// Item is one printed line. TotalPrice is expected to be close to
// Quantity * PricePerUnit but OCR output is never rejected for it.
type Item struct {
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity"`
	PricePerUnit float64 `json:"price_per_unit"`
	TotalPrice   float64 `json:"total_price"`
}

// Totals as printed on the receipt
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
}

// Clone returns a deep copy
func (r *Receipt) Clone() *Receipt {
	if r == nil {
		return nil
	}
	c := *r
	c.Merchant = Merchant{
		Name:    cloneString(r.Merchant.Name),
		Address: cloneString(r.Merchant.Address),
		Phone:   cloneString(r.Merchant.Phone),
	}
	c.Transaction.ReceiptNumber = cloneString(r.Transaction.ReceiptNumber)
	c.Items = make([]Item, len(r.Items))
	copy(c.Items, r.Items)
	return &c
}

// MerchantName returns the merchant name or an empty string
func (r *Receipt) MerchantName() string {
	if r == nil || r.Merchant.Name == nil {
		return ""
	}
	return *r.Merchant.Name
}

// FormatAmount renders an amount the way the result screen shows it
func FormatAmount(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
