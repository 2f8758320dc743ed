package receipt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrItemIndex is returned when an edit targets an item that does not exist
var ErrItemIndex = errors.New("item index out of range")

// Model holds the extracted receipt and applies user edits. Every edit
// publishes a new snapshot, so readers never observe a half-written item.
type Model struct {
	current atomic.Pointer[Receipt]

	mu          sync.Mutex
	originals   map[int]string
	corrections map[string]string
}

// NewModel wraps an extracted receipt. The receipt is copied.
func NewModel(r *Receipt) *Model {
	m := &Model{
		originals:   make(map[int]string),
		corrections: make(map[string]string),
	}
	if r == nil {
		r = &Receipt{}
	}
	m.current.Store(r.Clone())
	return m
}

// Snapshot returns the current receipt. Callers must not modify it.
func (m *Model) Snapshot() *Receipt {
	return m.current.Load()
}

// Corrections returns a copy of the name-correction map, original name to corrected name
func (m *Model) Corrections() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.corrections))
	for k, v := range m.corrections {
		out[k] = v
	}
	return out
}

// HasItems reports whether extraction found any line items
func (m *Model) HasItems() bool {
	return len(m.Snapshot().Items) > 0
}

// DisplayTotal formats the printed total. Edited line items do not change it.
func (m *Model) DisplayTotal() string {
	return FormatAmount(m.Snapshot().Totals.Total)
}

// RenameItem sets an item's name and records the correction against the
// name extraction originally returned for that slot. Renaming back to the
// original removes the correction.
func (m *Model) RenameItem(index int, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.current.Load()
	if index < 0 || index >= len(prev.Items) {
		return fmt.Errorf("%w: %d", ErrItemIndex, index)
	}

	original, touched := m.originals[index]
	if !touched {
		original = prev.Items[index].Name
		m.originals[index] = original
	}

	next := prev.Clone()
	next.Items[index].Name = name
	m.current.Store(next)

	if name != original {
		m.corrections[original] = name
	} else {
		delete(m.corrections, original)
	}
	return nil
}

// SetItemTotal parses text as a decimal total price. Unparseable or
// negative input is stored as 0 rather than rejected.
func (m *Model) SetItemTotal(index int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.current.Load()
	if index < 0 || index >= len(prev.Items) {
		return fmt.Errorf("%w: %d", ErrItemIndex, index)
	}

	next := prev.Clone()
	next.Items[index].TotalPrice = parseAmount(text)
	m.current.Store(next)
	return nil
}

// SetMerchantName replaces the merchant name
func (m *Model) SetMerchantName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current.Load().Clone()
	next.Merchant.Name = &name
	m.current.Store(next)
}

// SetTransactionDate replaces the transaction date, normalized to YYYY-MM-DD
func (m *Model) SetTransactionDate(date string) error {
	iso, err := NormalizeDate(date)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current.Load().Clone()
	next.Transaction.Date = iso
	m.current.Store(next)
	return nil
}

func parseAmount(text string) float64 {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "$")
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
