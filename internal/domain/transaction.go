package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable fact record. It is never mutated after
// creation; evaluation always reads a fixed snapshot.
type Transaction struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	AccountID string `json:"accountId"`

	// Transaction classification (e.g. "transfer", "payment", "withdrawal")
	Type    string `json:"type"`
	SubType string `json:"subType,omitempty"`

	// Monetary details. BaseAmount/BaseCurrency hold the value normalized
	// to the organization's base currency.
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	BaseAmount   decimal.Decimal `json:"baseAmount"`
	BaseCurrency string          `json:"baseCurrency,omitempty"`

	// Counterparty and routing
	CounterpartyID string `json:"counterpartyId,omitempty"`
	Country        string `json:"country,omitempty"`
	Channel        string `json:"channel,omitempty"`

	// Asset trade details (optional)
	Asset    string          `json:"asset,omitempty"`
	Quantity decimal.Decimal `json:"quantity,omitempty"`
	Price    decimal.Decimal `json:"price,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Exclusion flags. Flagged rows never contribute to window aggregates.
	Voided  bool `json:"voided,omitempty"`
	Blocked bool `json:"blocked,omitempty"`
	Deleted bool `json:"deleted,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Excluded reports whether the transaction is excluded from aggregation.
func (t *Transaction) Excluded() bool {
	return t.Voided || t.Blocked || t.Deleted
}

// Attribute returns a named transaction attribute for aggregation and
// fact resolution. The second return is false for unknown names.
func (t *Transaction) Attribute(name string) (any, bool) {
	switch name {
	case "amount":
		return t.Amount, true
	case "baseAmount":
		return t.BaseAmount, true
	case "quantity":
		return t.Quantity, true
	case "price":
		return t.Price, true
	case "currency":
		return t.Currency, true
	case "country":
		return t.Country, true
	case "counterpartyId":
		return t.CounterpartyID, true
	case "channel":
		return t.Channel, true
	case "type":
		return t.Type, true
	case "subType":
		return t.SubType, true
	case "asset":
		return t.Asset, true
	case "accountId":
		return t.AccountID, true
	default:
		return nil, false
	}
}

// TransactionRequest is the API request payload for transaction evaluation.
type TransactionRequest struct {
	AccountID      string          `json:"accountId"`
	Type           string          `json:"type"`
	SubType        string          `json:"subType,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	CounterpartyID string          `json:"counterpartyId,omitempty"`
	Country        string          `json:"country,omitempty"`
	Channel        string          `json:"channel,omitempty"`
	Asset          string          `json:"asset,omitempty"`
	Quantity       decimal.Decimal `json:"quantity,omitempty"`
	Price          decimal.Decimal `json:"price,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

// ToTransaction converts a request to a Transaction domain object.
func (r *TransactionRequest) ToTransaction(tenantID string) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		TenantID:       tenantID,
		AccountID:      r.AccountID,
		Type:           r.Type,
		SubType:        r.SubType,
		Amount:         r.Amount,
		Currency:       r.Currency,
		BaseAmount:     r.Amount,
		BaseCurrency:   r.Currency,
		CounterpartyID: r.CounterpartyID,
		Country:        r.Country,
		Channel:        r.Channel,
		Asset:          r.Asset,
		Quantity:       r.Quantity,
		Price:          r.Price,
		Timestamp:      now,
		CreatedAt:      now,
		Metadata:       r.Metadata,
	}
}
