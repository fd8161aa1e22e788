package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FinancialRecord is one read-only row of user financial data.
// Amount is signed: outflows and debts are negative for transactions,
// balances are positive for assets, liabilities and investments.
type FinancialRecord struct {
	UserID    string
	Category  Category
	RecordID  string
	Amount    decimal.Decimal
	Timestamp time.Time
	Metadata  map[string]string
}

// Common metadata keys set by the repositories.
const (
	MetaName        = "name"
	MetaType        = "type"
	MetaLabel       = "label"
	MetaDescription = "description"
	MetaCurrency    = "currency"
	MetaRate        = "interest_rate"
)
