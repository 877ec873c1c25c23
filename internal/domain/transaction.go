package domain

// NormalizedTransaction is the unit of truth from normalization onward.
// Date is always YYYY-MM-DD, Value is credit-positive/debit-negative and
// Description is the canonical uppercase, accent-stripped form. Immutable
// once produced.
type NormalizedTransaction struct {
	Date        string
	Value       float64
	Description string
	AccountID   string

	Kind TransactionKind

	// Optional fields carried through from the statement when present.
	BalanceAfter     *float64
	Document         string
	ExternalID       string
	OriginalValue    *float64
	OriginalCurrency string
}

// TransactionKind is the coarse kind of a transaction, inferred from
// description keywords and value sign. It is a signal for the classifier, not
// the final category.
type TransactionKind string

const (
	KindCredit   TransactionKind = "credito"
	KindDebit    TransactionKind = "debito"
	KindTransfer TransactionKind = "transferencia"
	KindReversal TransactionKind = "estorno"
)

// FlowType splits transactions into income vs expense for classification;
// category lists are maintained per flow type.
type FlowType string

const (
	FlowIncome  FlowType = "receita"
	FlowExpense FlowType = "despesa"
)

// FlowTypeForValue derives the flow type from the signed value convention.
func FlowTypeForValue(value float64) FlowType {
	if value >= 0 {
		return FlowIncome
	}
	return FlowExpense
}

// Category is a candidate classification target. Categories are owned by an
// external store; the classifiers only read id/name snapshots.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"nome"`
}
