package domain

// TransacType is the normalized categorical kind of a transaction.
type TransacType string

const (
	TransacCashIn   TransacType = "CASH_IN"
	TransacCashOut  TransacType = "CASH_OUT"
	TransacDebit    TransacType = "DEBIT"
	TransacPayment  TransacType = "PAYMENT"
	TransacTransfer TransacType = "TRANSFER"

	// TransacOther is the fallback bucket for kinds the model was never fit on.
	TransacOther TransacType = "OTHER"
)

// DefaultVocabulary is the set of transaction kinds used when no model
// artifact supplies its own fitted vocabulary.
var DefaultVocabulary = []string{
	string(TransacCashIn),
	string(TransacCashOut),
	string(TransacDebit),
	string(TransacPayment),
	string(TransacTransfer),
}

// TransactionRecord is a validated transaction ready for scoring.
// SrcAcc and DstAcc are carried for audit only and never reach the feature vector.
type TransactionRecord struct {
	TimeInd     int64       `json:"time_ind"`
	Amount      float64     `json:"amount"`
	TransacType TransacType `json:"transac_type"`
	SrcBal      float64     `json:"src_bal"`
	SrcNewBal   float64     `json:"src_new_bal"`
	DstBal      float64     `json:"dst_bal"`
	DstNewBal   float64     `json:"dst_new_bal"`
	SrcAcc      string      `json:"src_acc"`
	DstAcc      string      `json:"dst_acc"`
}

// Submission is a validated scoring request: the transaction plus the
// idempotency key it was submitted under.
type Submission struct {
	TransactionID string
	// Generated is true when the server assigned TransactionID.
	Generated   bool
	Transaction TransactionRecord
}
