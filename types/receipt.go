package types

// ReceiptStatus is the outcome of executing one transaction.
type ReceiptStatus string

const (
	ReceiptCompleted ReceiptStatus = "completed"
	ReceiptCancel    ReceiptStatus = "cancel"
)

// Receipt records the outcome of executing one transaction.
type Receipt struct {
	TxHash          string        `json:"tx_hash"`
	Height          int64         `json:"height"`
	FeeLimit        int64         `json:"fee_limit"`
	FeePaid         int64         `json:"fee_paid"`
	CreatedAddress  string        `json:"created_address,omitempty"`
	Status          ReceiptStatus `json:"status"`
	Message         string        `json:"message,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
}
