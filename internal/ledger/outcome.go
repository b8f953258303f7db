package ledger

// Outcome is the typed result of a ledger operation. Only StorageError is
// accompanied by a non-nil error.
type Outcome int

const (
	Success Outcome = iota
	AlreadyApplied
	InsufficientFunds
	SoldOut
	NoSuchAccount
	PriceUnavailable
	PaymentNotFound
	PaymentExpired
	StorageError
)

var outcomeNames = [...]string{
	Success:           "success",
	AlreadyApplied:    "already_applied",
	InsufficientFunds: "insufficient_funds",
	SoldOut:           "sold_out",
	NoSuchAccount:     "no_such_account",
	PriceUnavailable:  "price_unavailable",
	PaymentNotFound:   "payment_not_found",
	PaymentExpired:    "payment_expired",
	StorageError:      "storage_error",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Applied reports whether the mutation is durably in effect, either from
// this call or an earlier one.
func (o Outcome) Applied() bool {
	return o == Success || o == AlreadyApplied
}
