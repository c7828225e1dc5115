package entitlement

import "fmt"

// Key is the store key holding the whole entitlement document.
const Key = "inapp-entitlements"

// Record tracks the credits of one product. Owned and Consumed describe the
// live pool; a drained pool is retired to zero with Purchased cleared.
type Record struct {
	ProductID string `json:"productId"`
	Feature   string `json:"feature"`
	Owned     int    `json:"owned"`
	Consumed  int    `json:"consumed"`
	Purchased bool   `json:"purchased"`
}

// Remaining returns the unspent credits of the pool.
func (r Record) Remaining() int {
	if n := r.Owned - r.Consumed; n > 0 {
		return n
	}
	return 0
}

// Live reports whether the pool can be spent from.
func (r Record) Live() bool {
	return r.Purchased && r.Remaining() > 0
}

// Outcome classifies a consumption attempt.
type Outcome int

const (
	// Unavailable means no credit was spent: the pool is empty or was never
	// purchased. It is a normal result, not an error.
	Unavailable Outcome = iota
	// Ok means one credit was spent and the pool still has credits.
	Ok
	// Exhausted means the last credit was spent and the pool was retired.
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Unavailable:
		return "unavailable"
	case Ok:
		return "ok"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ConsumeResult is the outcome of spending one credit.
type ConsumeResult struct {
	Outcome   Outcome `json:"outcome"`
	ProductID string  `json:"product_id,omitempty"`
	Remaining int     `json:"remaining"`
}

// Granted reports whether a credit was actually spent.
func (r ConsumeResult) Granted() bool {
	return r.Outcome != Unavailable
}
