package purchase

import (
	"github.com/xraph/entitle/id"
	"github.com/xraph/entitle/types"
)

// State is a purchase lifecycle state.
type State string

const (
	StateOrdered   State = "ordered"
	StateApproved  State = "approved"
	StateVerified  State = "verified"
	StateFinished  State = "finished"
	StateCancelled State = "cancelled"
	StateError     State = "error"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateCancelled || s == StateError
}

// transitions lists the legal next states. Error is reachable from every
// non-terminal state and is handled in canTransition.
var transitions = map[State][]State{
	StateOrdered:  {StateApproved, StateCancelled},
	StateApproved: {StateVerified, StateFinished, StateCancelled},
	StateVerified: {StateFinished},
}

func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateError {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction is one purchase attempt. It is never persisted.
type Transaction struct {
	types.Entity
	ID        id.ID  `json:"id"`
	ProductID string `json:"product_id"`
	State     State  `json:"state"`
	Receipt   string `json:"receipt,omitempty"`
	Err       string `json:"error,omitempty"`
}

func (t *Transaction) clone() *Transaction {
	c := *t
	return &c
}
