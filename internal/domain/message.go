package domain

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Message is immutable once created; ordering within a group is defined by
// SortKey, a decimal string holding a monotonically increasing integer unique
// per group. SortKey is used instead of CreatedAt so clock skew and
// same-millisecond sends cannot reorder a timeline.
type Message struct {
	ID        uuid.UUID `json:"id"`
	GroupKey  string    `json:"group_identifier"`
	SenderID  uuid.UUID `json:"sender_id"`
	Text      string    `json:"text"`
	SortKey   string    `json:"sort_key"`
	CreatedAt time.Time `json:"created_at"`
}

// CompareSortKeys orders two sort keys numerically with arbitrary precision.
// Sort keys can exceed 64 bits, so fixed-width parsing would silently
// corrupt ordering. Returns -1, 0 or 1.
func CompareSortKeys(a, b string) int {
	ai, aok := new(big.Int).SetString(a, 10)
	bi, bok := new(big.Int).SetString(b, 10)
	if !aok || !bok {
		// Malformed keys should have been rejected upstream; fall back to
		// string comparison so sorting stays total.
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	return ai.Cmp(bi)
}
