// Package events delivers sequenced ledger events to their consumers.
package events

import (
	"context"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
)

// Sink consumes ledger events. Deliver may be called from several workers at once.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev model.Event) error
}
