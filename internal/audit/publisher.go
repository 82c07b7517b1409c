package audit

import (
	"context"

	"conforma/pkg/requestcontext"
)

// Store is the append-only sink contract. The core writes events and never
// reads them back; listing exists for the read-side surface only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]Event, error)
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.Timestamp.IsZero() {
		base.Timestamp = requestcontext.Now(ctx)
	}
	return p.store.Append(ctx, base)
}

func (p *Publisher) List(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	return p.store.ListByTenant(ctx, tenantID, limit)
}
