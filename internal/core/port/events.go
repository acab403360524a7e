package port

import (
	"context"

	"github.com/carehub/clinic-api/internal/core/domain"
)

// EventPublisher publishes revocation events to the message bus.
type EventPublisher interface {
	PublishRevocation(ctx context.Context, event domain.RevocationEvent) error
}
