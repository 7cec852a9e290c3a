package interfaces

import (
	"context"

	"github.com/ternarybob/sicknote/internal/models"
)

// Mailer delivers email with retries over a pooled transport
type Mailer interface {
	Deliver(ctx context.Context, msg *models.EmailMessage) error
}
