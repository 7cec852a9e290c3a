// -----------------------------------------------------------------------
// Last Modified: Wednesday, 14th October 2026 9:02:37 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when no secret is stored under a name
var ErrKeyNotFound = errors.New("key not found")

// Secret is one named credential (API key, SMTP password)
type Secret struct {
	Name      string    `json:"name"`
	Value     string    `json:"-"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KeyValueStorage holds runtime secrets. Names are case-insensitive.
type KeyValueStorage interface {
	// Get returns ErrKeyNotFound when the name is unknown
	Get(ctx context.Context, name string) (string, error)

	// Set stores value under name, recording where it came from
	Set(ctx context.Context, name, value, source string) error

	Delete(ctx context.Context, name string) error

	// Names lists stored secret names in order
	Names(ctx context.Context) ([]string, error)
}
