// Package hierarchy exposes the manager -> team -> commercial membership
// lookups the gateway consumes. The relational schema behind it belongs to
// the CRUD side of the product; this package only reads it.
package hierarchy

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a manager or commercial id is unknown.
var ErrNotFound = errors.New("hierarchy: not found")

// Directory answers the access questions the visibility filter and the
// gateway ask. A commercial belongs to a manager either directly or through
// one of the manager's teams.
type Directory interface {
	// Roster returns the ids of every commercial the manager supervises.
	Roster(ctx context.Context, managerID string) ([]string, error)

	// IsUnderManager reports whether one specific commercial is in the
	// manager's roster. Used to distinguish a stale cache from a genuine
	// access denial during visibility reconciliation.
	IsUnderManager(ctx context.Context, managerID, commercialID string) (bool, error)

	// CommercialManagerID returns the id of the manager responsible for a
	// commercial, or ErrNotFound.
	CommercialManagerID(ctx context.Context, commercialID string) (string, error)

	// CommercialName returns the display name for a commercial. Callers fall
	// back to a generic label on error.
	CommercialName(ctx context.Context, commercialID string) (string, error)
}
