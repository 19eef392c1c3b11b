// Package visibility computes which active streams a connected manager is
// allowed to observe, and tracks enough state to revoke streams a manager
// was previously shown but no longer has access to.
package visibility

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"sales-live-gateway/internal/hierarchy"
	"sales-live-gateway/internal/models"
)

// Filter scopes stream visibility to a manager's roster.
//
// A socket only counts as a manager connection after it has requested its
// filtered stream status at least once; the registration is socket-scoped
// and lost on reconnect. Sockets that never registered (admin and director
// tier) are unrestricted observers when AllowUnidentified is set - this is a
// deliberate default-allow policy carried over from the product's role
// model, not a fallthrough.
type Filter struct {
	directory hierarchy.Directory
	log       zerolog.Logger

	// AllowUnidentified grants non-manager sockets full visibility.
	AllowUnidentified bool

	mu          sync.Mutex
	managers    map[string]string          // managerID -> socketID
	sockets     map[string]string          // socketID -> managerID
	assignments map[string]string          // commercialID -> managerID cache
	reported    map[string]map[string]bool // managerID -> commercial ids shown
}

// New creates a filter backed by the given hierarchy directory.
func New(directory hierarchy.Directory, log zerolog.Logger) *Filter {
	return &Filter{
		directory:         directory,
		log:               log.With().Str("component", "visibility").Logger(),
		AllowUnidentified: true,
		managers:          make(map[string]string),
		sockets:           make(map[string]string),
		assignments:       make(map[string]string),
		reported:          make(map[string]map[string]bool),
	}
}

// RegisterManager binds a manager identity to a socket. A manager moving to
// a new socket releases the old binding.
func (f *Filter) RegisterManager(managerID, socketID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if old, ok := f.managers[managerID]; ok && old != socketID {
		delete(f.sockets, old)
	}
	f.managers[managerID] = socketID
	f.sockets[socketID] = managerID
}

// UnregisterSocket drops the manager binding for a disconnecting socket, if
// any. The "previously shown" bookkeeping is kept so a quick reconnect still
// receives correct revocations.
func (f *Filter) UnregisterSocket(socketID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	managerID, ok := f.sockets[socketID]
	if !ok {
		return "", false
	}
	delete(f.sockets, socketID)
	if f.managers[managerID] == socketID {
		delete(f.managers, managerID)
	}
	return managerID, true
}

// ManagerForSocket returns the manager bound to socketID, if any.
func (f *Filter) ManagerForSocket(socketID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	managerID, ok := f.sockets[socketID]
	return managerID, ok
}

// Assign caches which manager a streaming commercial belongs to. The cache
// is what lets stop_streaming broadcasts target the right manager after the
// stream entry is gone.
func (f *Filter) Assign(commercialID, managerID string) {
	f.mu.Lock()
	f.assignments[commercialID] = managerID
	f.mu.Unlock()
}

// AssignedManager returns the cached manager for a commercial.
func (f *Filter) AssignedManager(commercialID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	managerID, ok := f.assignments[commercialID]
	return managerID, ok
}

// Unassign clears the assignment cache entry for a commercial.
func (f *Filter) Unassign(commercialID string) {
	f.mu.Lock()
	delete(f.assignments, commercialID)
	f.mu.Unlock()
}

// MarkReported records that a stream was shown to a manager. Revocations are
// only ever emitted for streams that were reported.
func (f *Filter) MarkReported(managerID, commercialID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := f.reported[managerID]
	if seen == nil {
		seen = make(map[string]bool)
		f.reported[managerID] = seen
	}
	seen[commercialID] = true
}

// FilterForManager returns the subset of streams whose commercial is in the
// manager's roster, refreshing the assignment cache for the roster. Streams
// returned are also marked as reported to the manager.
func (f *Filter) FilterForManager(ctx context.Context, managerID string, streams []models.ActiveStream) ([]models.ActiveStream, error) {
	roster, err := f.directory.Roster(ctx, managerID)
	if err != nil {
		return nil, err
	}

	inRoster := make(map[string]bool, len(roster))
	f.mu.Lock()
	for _, id := range roster {
		inRoster[id] = true
		f.assignments[id] = managerID
	}
	f.mu.Unlock()

	filtered := make([]models.ActiveStream, 0, len(streams))
	for _, st := range streams {
		if inRoster[st.CommercialID] {
			filtered = append(filtered, st)
			f.MarkReported(managerID, st.CommercialID)
		}
	}
	return filtered, nil
}

// Reconcile confirms, for every active stream outside the manager's roster
// that the manager was previously shown, that access is genuinely gone (as
// opposed to a stale roster cache), and returns the commercial ids to
// revoke. Confirmed revocations are cleared from the reported set and the
// assignment cache.
func (f *Filter) Reconcile(ctx context.Context, managerID string, streams []models.ActiveStream) []string {
	roster, err := f.directory.Roster(ctx, managerID)
	if err != nil {
		f.log.Error().Err(err).Str("managerId", managerID).Msg("roster lookup failed, skipping reconciliation")
		return nil
	}
	inRoster := make(map[string]bool, len(roster))
	for _, id := range roster {
		inRoster[id] = true
	}

	var revoked []string
	for _, st := range streams {
		if inRoster[st.CommercialID] {
			continue
		}
		f.mu.Lock()
		wasReported := f.reported[managerID][st.CommercialID]
		f.mu.Unlock()
		if !wasReported {
			continue
		}

		// One membership check per mismatched stream, as the CRUD side does
		// it. Stream counts are small enough that batching is not worth the
		// extra query surface.
		ok, err := f.directory.IsUnderManager(ctx, managerID, st.CommercialID)
		if err != nil {
			f.log.Error().Err(err).
				Str("managerId", managerID).
				Str("commercialId", st.CommercialID).
				Msg("membership check failed, keeping stream visible")
			continue
		}
		if ok {
			f.log.Warn().
				Str("managerId", managerID).
				Str("commercialId", st.CommercialID).
				Msg("roster cache stale, commercial still accessible")
			continue
		}

		revoked = append(revoked, st.CommercialID)
		f.mu.Lock()
		delete(f.reported[managerID], st.CommercialID)
		if f.assignments[st.CommercialID] == managerID {
			delete(f.assignments, st.CommercialID)
		}
		f.mu.Unlock()
	}
	return revoked
}

// CanObserve reports whether the socket may receive events about a
// commercial managed by commercialManagerID. Unidentified sockets follow
// the AllowUnidentified policy.
func (f *Filter) CanObserve(socketID, commercialManagerID string) bool {
	managerID, isManager := f.ManagerForSocket(socketID)
	if !isManager {
		return f.AllowUnidentified
	}
	return managerID == commercialManagerID
}
