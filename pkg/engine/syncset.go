package engine

import (
	"github.com/cuemby/shadowd/pkg/config"
	"github.com/cuemby/shadowd/pkg/types"
)

// syncSet answers pkg/shadow's SyncSetSource and pkg/syncengine's
// DirectionSource questions from the live configuration snapshot, so a
// config reload takes effect without restarting either component.
type syncSet struct {
	snapshot *config.Snapshot
}

func newSyncSet(snapshot *config.Snapshot) *syncSet {
	return &syncSet{snapshot: snapshot}
}

func (s *syncSet) entry(id types.ShadowIdentity) (types.SyncSetEntry, bool) {
	for _, e := range s.snapshot.Get().Entries() {
		if e.Identity == id {
			return e, true
		}
	}
	return types.SyncSetEntry{}, false
}

// InSyncSet reports whether id is a member of the configured sync set.
func (s *syncSet) InSyncSet(id types.ShadowIdentity) bool {
	_, ok := s.entry(id)
	return ok
}

// Direction resolves the configured conflict direction and tie-break
// owner for id, defaulting to a two-way merge favoring the cloud when
// id isn't explicitly configured.
func (s *syncSet) Direction(id types.ShadowIdentity) (types.SyncDirection, types.DataOwner) {
	e, ok := s.entry(id)
	if !ok {
		return types.SyncDirectionBetween, types.DataOwnerCloud
	}
	return e.Direction, e.Owner
}
