package queue

import "github.com/cuemby/shadowd/pkg/types"

// Merge implements the request collision table: when incoming targets a
// key that already has existing queued for it, Merge decides what single
// request replaces both. Merge is commutative in practice (the table is
// built symmetric) but is always invoked as Merge(existing, incoming).
// direction is the shadow's configured SyncDirection, consulted only by
// the "full-or-directional" cells (a LocalUpdate colliding with a
// CloudUpdate, or vice versa): device_to_cloud picks OverwriteCloud,
// cloud_to_device picks OverwriteLocal, and between picks a full sync.
func Merge(existing, incoming Request, direction types.SyncDirection) Request {
	if existing == nil {
		return incoming
	}
	if incoming == nil {
		return existing
	}

	// Either side already being a Full sync or an overwrite directive
	// escalates further: a second overwrite directive of the other
	// polarity, or any update/delete arriving after an overwrite was
	// queued, means state moved again since that decision was made and
	// the safest move is to re-derive it from a full three-way merge.
	if existing.Kind() == KindFull || incoming.Kind() == KindFull {
		return NewFullSync(existing.Key())
	}
	if isOverwrite(existing.Kind()) || isOverwrite(incoming.Kind()) {
		if existing.Kind() == incoming.Kind() {
			return incoming
		}
		return NewFullSync(existing.Key())
	}

	switch existing.Kind() {
	case KindLocalUpdate:
		switch incoming.Kind() {
		case KindLocalUpdate:
			return incoming // newer local version supersedes
		case KindLocalDelete:
			return incoming // a subsequent local delete supersedes an update
		case KindCloudUpdate:
			return fullOrDirectional(existing.Key(), direction) // both sides changed
		case KindCloudDelete:
			return NewFullSync(existing.Key())
		}
	case KindLocalDelete:
		switch incoming.Kind() {
		case KindLocalDelete:
			return incoming
		case KindLocalUpdate:
			return existing // delete still wins over a stale queued update
		case KindCloudUpdate, KindCloudDelete:
			return NewFullSync(existing.Key())
		}
	case KindCloudUpdate:
		switch incoming.Kind() {
		case KindCloudUpdate:
			return incoming // newer cloud document supersedes
		case KindCloudDelete:
			return incoming
		case KindLocalUpdate:
			return fullOrDirectional(existing.Key(), direction)
		case KindLocalDelete:
			return NewFullSync(existing.Key())
		}
	case KindCloudDelete:
		switch incoming.Kind() {
		case KindCloudDelete:
			return incoming
		case KindCloudUpdate:
			return existing
		case KindLocalUpdate, KindLocalDelete:
			// simultaneous local and cloud delete: resolve as a full
			// sync so the executor advances cloud_version even on a
			// no-op convergence.
			return NewFullSync(existing.Key())
		}
	}
	return NewFullSync(existing.Key())
}

// fullOrDirectional resolves a genuine both-sides-changed collision
// between a LocalUpdate and a CloudUpdate per the configured direction.
func fullOrDirectional(key types.ShadowIdentity, direction types.SyncDirection) Request {
	switch direction {
	case types.SyncDirectionDeviceToCloud:
		return NewOverwriteCloud(key)
	case types.SyncDirectionCloudToDevice:
		return NewOverwriteLocal(key)
	default:
		return NewFullSync(key)
	}
}

func isOverwrite(k Kind) bool {
	return k == KindOverwriteLocal || k == KindOverwriteCloud
}
