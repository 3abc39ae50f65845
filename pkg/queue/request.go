package queue

import (
	"github.com/cuemby/shadowd/pkg/types"
)

// Kind tags the concrete type of a Request, used both for logging and
// for driving the merge table without needing repeated type switches at
// every call site.
type Kind string

const (
	KindLocalUpdate    Kind = "local_update"
	KindCloudUpdate    Kind = "cloud_update"
	KindLocalDelete    Kind = "local_delete"
	KindCloudDelete    Kind = "cloud_delete"
	KindFull           Kind = "full"
	KindOverwriteLocal Kind = "overwrite_local"
	KindOverwriteCloud Kind = "overwrite_cloud"
)

// Request is the tagged sum type of sync work items: a request carries
// the shadow it targets and which side(s) it must reconcile. It is
// implemented as a closed set of concrete structs rather than an
// interface hierarchy with per-kind behavior, so that pkg/syncengine
// dispatches with a single type switch on the concrete type instead of
// virtual method calls.
type Request interface {
	Key() types.ShadowIdentity
	Kind() Kind
}

type baseRequest struct {
	Identity types.ShadowIdentity
}

func (b baseRequest) Key() types.ShadowIdentity { return b.Identity }

// LocalUpdateRequest: the local document changed and the cloud side needs
// the update pushed to it.
type LocalUpdateRequest struct {
	baseRequest
	Version int64
}

func (LocalUpdateRequest) Kind() Kind { return KindLocalUpdate }

// CloudUpdateRequest: the cloud published a new desired/reported state
// that needs to be merged into the local document.
type CloudUpdateRequest struct {
	baseRequest
	Document *types.Document
}

func (CloudUpdateRequest) Kind() Kind { return KindCloudUpdate }

// LocalDeleteRequest: the shadow was deleted locally and the deletion
// needs to be propagated to the cloud.
type LocalDeleteRequest struct {
	baseRequest
	Version int64
}

func (LocalDeleteRequest) Kind() Kind { return KindLocalDelete }

// CloudDeleteRequest: the cloud reports the shadow was deleted and the
// deletion needs to be applied locally.
type CloudDeleteRequest struct {
	baseRequest
}

func (CloudDeleteRequest) Kind() Kind { return KindCloudDelete }

// FullSyncRequest: both sides may have diverged since the last sync;
// perform a full get-both-sides-and-three-way-merge cycle.
type FullSyncRequest struct {
	baseRequest
}

func (FullSyncRequest) Kind() Kind { return KindFull }

// OverwriteLocalRequest: discard the local document and replace it with
// the cloud's, used when SyncDirection forbids device_to_cloud resolution
// on a genuine conflict.
type OverwriteLocalRequest struct {
	baseRequest
}

func (OverwriteLocalRequest) Kind() Kind { return KindOverwriteLocal }

// OverwriteCloudRequest: discard the cloud document and replace it with
// the local one, used when SyncDirection forbids cloud_to_device
// resolution on a genuine conflict.
type OverwriteCloudRequest struct {
	baseRequest
}

func (OverwriteCloudRequest) Kind() Kind { return KindOverwriteCloud }

func NewLocalUpdate(id types.ShadowIdentity, version int64) Request {
	return LocalUpdateRequest{baseRequest{id}, version}
}

func NewCloudUpdate(id types.ShadowIdentity, doc *types.Document) Request {
	return CloudUpdateRequest{baseRequest{id}, doc}
}

func NewLocalDelete(id types.ShadowIdentity, version int64) Request {
	return LocalDeleteRequest{baseRequest{id}, version}
}

func NewCloudDelete(id types.ShadowIdentity) Request {
	return CloudDeleteRequest{baseRequest{id}}
}

func NewFullSync(id types.ShadowIdentity) Request {
	return FullSyncRequest{baseRequest{id}}
}

func NewOverwriteLocal(id types.ShadowIdentity) Request {
	return OverwriteLocalRequest{baseRequest{id}}
}

func NewOverwriteCloud(id types.ShadowIdentity) Request {
	return OverwriteCloudRequest{baseRequest{id}}
}
