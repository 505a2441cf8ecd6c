package engine

import (
	"github.com/google/uuid"

	"github.com/petrijr/flowexec/pkg/api"
)

// KeyFactory assigns repository keys to paused executions.
type KeyFactory struct {
	// AlwaysGenerateNewKey gives every pause its own snapshot id so earlier
	// snapshots stay resumable (back navigation).
	AlwaysGenerateNewKey bool

	newID func() string
}

// NewKeyFactory returns a factory using random UUID execution ids.
func NewKeyFactory(alwaysNew bool) *KeyFactory {
	return &KeyFactory{AlwaysGenerateNewKey: alwaysNew, newID: uuid.NewString}
}

// KeyFor returns the key to use for a pause given the current key and the
// highest snapshot id already stored for the execution. New snapshot ids
// always exceed both, so resuming an older key never overwrites a newer
// snapshot.
func (f *KeyFactory) KeyFor(current *api.Key, latest int) api.Key {
	if current == nil {
		id := uuid.NewString
		if f != nil && f.newID != nil {
			id = f.newID
		}
		return api.Key{ExecutionID: id(), SnapshotID: 1}
	}
	if f != nil && f.AlwaysGenerateNewKey {
		next := current.Next()
		if latest >= next.SnapshotID {
			next.SnapshotID = latest + 1
		}
		return next
	}
	return *current
}
