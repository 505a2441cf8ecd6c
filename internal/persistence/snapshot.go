package persistence

import (
	"time"

	"github.com/petrijr/flowexec/pkg/api"
)

// SnapshotVersion is the schema version written by this package.
const SnapshotVersion = 1

// SessionRecord is the persisted form of one flow session. Definitions are
// referenced by id and rebound on restore.
type SessionRecord struct {
	FlowID     string            `msgpack:"flow_id"`
	StateID    string            `msgpack:"state_id"`
	Status     api.SessionStatus `msgpack:"status"`
	FlowScope  map[string]any    `msgpack:"flow_scope"`
	ViewScope  map[string]any    `msgpack:"view_scope"`
	HasView    bool              `msgpack:"has_view"`
	FlashScope map[string]any    `msgpack:"flash_scope"`
}

// Snapshot is the persisted form of a paused flow execution. Sessions are
// ordered root first.
type Snapshot struct {
	Version      int             `msgpack:"version"`
	Key          api.Key         `msgpack:"key"`
	FlowID       string          `msgpack:"flow_id"`
	Sessions     []SessionRecord `msgpack:"sessions"`
	Conversation map[string]any  `msgpack:"conversation"`
	Attributes   map[string]any  `msgpack:"attributes"`
	CreatedAt    time.Time       `msgpack:"created_at"`
}

// ActiveState returns the flow and state id of the top session.
func (s *Snapshot) ActiveState() (flowID, stateID string) {
	if len(s.Sessions) == 0 {
		return s.FlowID, ""
	}
	top := s.Sessions[len(s.Sessions)-1]
	return top.FlowID, top.StateID
}
