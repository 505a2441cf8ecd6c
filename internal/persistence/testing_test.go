package persistence

import (
	"time"

	"github.com/petrijr/flowexec/pkg/api"
)

func newTestSnapshot(executionID string, snapshotID int) *Snapshot {
	return &Snapshot{
		Version: SnapshotVersion,
		Key:     api.Key{ExecutionID: executionID, SnapshotID: snapshotID},
		FlowID:  "person.Search",
		Sessions: []SessionRecord{
			{
				FlowID:    "person.Search",
				StateID:   "person.Detail",
				Status:    api.SessionSuspended,
				FlowScope: map[string]any{"lastName": "Don", "persons": []any{map[string]any{"id": 1}}},
			},
			{
				FlowID:     "person.Detail",
				StateID:    "viewDetails",
				Status:     api.SessionPaused,
				FlowScope:  map[string]any{"id": 1},
				ViewScope:  map[string]any{"page": 2},
				HasView:    true,
				FlashScope: map[string]any{"notice": "saved"},
			},
		},
		Conversation: map[string]any{"user": "keith"},
		Attributes:   map[string]any{"conversationId": "c-1"},
		CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}
