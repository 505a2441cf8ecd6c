package engine

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/petrijr/flowexec/internal/persistence"
	"github.com/petrijr/flowexec/pkg/api"
)

// ConversationIDAttribute is the execution attribute identifying an
// execution across all of its keys, assigned when the root session is
// created.
const ConversationIDAttribute = "conversationId"

// HistoryListener appends lifecycle events to a HistoryStore.
type HistoryListener struct {
	store  persistence.HistoryStore
	logger *slog.Logger
}

// NewHistoryListener returns a listener recording into store.
func NewHistoryListener(store persistence.HistoryStore, logger *slog.Logger) *HistoryListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryListener{store: store, logger: logger}
}

// ConversationID returns the conversation id of the execution, or "".
func ConversationID(exec api.FlowExecutionContext) string {
	v, _ := exec.Attributes().Get(ConversationIDAttribute)
	id, _ := v.(string)
	return id
}

func (h *HistoryListener) append(rc api.RequestContext, typ persistence.HistoryType, detail string) {
	ev := persistence.HistoryEvent{
		ConversationID: ConversationID(rc.Execution()),
		Type:           typ,
		Detail:         detail,
	}
	if f := rc.ActiveFlow(); f != nil {
		ev.FlowID = f.ID
	}
	if st := rc.CurrentState(); st != nil {
		ev.StateID = st.ID
	}
	if err := h.store.Append(rc.Context(), ev); err != nil {
		h.logger.WarnContext(rc.Context(), "history_append_failed",
			slog.String("conversation_id", ev.ConversationID),
			slog.String("type", string(typ)),
			slog.Any("error", err),
		)
	}
}

func (h *HistoryListener) SessionCreating(rc api.RequestContext, _ *api.Flow) {
	attrs := rc.Execution().Attributes()
	if !attrs.Contains(ConversationIDAttribute) {
		attrs.Put(ConversationIDAttribute, uuid.NewString())
	}
}

func (h *HistoryListener) SessionStarted(rc api.RequestContext, s api.FlowSession) {
	h.append(rc, persistence.HistorySessionStarted, s.Definition().ID)
}

func (h *HistoryListener) StateEntered(rc api.RequestContext, _, state *api.State) {
	h.append(rc, persistence.HistoryStateEntered, string(state.Kind))
}

func (h *HistoryListener) TransitionExecuting(rc api.RequestContext, t *api.Transition) {
	h.append(rc, persistence.HistoryTransition, rc.CurrentEvent().ID+": "+t.String())
}

func (h *HistoryListener) Paused(rc api.RequestContext) {
	detail := ""
	if k := rc.Execution().Key(); k != nil {
		detail = k.String()
	}
	h.append(rc, persistence.HistoryPaused, detail)
}

func (h *HistoryListener) SessionEnded(rc api.RequestContext, s api.FlowSession, outcome string, _ *api.AttributeMap) {
	ev := persistence.HistoryEvent{
		ConversationID: ConversationID(rc.Execution()),
		Type:           persistence.HistorySessionEnded,
		FlowID:         s.Definition().ID,
		Detail:         outcome,
	}
	if err := h.store.Append(rc.Context(), ev); err != nil {
		h.logger.WarnContext(rc.Context(), "history_append_failed",
			slog.String("conversation_id", ev.ConversationID),
			slog.Any("error", err),
		)
	}
}

func (h *HistoryListener) ExceptionThrown(rc api.RequestContext, err *api.FlowExecutionError) {
	h.append(rc, persistence.HistoryException, err.Error())
}
