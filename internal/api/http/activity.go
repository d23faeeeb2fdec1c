package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/TabSessions/backend/internal/tab"
)

// Activity event types reported by the front-end.
const (
	EventInteraction = "interaction"
	EventVisibility  = "visibility"
	EventFocus       = "focus"
)

// ActivityEvent is one browser event relayed to the tab.
type ActivityEvent struct {
	Type  string          `json:"type"`
	Kind  tab.Interaction `json:"kind,omitempty"`
	Value *bool           `json:"value,omitempty"`
}

// ActivityRequest is a batch of events from the front-end.
type ActivityRequest struct {
	Events []ActivityEvent `json:"events"`
}

// ReportActivity feeds browser visibility, focus and input events into the
// tab's activity state.
func (h *Handlers) ReportActivity(c *gin.Context) {
	var req ActivityRequest
	if err := bindJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid activity request format"})
		return
	}
	if len(req.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No activity events provided"})
		return
	}

	applied := 0
	for i, ev := range req.Events {
		if err := h.applyEvent(c, ev); err != nil {
			h.logger.Debug("Skipped activity event",
				zap.Int("index", i),
				zap.String("type", ev.Type),
				zap.Error(err))
			continue
		}
		applied++
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"received": len(req.Events),
		"applied":  applied,
		"activity": h.tab.State().Snapshot(),
	})
}

func (h *Handlers) applyEvent(c *gin.Context, ev ActivityEvent) error {
	state := h.tab.State()
	switch ev.Type {
	case EventInteraction:
		if !ev.Kind.Valid() {
			return fmt.Errorf("unknown interaction %q", ev.Kind)
		}
		state.Interact(ev.Kind)
		return nil
	case EventVisibility:
		if ev.Value == nil {
			return fmt.Errorf("visibility event without value")
		}
		return state.SetVisible(c.Request.Context(), *ev.Value)
	case EventFocus:
		if ev.Value == nil {
			return fmt.Errorf("focus event without value")
		}
		return state.SetFocused(c.Request.Context(), *ev.Value)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}
