package tab

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/TabSessions/backend/internal/bus"
)

// DefaultDebounce delays activity updates triggered by user interaction.
const DefaultDebounce = time.Second

// Interaction is a kind of user input that counts as activity.
type Interaction string

const (
	InteractionPointer Interaction = "pointer"
	InteractionKey     Interaction = "key"
	InteractionScroll  Interaction = "scroll"
	InteractionTouch   Interaction = "touch"
)

// Valid reports whether i is a known interaction kind.
func (i Interaction) Valid() bool {
	switch i {
	case InteractionPointer, InteractionKey, InteractionScroll, InteractionTouch:
		return true
	}
	return false
}

// Activity is a snapshot of the tab's attention state.
type Activity struct {
	IsVisible    bool      `json:"isVisible"`
	IsFocused    bool      `json:"isFocused"`
	LastActivity time.Time `json:"lastActivity"`
	IsActive     bool      `json:"isActive"`
}

// State tracks visibility, focus and user activity of a tab.
type State struct {
	env          *Env
	lastActivity *Value[int64]
	debounce     time.Duration

	mu      sync.Mutex
	visible bool
	focused bool
	timer   *time.Timer
	closed  bool

	subs *bus.Bus[Activity]
	once sync.Once
}

// StateOption configures a State.
type StateOption func(*State)

// WithDebounce sets the interaction debounce delay.
func WithDebounce(d time.Duration) StateOption {
	return func(s *State) {
		s.debounce = d
	}
}

// WithVisibility sets the initial visibility and focus.
func WithVisibility(visible, focused bool) StateOption {
	return func(s *State) {
		s.visible = visible
		s.focused = focused
	}
}

// NewState creates the tab state. Last activity is kept in the tab value
// named lastActivity and defaults to now.
func NewState(ctx context.Context, env *Env, opts ...StateOption) (*State, error) {
	s := &State{
		env:      env,
		debounce: DefaultDebounce,
		visible:  true,
		focused:  true,
		subs:     bus.New[Activity](),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.lastActivity, err = NewValue(ctx, env, "lastActivity", env.now().UnixMilli())
	if err != nil {
		return nil, err
	}
	if err := env.track(s.Close); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot returns the current activity state.
func (s *State) Snapshot() Activity {
	s.mu.Lock()
	visible, focused := s.visible, s.focused
	s.mu.Unlock()

	return Activity{
		IsVisible:    visible,
		IsFocused:    focused,
		LastActivity: time.UnixMilli(s.lastActivity.Get()),
		IsActive:     visible && focused,
	}
}

// IsActive reports whether the tab is both visible and focused.
func (s *State) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible && s.focused
}

// SetVisible records a visibility change. Becoming visible counts as activity.
func (s *State) SetVisible(ctx context.Context, visible bool) error {
	s.mu.Lock()
	s.visible = visible
	s.mu.Unlock()

	if visible {
		return s.Touch(ctx)
	}
	s.notify()
	return nil
}

// SetFocused records a focus change. Gaining focus counts as activity.
func (s *State) SetFocused(ctx context.Context, focused bool) error {
	s.mu.Lock()
	s.focused = focused
	s.mu.Unlock()

	if focused {
		return s.Touch(ctx)
	}
	s.notify()
	return nil
}

// Interact schedules an activity update once interactions pause for the
// debounce delay. Unknown kinds are ignored.
func (s *State) Interact(kind Interaction) {
	if !kind.Valid() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.debounce, func() { s.fire(timer) })
	s.timer = timer
}

// fire records the debounced activity unless the state was closed or a later
// interaction replaced timer.
func (s *State) fire(timer *time.Timer) {
	s.mu.Lock()
	if s.closed || s.timer != timer {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	if err := s.Touch(context.Background()); err != nil {
		s.env.logger.Warn("Failed to record tab activity", zap.Error(err))
	}
}

// Touch records activity now.
func (s *State) Touch(ctx context.Context) error {
	if err := s.lastActivity.Set(ctx, s.env.now().UnixMilli()); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Subscribe calls fn after every state change.
func (s *State) Subscribe(fn func(Activity)) func() {
	return s.subs.Subscribe(fn)
}

// Close stops the pending debounce timer.
func (s *State) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.mu.Unlock()
		s.lastActivity.Close()
	})
}

func (s *State) notify() {
	s.subs.Publish(s.Snapshot())
}
