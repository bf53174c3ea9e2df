package state

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/logging"
)

// NamespaceConfig is the part of a namespace the state needs to know about.
type NamespaceConfig struct {
	Name     string
	Default  bool
	Storages []StorageDescriptor
}

// Options configures a State.
type Options struct {
	// Publisher receives state events. Nil discards them.
	Publisher core.Publisher
	Logger    logging.Logger
	// NativeTools enables provider native tool calling.
	NativeTools bool
}

// State is the exclusive-access handle to the shared aggregate.
type State struct {
	mu sync.Mutex

	pub    core.Publisher
	logger logging.Logger

	globals     map[string]string
	variables   map[string]string
	known       map[string]bool
	enabled     map[string]bool
	nativeTools bool
	metrics     core.Metrics
	chat        core.ChatOptions

	storages     map[string]*Storage
	storageOrder []string
}

// New creates a State for the given namespaces. Namespaces flagged Default are
// enabled. Storage descriptors are instantiated and seeded with their
// predefined values.
func New(namespaces []NamespaceConfig, optFns ...func(o *Options)) (*State, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	s := &State{
		pub:         opts.Publisher,
		logger:      opts.Logger,
		globals:     map[string]string{},
		variables:   map[string]string{},
		known:       map[string]bool{},
		enabled:     map[string]bool{},
		nativeTools: opts.NativeTools,
		storages:    map[string]*Storage{},
	}

	for _, ns := range namespaces {
		s.known[ns.Name] = true
		if ns.Default {
			s.enabled[ns.Name] = true
		}
		for _, desc := range ns.Storages {
			if _, dup := s.storages[desc.Name]; dup {
				return nil, fmt.Errorf("storage %q declared twice", desc.Name)
			}
			st := newStorage(s, desc)
			s.storages[desc.Name] = st
			s.storageOrder = append(s.storageOrder, desc.Name)
		}
	}

	return s, nil
}

func (s *State) publish(ctx context.Context, t core.EventType) error {
	if s.pub == nil {
		return nil
	}
	if err := s.pub.Publish(ctx, t); err != nil {
		s.logger.Warn("state.publish.failed", "kind", t.Kind(), "error", err)
		return err
	}
	return nil
}

// Publish forwards an event to the state's publisher. It is how generators
// and the dispatcher report progress without holding their own channel.
func (s *State) Publish(ctx context.Context, t core.EventType) error {
	return s.publish(ctx, t)
}

// Snapshot is a read-only view of the state, valid only inside View.
type Snapshot struct{ s *State }

// View runs fn under a single acquisition of the state lock so that several
// reads observe one consistent state. fn must not call other State methods.
func (s *State) View(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(Snapshot{s: s})
}

// NativeTools reports whether native tool calling is enabled.
func (v Snapshot) NativeTools() bool { return v.s.nativeTools }

// NamespaceEnabled reports whether the namespace is currently enabled.
func (v Snapshot) NamespaceEnabled(name string) bool { return v.s.enabled[name] }

// Variable returns a variable value.
func (v Snapshot) Variable(name string) (string, bool) {
	val, ok := v.s.variables[name]
	return val, ok
}

// Globals returns a copy of the globals.
func (v Snapshot) Globals() map[string]string { return maps.Clone(v.s.globals) }

// Variables returns a copy of the variables.
func (v Snapshot) Variables() map[string]string { return maps.Clone(v.s.variables) }

// NativeTools reports whether native tool calling is enabled.
func (s *State) NativeTools() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nativeTools
}

// SetNativeTools toggles native tool calling.
func (s *State) SetNativeTools(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nativeTools = enabled
}

// IsEnabled reports whether the namespace is enabled.
func (s *State) IsEnabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[name]
}

// Enable activates an opt-in namespace.
func (s *State) Enable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.known[name] {
		return fmt.Errorf("%w: %s", core.ErrUnknownNamespace, name)
	}
	s.enabled[name] = true
	s.logger.Debug("state.namespace.enabled", "namespace", name)
	return nil
}

// Disable deactivates a namespace.
func (s *State) Disable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.known[name] {
		return fmt.Errorf("%w: %s", core.ErrUnknownNamespace, name)
	}
	delete(s.enabled, name)
	return nil
}

// Variable returns a variable value.
func (s *State) Variable(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variables[name]
	return v, ok
}

// SetVariable sets a variable and publishes a StateUpdate.
func (s *State) SetVariable(ctx context.Context, name, value string) error {
	s.mu.Lock()
	s.variables[name] = value
	ev := s.stateUpdateLocked()
	s.mu.Unlock()
	return s.publish(ctx, ev)
}

// Global returns a global value.
func (s *State) Global(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.globals[name]
	return v, ok
}

// SetGlobal sets a global and publishes a StateUpdate.
func (s *State) SetGlobal(ctx context.Context, name, value string) error {
	s.mu.Lock()
	s.globals[name] = value
	ev := s.stateUpdateLocked()
	s.mu.Unlock()
	return s.publish(ctx, ev)
}

// SetChat replaces the system prompt and prompt, keeping the history.
func (s *State) SetChat(ctx context.Context, systemPrompt *string, prompt string) error {
	s.mu.Lock()
	s.chat.SystemPrompt = systemPrompt
	s.chat.Prompt = prompt
	ev := s.stateUpdateLocked()
	s.mu.Unlock()
	return s.publish(ctx, ev)
}

// AddMessages appends to the chat history and publishes a StateUpdate.
func (s *State) AddMessages(ctx context.Context, msgs ...core.Message) error {
	s.mu.Lock()
	s.chat.History = append(s.chat.History, msgs...)
	ev := s.stateUpdateLocked()
	s.mu.Unlock()
	return s.publish(ctx, ev)
}

// ChatOptions returns a copy of the current chat options.
func (s *State) ChatOptions() core.ChatOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatLocked()
}

func (s *State) chatLocked() core.ChatOptions {
	c := s.chat
	c.History = append([]core.Message(nil), s.chat.History...)
	return c
}

func (s *State) stateUpdateLocked() core.StateUpdate {
	return core.StateUpdate{
		Chat:      s.chatLocked(),
		Globals:   maps.Clone(s.globals),
		Variables: maps.Clone(s.variables),
	}
}

// Metrics returns a copy of the current metrics.
func (s *State) Metrics() core.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// UpdateMetrics applies fn to the metrics and publishes a MetricsUpdate.
func (s *State) UpdateMetrics(ctx context.Context, fn func(m *core.Metrics)) error {
	s.mu.Lock()
	fn(&s.metrics)
	snap := s.metrics
	s.mu.Unlock()
	return s.publish(ctx, core.MetricsUpdate{Metrics: snap})
}

// Storage returns the named storage.
func (s *State) Storage(name string) (*Storage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.storages[name]
	return st, ok
}

// Storages returns all storages in declaration order.
func (s *State) Storages() []*Storage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Storage, 0, len(s.storageOrder))
	for _, n := range s.storageOrder {
		out = append(out, s.storages[n])
	}
	return out
}
