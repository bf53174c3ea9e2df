package namespace

import (
	"fmt"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/state"
)

type registered struct {
	namespace string
	action    Action
}

// Registry is the fixed, insertion-ordered collection of namespaces. It is
// built once at startup and handed to the generator and the dispatcher.
type Registry struct {
	namespaces []Namespace
	byName     map[string]int
	actions    map[string]registered
}

// NewRegistry builds a registry. It rejects duplicate namespace names,
// duplicate action names across namespaces and actions whose synthesized
// schema does not accept their own examples.
func NewRegistry(namespaces ...Namespace) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]int, len(namespaces)),
		actions: map[string]registered{},
	}

	for _, ns := range namespaces {
		if _, dup := r.byName[ns.Name]; dup {
			return nil, fmt.Errorf("namespace %q registered twice", ns.Name)
		}
		for _, a := range ns.Actions {
			if prev, dup := r.actions[a.Name()]; dup {
				return nil, fmt.Errorf("%w: %q in namespaces %q and %q", core.ErrDuplicateAction, a.Name(), prev.namespace, ns.Name)
			}
			if err := ValidateFunction(a); err != nil {
				return nil, err
			}
			r.actions[a.Name()] = registered{namespace: ns.Name, action: a}
		}
		r.byName[ns.Name] = len(r.namespaces)
		ns.Actions = append([]Action(nil), ns.Actions...)
		r.namespaces = append(r.namespaces, ns)
	}

	return r, nil
}

// Namespaces returns all namespaces in registration order.
func (r *Registry) Namespaces() []Namespace {
	return append([]Namespace(nil), r.namespaces...)
}

// Namespace returns the named namespace.
func (r *Registry) Namespace(name string) (Namespace, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Namespace{}, false
	}
	return r.namespaces[i], true
}

// Enabled returns the namespaces for which isEnabled reports true, in
// registration order.
func (r *Registry) Enabled(isEnabled func(namespace string) bool) []Namespace {
	var out []Namespace
	for _, ns := range r.namespaces {
		if isEnabled(ns.Name) {
			out = append(out, ns)
		}
	}
	return out
}

// Lookup resolves an action name among enabled namespaces.
func (r *Registry) Lookup(name string, isEnabled func(namespace string) bool) (Action, bool) {
	reg, ok := r.actions[name]
	if !ok || !isEnabled(reg.namespace) {
		return nil, false
	}
	return reg.action, true
}

// NamespaceOf returns the namespace that registered the action.
func (r *Registry) NamespaceOf(action string) (string, bool) {
	reg, ok := r.actions[action]
	return reg.namespace, ok
}

// NewState creates a State seeded with this registry's namespaces and
// storages.
func (r *Registry) NewState(optFns ...func(o *state.Options)) (*state.State, error) {
	cfgs := make([]state.NamespaceConfig, 0, len(r.namespaces))
	for _, ns := range r.namespaces {
		cfgs = append(cfgs, state.NamespaceConfig{Name: ns.Name, Default: ns.Default, Storages: ns.Storages})
	}
	return state.New(cfgs, optFns...)
}
