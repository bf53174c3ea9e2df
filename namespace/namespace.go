package namespace

import "github.com/hupe1980/actionmesh/state"

// Namespace is a named, ordered group of related actions, optionally
// declaring the storages its actions use.
type Namespace struct {
	Name        string
	Description string
	Actions     []Action
	Storages    []state.StorageDescriptor
	// Default namespaces are enabled on startup; the others are opt-in.
	Default bool
}

// NewDefault creates a namespace that is enabled on startup.
func NewDefault(name, description string, actions []Action, storages ...state.StorageDescriptor) Namespace {
	return Namespace{Name: name, Description: description, Actions: actions, Storages: storages, Default: true}
}

// NewOptional creates an opt-in namespace.
func NewOptional(name, description string, actions []Action, storages ...state.StorageDescriptor) Namespace {
	return Namespace{Name: name, Description: description, Actions: actions, Storages: storages}
}
