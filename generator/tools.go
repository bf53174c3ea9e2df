package generator

import (
	"github.com/hupe1980/actionmesh/namespace"
	"github.com/hupe1980/actionmesh/state"
)

// Functions lists the function definitions of every action in every enabled
// namespace, in registry order. It returns nil when native tool calling is off
// or reg is nil.
//
// The native-tools flag and namespace enablement are read under one
// acquisition of the state lock.
func Functions(st *state.State, reg *namespace.Registry) []namespace.FunctionDefinition {
	if st == nil || reg == nil {
		return nil
	}

	var (
		native  bool
		enabled []namespace.Namespace
	)
	st.View(func(v state.Snapshot) {
		native = v.NativeTools()
		if native {
			enabled = reg.Enabled(v.NamespaceEnabled)
		}
	})
	if !native {
		return nil
	}

	var defs []namespace.FunctionDefinition
	for _, ns := range enabled {
		for _, a := range ns.Actions {
			defs = append(defs, namespace.DefineFunction(a))
		}
	}
	return defs
}
