// Package core provides the shared vocabulary of ActionMesh: invocations,
// action outputs, conversation messages, generator request/response shapes,
// the closed set of runtime events and the ordered EventChannel that
// delivers them.
//
// The package holds no behaviour beyond value helpers and the channel so that
// every other package (state, namespace, generator, dispatch) can depend on it
// without cycles.
package core
