// Package state implements the shared mutable aggregate every action and
// generator works against: globals, variables, namespace enablement, the
// native tool-format flag, metrics, named storages and the chat history.
//
// All reads and writes go through a single mutex. Events describing a
// mutation are published after the lock is released so a slow consumer can
// never stall other readers.
package state
