// Package testutil contains helpers shared by package tests: an in-memory
// event Recorder implementing core.Publisher and a HistoryBuilder for
// conversation histories. They are not intended for production usage.
package testutil
