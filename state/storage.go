package state

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/hupe1980/actionmesh/core"
)

// StorageDescriptor declares a named storage a namespace needs.
type StorageDescriptor struct {
	Name       string
	Type       core.StorageType
	Predefined map[string]string
}

// TaggedStorage declares a key/value storage.
func TaggedStorage(name string) StorageDescriptor {
	return StorageDescriptor{Name: name, Type: core.StorageTagged}
}

// UntaggedStorage declares an append-only list storage.
func UntaggedStorage(name string) StorageDescriptor {
	return StorageDescriptor{Name: name, Type: core.StorageUntagged}
}

// CurrentPreviousStorage declares a storage that remembers the replaced value.
func CurrentPreviousStorage(name string) StorageDescriptor {
	return StorageDescriptor{Name: name, Type: core.StorageCurrentPrevious}
}

// CompletionStorage declares a storage of items with a completed flag.
func CompletionStorage(name string) StorageDescriptor {
	return StorageDescriptor{Name: name, Type: core.StorageCompletion}
}

// TimeStorage declares a storage whose entries record when they were written.
func TimeStorage(name string) StorageDescriptor {
	return StorageDescriptor{Name: name, Type: core.StorageTime}
}

// Predefine seeds the storage with initial values.
func (d StorageDescriptor) Predefine(values map[string]string) StorageDescriptor {
	d.Predefined = values
	return d
}

// Completion status values reported in StorageUpdate events.
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
)

// Entry is one stored value.
type Entry struct {
	Key      string
	Value    string
	Previous *string   // CurrentPrevious only
	Complete bool      // Completion only
	Time     time.Time // write time
}

// Storage is a named store inside State. It shares the state lock.
type Storage struct {
	state *State
	name  string
	typ   core.StorageType

	entries map[string]*Entry
	order   []string
	nextID  int
}

func newStorage(s *State, d StorageDescriptor) *Storage {
	st := &Storage{state: s, name: d.Name, typ: d.Type, entries: map[string]*Entry{}}
	now := time.Now()
	for k, v := range d.Predefined {
		st.entries[k] = &Entry{Key: k, Value: v, Time: now}
		st.order = append(st.order, k)
		if n, err := strconv.Atoi(k); err == nil && n > st.nextID {
			st.nextID = n
		}
	}
	slices.Sort(st.order)
	return st
}

// Name returns the storage name.
func (st *Storage) Name() string { return st.name }

// Type returns the storage retention policy.
func (st *Storage) Type() core.StorageType { return st.typ }

func (st *Storage) update(key string, prev, next *string) core.StorageUpdate {
	return core.StorageUpdate{StorageName: st.name, StorageType: st.typ, Key: key, Prev: prev, New: next}
}

// Set writes value under key. For CurrentPrevious storages the replaced value
// stays readable through Previous.
func (st *Storage) Set(ctx context.Context, key, value string) error {
	if st.typ == core.StorageUntagged {
		return fmt.Errorf("storage %s is untagged, use Add", st.name)
	}
	st.state.mu.Lock()
	var prev *string
	e, ok := st.entries[key]
	if ok {
		prev = core.String(e.Value)
		if st.typ == core.StorageCurrentPrevious {
			e.Previous = prev
		}
		e.Value = value
		e.Time = time.Now()
		if st.typ == core.StorageCompletion {
			e.Complete = false
		}
	} else {
		st.entries[key] = &Entry{Key: key, Value: value, Time: time.Now()}
		st.order = append(st.order, key)
	}
	ev := st.update(key, prev, core.String(value))
	st.state.mu.Unlock()
	return st.state.publish(ctx, ev)
}

// Add appends value to an untagged storage and returns its generated key.
func (st *Storage) Add(ctx context.Context, value string) (string, error) {
	if st.typ != core.StorageUntagged {
		return "", fmt.Errorf("storage %s is %s, use Set", st.name, st.typ)
	}
	st.state.mu.Lock()
	var key string
	for {
		st.nextID++
		key = strconv.Itoa(st.nextID)
		if _, taken := st.entries[key]; !taken {
			break
		}
	}
	st.entries[key] = &Entry{Key: key, Value: value, Time: time.Now()}
	st.order = append(st.order, key)
	ev := st.update(key, nil, core.String(value))
	st.state.mu.Unlock()
	return key, st.state.publish(ctx, ev)
}

// Get returns the current value of key.
func (st *Storage) Get(key string) (string, bool) {
	st.state.mu.Lock()
	defer st.state.mu.Unlock()
	e, ok := st.entries[key]
	if !ok {
		return "", false
	}
	return e.Value, true
}

// Previous returns the value key held before its last Set.
func (st *Storage) Previous(key string) (string, bool) {
	st.state.mu.Lock()
	defer st.state.mu.Unlock()
	e, ok := st.entries[key]
	if !ok || e.Previous == nil {
		return "", false
	}
	return *e.Previous, true
}

// Delete removes key. Deleting an absent key is a no-op without event.
func (st *Storage) Delete(ctx context.Context, key string) error {
	st.state.mu.Lock()
	e, ok := st.entries[key]
	if !ok {
		st.state.mu.Unlock()
		return nil
	}
	delete(st.entries, key)
	for i, k := range st.order {
		if k == key {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
	ev := st.update(key, core.String(e.Value), nil)
	st.state.mu.Unlock()
	return st.state.publish(ctx, ev)
}

// Clear removes every entry, publishing one update per removed key.
func (st *Storage) Clear(ctx context.Context) error {
	st.state.mu.Lock()
	evs := make([]core.StorageUpdate, 0, len(st.order))
	for _, k := range st.order {
		evs = append(evs, st.update(k, core.String(st.entries[k].Value), nil))
	}
	st.entries = map[string]*Entry{}
	st.order = nil
	st.state.mu.Unlock()
	for _, ev := range evs {
		if err := st.state.publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// SetComplete flags a completion item as done or pending.
func (st *Storage) SetComplete(ctx context.Context, key string, complete bool) error {
	if st.typ != core.StorageCompletion {
		return fmt.Errorf("storage %s is %s, not completion", st.name, st.typ)
	}
	st.state.mu.Lock()
	e, ok := st.entries[key]
	if !ok {
		st.state.mu.Unlock()
		return fmt.Errorf("storage %s: no item %q", st.name, key)
	}
	prev := completionStatus(e.Complete)
	e.Complete = complete
	ev := st.update(key, core.String(prev), core.String(completionStatus(complete)))
	st.state.mu.Unlock()
	return st.state.publish(ctx, ev)
}

// IsComplete reports whether a completion item is done.
func (st *Storage) IsComplete(key string) bool {
	st.state.mu.Lock()
	defer st.state.mu.Unlock()
	e, ok := st.entries[key]
	return ok && e.Complete
}

func completionStatus(done bool) string {
	if done {
		return StatusComplete
	}
	return StatusPending
}

// Entries returns a copy of all entries in insertion order.
func (st *Storage) Entries() []Entry {
	st.state.mu.Lock()
	defer st.state.mu.Unlock()
	out := make([]Entry, 0, len(st.order))
	for _, k := range st.order {
		out = append(out, *st.entries[k])
	}
	return out
}

// Len returns the number of entries.
func (st *Storage) Len() int {
	st.state.mu.Lock()
	defer st.state.mu.Unlock()
	return len(st.order)
}

// Touch records the current time under key in a time storage. The stored
// value is the RFC3339 timestamp.
func (st *Storage) Touch(ctx context.Context, key string) (time.Time, error) {
	if st.typ != core.StorageTime {
		return time.Time{}, fmt.Errorf("storage %s is %s, not time", st.name, st.typ)
	}
	now := time.Now()
	return now, st.Set(ctx, key, now.UTC().Format(time.RFC3339))
}
