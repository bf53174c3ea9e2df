// Package providertest offers a scripted HTTP backend and a small action
// registry for provider adapter tests.
package providertest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/namespace"
	"github.com/hupe1980/actionmesh/state"
)

// Request is one request received by a Server.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

type reply struct {
	status int
	body   string
}

// Server is an httptest server answering with queued replies in order. When
// the queue is empty it answers with the fallback reply, or 500.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	replies  []reply
	fallback *reply
	requests []Request
}

// NewServer starts a Server that is closed when t ends.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Reply queues a JSON response.
func (s *Server) Reply(status int, body string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply{status: status, body: body})
	return s
}

// Always sets the response used once the queue is drained.
func (s *Server) Always(status int, body string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = &reply{status: status, body: body}
	return s
}

// Requests returns the received requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Last returns the most recent request body.
func (s *Server) Last(t *testing.T) map[string]any {
	t.Helper()
	reqs := s.Requests()
	require.NotEmpty(t, reqs)
	return reqs[len(reqs)-1].Body
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
	rep := reply{status: http.StatusInternalServerError, body: `{"error":{"message":"no scripted reply"}}`}
	switch {
	case len(s.replies) > 0:
		rep = s.replies[0]
		s.replies = s.replies[1:]
	case s.fallback != nil:
		rep = *s.fallback
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	_, _ = w.Write([]byte(rep.body))
}

func noop(context.Context, *state.State, map[string]string, *string) (core.ActionOutput, error) {
	return nil, nil
}

// Registry returns a registry with a default "memory" namespace holding
// save_memory (payload and key attribute) and recall.
func Registry(t *testing.T) *namespace.Registry {
	t.Helper()
	reg, err := namespace.NewRegistry(
		namespace.NewDefault("memory", "Remember things.", []namespace.Action{
			namespace.NewFunctionAction("save_memory", "Store a memory.", noop, func(o *namespace.FunctionActionOptions) {
				o.ExamplePayload = core.String("the memory")
				o.ExampleAttributes = map[string]string{"key": "my-key"}
			}),
			namespace.NewFunctionAction("recall", "Recall everything.", noop),
		}),
	)
	require.NoError(t, err)
	return reg
}

// NativeState returns a state for reg with native tool calling enabled.
func NativeState(t *testing.T, reg *namespace.Registry, pub core.Publisher) *state.State {
	t.Helper()
	st, err := reg.NewState(func(o *state.Options) {
		o.NativeTools = true
		if pub != nil {
			o.Publisher = pub
		}
	})
	require.NoError(t, err)
	return st
}

// Messages returns the "messages" array of a request body.
func Messages(t *testing.T, body map[string]any) []map[string]any {
	t.Helper()
	raw, ok := body["messages"].([]any)
	require.True(t, ok, "messages missing")
	out := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.(map[string]any))
	}
	return out
}
