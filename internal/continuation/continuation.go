// Package continuation issues and resolves workflow continuation tokens.
// A suspended pipeline run parks on a token; the completion notification
// path resolves it exactly once, with success or failure, to resume the run.
package continuation

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"medley/internal/jobs"
)

// Outcome is the resolution delivered to a suspended run.
type Outcome struct {
	Success      bool
	Result       map[string]any
	ErrorKind    string
	ErrorMessage string
}

// Sender delivers a callback outcome for a continuation token. The local
// Registry implements it in-process; the Step Functions client implements it
// against the cloud workflow engine.
type Sender interface {
	// SendSuccess resolves the token with a JSON-serializable output.
	SendSuccess(ctx context.Context, token string, output any) error
	// SendFailure resolves the token with an error kind and cause.
	SendFailure(ctx context.Context, token, errorKind, cause string) error
}

type waiter struct {
	ch       chan Outcome
	resolved bool
}

// Registry tracks outstanding continuation tokens for in-process workflows.
type Registry struct {
	mu      sync.Mutex
	waiters map[string]*waiter
}

// NewRegistry creates an empty continuation registry.
func NewRegistry() *Registry {
	return &Registry{waiters: make(map[string]*waiter)}
}

// Issue mints a fresh token and registers a waiter for it.
func (r *Registry) Issue() string {
	token := uuid.NewString()
	r.mu.Lock()
	r.waiters[token] = &waiter{ch: make(chan Outcome, 1)}
	r.mu.Unlock()
	return token
}

// Wait returns the channel that receives the token's outcome. The channel is
// buffered, so resolution never blocks on a slow or absent reader.
func (r *Registry) Wait(token string) (<-chan Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.waiters[token]
	if !ok {
		return nil, false
	}
	return w.ch, true
}

// Abandon drops a token without resolving it, for runs that give up waiting.
func (r *Registry) Abandon(token string) {
	r.mu.Lock()
	delete(r.waiters, token)
	r.mu.Unlock()
}

// SendSuccess resolves the token with the given output.
func (r *Registry) SendSuccess(_ context.Context, token string, output any) error {
	result, err := toResultMap(output)
	if err != nil {
		return jobs.Wrap(jobs.ErrInternal, "", "resolve continuation", token, err)
	}
	return r.resolve(token, Outcome{Success: true, Result: result})
}

// SendFailure resolves the token with an error.
func (r *Registry) SendFailure(_ context.Context, token, errorKind, cause string) error {
	return r.resolve(token, Outcome{Success: false, ErrorKind: errorKind, ErrorMessage: cause})
}

// resolve delivers the outcome exactly once. Unknown tokens are permanent
// errors; a second resolution of the same token is rejected.
func (r *Registry) resolve(token string, outcome Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.waiters[token]
	if !ok {
		return jobs.Wrap(jobs.ErrNotFound, "", "resolve continuation", "unknown token "+token, nil)
	}
	if w.resolved {
		return jobs.Wrap(jobs.ErrValidation, "", "resolve continuation", "token already resolved: "+token, nil)
	}
	w.resolved = true
	w.ch <- outcome
	return nil
}

func toResultMap(output any) (map[string]any, error) {
	if output == nil {
		return nil, nil
	}
	if m, ok := output.(map[string]any); ok {
		return m, nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
