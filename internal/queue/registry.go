package queue

import (
	"context"
	"errors"
	"fmt"
)

var ErrDuplicateHandler = errors.New("handler already registered")

// Handler runs one job. A nil return completes the job; an error hands the
// job to the retry policy.
type Handler interface {
	Execute(ctx context.Context, job *Job) error
}

type HandlerFunc func(ctx context.Context, job *Job) error

func (f HandlerFunc) Execute(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// Registry binds each Kind to exactly one Handler.
type Registry struct {
	handlers map[Kind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Kind]Handler)}
}

func (r *Registry) Register(kind Kind, h Handler) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if _, ok := r.handlers[kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, kind)
	}
	r.handlers[kind] = h
	return nil
}

func (r *Registry) Handler(kind Kind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Validate fails unless every Kind has a handler.
func (r *Registry) Validate() error {
	var errs []error
	for _, kind := range Kinds() {
		if _, ok := r.handlers[kind]; !ok {
			errs = append(errs, fmt.Errorf("no handler for queue %s", kind))
		}
	}
	return errors.Join(errs...)
}
