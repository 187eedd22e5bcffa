// internal/protocol/router.go
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Channel carries requests in and responses out. Send must be safe for concurrent use.
type Channel interface {
	// Receive blocks for the next request. It returns io.EOF once the peer is gone and an error
	// wrapping ErrMalformed for undecodable input.
	Receive(ctx context.Context) (Request, error)
	Send(ctx context.Context, resp Response) error
	Close() error
}

// Handler serves one request type. The returned value is encoded as the response payload.
type Handler func(ctx context.Context, payload json.RawMessage) (interface{}, error)

// Router dispatches requests to handlers by type.
type Router struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[Type]Handler
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{logger: logger.Named("protocol"), handlers: make(map[Type]Handler)}
}

// Handle registers h for t.
func (r *Router) Handle(t Type, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[t]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, t)
	}
	r.handlers[t] = h
	return nil
}

// Types lists the registered types, sorted.
func (r *Router) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch runs the handler for req and always returns a response. A panicking handler is
// answered like a failing one.
func (r *Router) Dispatch(ctx context.Context, req Request) (resp Response) {
	r.mu.RLock()
	h, ok := r.handlers[req.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("Received unknown message type.", zap.String("type", string(req.Type)), zap.String("id", req.ID))
		return failure(req, fmt.Errorf("%w: %s", ErrUnknownType, req.Type))
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Handler panicked.", zap.String("type", string(req.Type)), zap.Any("panic", p))
			resp = failure(req, fmt.Errorf("handler panicked: %v", p))
		}
	}()

	out, err := h(ctx, req.Payload)
	if err != nil {
		r.logger.Debug("Handler failed.", zap.String("type", string(req.Type)), zap.String("id", req.ID), zap.Error(err))
		return failure(req, err)
	}
	resp = Response{ID: req.ID, Type: req.Type, OK: true}
	if out != nil {
		raw, err := wire.Marshal(out)
		if err != nil {
			return failure(req, fmt.Errorf("failed to encode response: %w", err))
		}
		resp.Payload = raw
	}
	return resp
}

// ServeOptions tunes Serve.
type ServeOptions struct {
	// MaxInFlight bounds concurrently running handlers; zero means 16.
	MaxInFlight int
}

// Serve reads requests from ch until the peer is gone or ctx is done, running each in its own
// goroutine. Responses may be sent in any order. It closes ch and waits for in-flight handlers
// before returning.
func Serve(ctx context.Context, ch Channel, r *Router, opts ServeOptions) error {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 16
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = ch.Close() })
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxInFlight)

	var loopErr error
	for {
		req, err := ch.Receive(gctx)
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				r.logger.Warn("Dropped malformed request.", zap.Error(err))
				if sendErr := ch.Send(gctx, failure(req, err)); sendErr != nil {
					loopErr = sendErr
					break
				}
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, ErrClosed) && ctx.Err() == nil {
				loopErr = err
			}
			break
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		g.Go(func() error {
			resp := r.Dispatch(gctx, req)
			if err := ch.Send(gctx, resp); err != nil {
				r.logger.Debug("Failed to send response.", zap.String("id", req.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	_ = ch.Close()
	return loopErr
}
