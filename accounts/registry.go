package accounts

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// RequestID identifies one in-flight request.
type RequestID = uuid.UUID

// Callbacks holds the optional success and error handlers for one
// in-flight request. Either or both may be nil.
type Callbacks struct {
	// OnSuccess receives the response body parsed as a JSON document.
	OnSuccess func(doc gjson.Result)

	// OnError receives the HTTP status code (0 for network-level
	// failures) and a human-readable message.
	OnError func(code int, message string)
}

// IsEmpty reports whether no handler is set.
func (c Callbacks) IsEmpty() bool {
	return c.OnSuccess == nil && c.OnError == nil
}

// CallbackRegistry correlates in-flight requests with their callback
// pair. Each registered request resolves at most once: the entry is
// removed before its handler runs, so a duplicate delivery from the
// transport finds nothing and is logged instead.
type CallbackRegistry struct {
	mu      sync.Mutex
	pending map[RequestID]Callbacks

	logger *slog.Logger
}

// NewCallbackRegistry creates an empty registry.
func NewCallbackRegistry(logger *slog.Logger) *CallbackRegistry {
	return &CallbackRegistry{
		pending: make(map[RequestID]Callbacks),
		logger:  logger,
	}
}

// Register stores the callback pair for id. Registering an empty pair
// is a no-op: the request is fire-and-forget and its outcome will only
// be logged.
func (r *CallbackRegistry) Register(id RequestID, cb Callbacks) {
	if cb.IsEmpty() {
		return
	}

	r.mu.Lock()
	r.pending[id] = cb
	r.mu.Unlock()
}

// Len returns the number of requests awaiting resolution.
func (r *CallbackRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending)
}

// take removes and returns the pair registered for id.
func (r *CallbackRegistry) take(id RequestID) (Callbacks, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}

	return cb, ok
}

// ResolveSuccess parses body as a JSON document and hands it to the
// success handler registered for id. A request with no registered
// handler is not an error; the response is logged and discarded.
func (r *CallbackRegistry) ResolveSuccess(id RequestID, body []byte) {
	cb, ok := r.take(id)
	if !ok || cb.OnSuccess == nil {
		r.logger.Info("response with no matching callback",
			slog.String("request", id.String()),
			slog.Int("bytes", len(body)))

		return
	}

	cb.OnSuccess(gjson.ParseBytes(body))
}

// ResolveError hands the error to the handler registered for id. A
// request with no registered handler is not an error; the outcome is
// logged and discarded.
func (r *CallbackRegistry) ResolveError(id RequestID, code int, message string) {
	cb, ok := r.take(id)
	if !ok || cb.OnError == nil {
		r.logger.Info("error response with no matching callback",
			slog.String("request", id.String()),
			slog.Int("code", code),
			slog.String("message", message))

		return
	}

	cb.OnError(code, message)
}
