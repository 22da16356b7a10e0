package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	HeaderName       = "Idempotency-Key"
	ReplayHeaderName = "X-Idempotent-Replay"

	maxKeyLength = 255
)

type middlewareConfig struct {
	ttl      time.Duration
	clock    func() time.Time
	logger   *zap.Logger
	identity func(*http.Request) string
}

// Option customises the middleware.
type Option func(*middlewareConfig)

// WithTTL sets how long completed responses are replayable.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithLogger sets the logger for store failures.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *middlewareConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithIdentity scopes keys to the requester returned by fn, so two users
// sending the same key never see each other's responses.
func WithIdentity(fn func(*http.Request) string) Option {
	return func(cfg *middlewareConfig) {
		if fn != nil {
			cfg.identity = fn
		}
	}
}

// Middleware replays stored responses for requests carrying an
// Idempotency-Key header. Requests without the header pass through.
// Server errors, 409 responses and panics are not stored, so a retry runs again.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		ttl:      DefaultTTL,
		clock:    time.Now,
		logger:   zap.NewNop(),
		identity: func(*http.Request) string { return "anonymous" },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderName))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				respondError(w, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", "idempotency key too long")
				return
			}

			body, err := readAndReplayBody(r)
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					respondError(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "request body too large")
					return
				}
				respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "unable to read request body")
				return
			}

			identity := cfg.identity(r)
			fingerprint := requestFingerprint(r, body, identity)
			scoped := key + "|" + identity

			claim, reply, err := store.Claim(r.Context(), scoped, fingerprint, cfg.clock(), cfg.ttl)
			if err != nil {
				if errors.Is(err, ErrKeyReused) {
					respondError(w, http.StatusConflict, "IDEMPOTENCY_KEY_REUSED", "idempotency key already used for a different request")
					return
				}
				cfg.logger.Error("idempotency claim failed", zap.Error(err))
				respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unable to process idempotency key")
				return
			}

			switch claim {
			case Replay:
				writeReply(w, reply)
				return
			case InFlight:
				respondError(w, http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "another request is processing this idempotency key")
				return
			}

			abandon := func() {
				if err := store.Abandon(context.WithoutCancel(r.Context()), scoped, fingerprint); err != nil {
					cfg.logger.Error("idempotency abandon failed", zap.Error(err))
				}
			}

			rec := newResponseRecorder()
			serveHolding(next, rec, r, abandon)

			if rec.Status() >= 500 || rec.Status() == http.StatusConflict {
				abandon()
			} else {
				done := newReply(rec.Status(), rec.header, rec.body.Bytes())
				if err := store.Complete(r.Context(), scoped, fingerprint, done, cfg.clock(), cfg.ttl); err != nil {
					cfg.logger.Error("idempotency complete failed", zap.Error(err))
					abandon()
				}
			}

			if err := rec.commit(w); err != nil {
				cfg.logger.Warn("failed to flush response", zap.Error(err))
			}
		})
	}
}

// serveHolding runs next while the key is claimed. A panicking handler gives
// the key up before the panic continues, so a retry is not locked out until
// the claim expires.
func serveHolding(next http.Handler, w http.ResponseWriter, r *http.Request, abandon func()) {
	defer func() {
		if p := recover(); p != nil {
			abandon()
			panic(p)
		}
	}()
	next.ServeHTTP(w, r)
}

func readAndReplayBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requestFingerprint(r *http.Request, body []byte, identity string) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(r.Method))
	b.WriteString("|")
	b.WriteString(r.URL.Path)
	b.WriteString("|")
	b.WriteString(r.URL.RawQuery)
	b.WriteString("|")
	b.WriteString(identity)
	b.WriteString("|")
	if len(body) > 0 {
		b.WriteString(hashKey(string(body)))
	}
	return hashKey(b.String())
}

func writeReply(w http.ResponseWriter, reply *Reply) {
	for name, values := range reply.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(ReplayHeaderName, "true")

	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(reply.Body) > 0 {
		_, _ = w.Write(reply.Body)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

// responseRecorder buffers the handler's response so it can be stored
// before anything reaches the client.
type responseRecorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) commit(w http.ResponseWriter) error {
	dst := w.Header()
	for name, values := range r.header {
		dst[name] = append([]string(nil), values...)
	}
	w.WriteHeader(r.Status())
	if r.body.Len() == 0 {
		return nil
	}
	_, err := w.Write(r.body.Bytes())
	return err
}
