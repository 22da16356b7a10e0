// Package idempotency replays the stored response of a mutating request when
// a client retries it with the same Idempotency-Key.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL is how long a claimed key is held when no TTL is given.
const DefaultTTL = 24 * time.Hour

// Claim is the outcome of Store.Claim.
type Claim int

const (
	// Claimed means the caller now holds the key and must Complete or Abandon it.
	Claimed Claim = iota
	// Replay means a finished reply is stored under the key.
	Replay
	// InFlight means another request holds the key and has not finished.
	InFlight
)

// Reply is a captured response, replayed verbatim to retries.
type Reply struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

// Store holds claims on idempotency keys. Keys arrive already scoped to the
// requester; fingerprint identifies the request body and target.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, *Reply, error)
	Complete(ctx context.Context, key, fingerprint string, reply Reply, now time.Time, ttl time.Duration) error
	// Abandon drops a claim so the next request with the key runs again.
	// Claims held under another fingerprint are left alone.
	Abandon(ctx context.Context, key, fingerprint string) error
}

// ErrKeyReused is returned when a key arrives with a different request.
var ErrKeyReused = errors.New("idempotency: key reused for a different request")

// entry is the stored state of one key. A nil Reply means still running.
type entry struct {
	Fingerprint string    `json:"fingerprint"`
	Reply       *Reply    `json:"reply,omitempty"`
	Expires     time.Time `json:"expires"`
}

func (e entry) claimFor(fingerprint string) (Claim, *Reply, error) {
	if e.Fingerprint != fingerprint {
		return 0, nil, ErrKeyReused
	}
	if e.Reply != nil {
		return Replay, e.Reply, nil
	}
	return InFlight, nil, nil
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.UTC().Add(ttl)
}

// volatileHeaders describe the original connection, not the resource, and
// are regenerated on replay.
var volatileHeaders = []string{
	"Connection", "Content-Length", "Date", "Keep-Alive", "Transfer-Encoding", "Upgrade", "X-Request-Id",
}

func newReply(status int, header http.Header, body []byte) Reply {
	h := header.Clone()
	for _, name := range volatileHeaders {
		h.Del(name)
	}
	if len(h) == 0 {
		h = nil
	}
	return Reply{Status: status, Header: h, Body: bytes.Clone(body)}
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
