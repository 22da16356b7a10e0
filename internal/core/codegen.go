package core

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	DefaultCodeLength      = 10
	DefaultCodeMaxAttempts = 20

	// Scanned input outside these bounds is rejected before any lookup.
	minScanCodeLength = 4
	maxScanCodeLength = 32
)

// codeAlphabet is Crockford base32. Its size divides 256, so reducing a
// random byte modulo the alphabet length is uniform.
const codeAlphabet = ulid.Encoding

// CodeGenerator produces order codes that double as order number and barcode.
type CodeGenerator struct {
	length      int
	maxAttempts int
	rand        io.Reader
}

// NewCodeGenerator returns a generator backed by crypto/rand.
// Non-positive arguments fall back to the defaults.
func NewCodeGenerator(length, maxAttempts int) *CodeGenerator {
	return NewCodeGeneratorWithReader(length, maxAttempts, rand.Reader)
}

// NewCodeGeneratorWithReader is NewCodeGenerator with an explicit entropy source.
func NewCodeGeneratorWithReader(length, maxAttempts int, r io.Reader) *CodeGenerator {
	if length < minScanCodeLength || length > maxScanCodeLength {
		length = DefaultCodeLength
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultCodeMaxAttempts
	}
	return &CodeGenerator{length: length, maxAttempts: maxAttempts, rand: r}
}

// Generate returns one random code. It never consults persisted state.
func (g *CodeGenerator) Generate() (string, error) {
	buf := make([]byte, g.length)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// GenerateUnique draws codes until exists reports one as free, up to the
// configured number of attempts. Errors from exists are returned as is.
func (g *CodeGenerator) GenerateUnique(ctx context.Context, exists func(context.Context, string) (bool, error)) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := g.Generate()
		if err != nil {
			return "", Wrap(KindInternal, "generate code", err)
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", &Error{
		Kind:    KindCodeSpaceExhausted,
		Message: fmt.Sprintf("no free order code after %d attempts", g.maxAttempts),
	}
}

// NormalizeCode trims scanner noise and upper-cases the input.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidCode reports whether s is plausible scanner input: 4 to 32 characters
// of A-Z and 0-9. Codes issued before the Crockford alphabet may contain
// I, L, O or U, so the check is wider than what Generate emits.
func ValidCode(s string) bool {
	if len(s) < minScanCodeLength || len(s) > maxScanCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
