// Package palette assigns stable colours to dialogue speakers.
//
// A speaker name is normalised (lower-cased, trimmed), digested, and the first
// three digest bytes become the base colour. Lighter and darker shades are
// derived with Blend. Results are memoised per normalised name so repeated
// lookups never re-hash.
package palette

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// Digest algorithm names accepted by NewAssigner.
const (
	DigestSHA1   = "sha1"
	DigestSHA256 = "sha256"
	DigestBLAKE3 = "blake3"

	// DefaultDigest is used when no algorithm is configured.
	DefaultDigest = DigestSHA1
)

// Shade weights applied to a speaker's base colour.
const (
	BackgroundWeight = 0.85 // toward white
	BorderWeight     = 0.65 // toward white
	LabelWeight      = 0.60 // toward black
)

// ErrUnknownDigest is returned when an unsupported digest algorithm is requested.
var ErrUnknownDigest = errors.New("unknown colour digest algorithm")

// RGB is an 8-bit-per-channel colour.
type RGB struct {
	R, G, B uint8
}

var (
	White = RGB{255, 255, 255}
	Black = RGB{0, 0, 0}

	// Fallback is substituted by callers when a colour lookup fails.
	Fallback = RGB{0x88, 0x88, 0x88}
)

// CSS renders the colour as a CSS rgb() function.
func (c RGB) CSS() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// Hex renders the colour as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Blend interpolates linearly from a toward b by weight w (0..1), rounding
// each channel half-up.
func Blend(a, b RGB, w float64) RGB {
	mix := func(x, y uint8) uint8 {
		v := float64(x)*(1-w) + float64(y)*w
		return uint8(math.Floor(v + 0.5))
	}
	return RGB{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B)}
}

// Shades are the three derived colours used to paint one dialogue line.
type Shades struct {
	Base       RGB
	Background RGB
	Border     RGB
	Label      RGB
}

// ShadesOf derives the dialogue shades from a base colour.
func ShadesOf(base RGB) Shades {
	return Shades{
		Base:       base,
		Background: Blend(base, White, BackgroundWeight),
		Border:     Blend(base, White, BorderWeight),
		Label:      Blend(base, Black, LabelWeight),
	}
}

// Normalize returns the memo key for a speaker name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DigestFunc hashes a normalised name. Implementations must return at least
// three bytes.
type DigestFunc func(data []byte) ([]byte, error)

// DigestByName resolves a digest algorithm name.
func DigestByName(name string) (DigestFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DigestSHA1:
		return func(data []byte) ([]byte, error) {
			sum := sha1.Sum(data)
			return sum[:], nil
		}, nil
	case DigestSHA256:
		return func(data []byte) ([]byte, error) {
			sum := sha256.Sum256(data)
			return sum[:], nil
		}, nil
	case DigestBLAKE3:
		return func(data []byte) ([]byte, error) {
			sum := blake3.Sum256(data)
			return sum[:], nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q (allowed: %s, %s, %s)", ErrUnknownDigest, name, DigestSHA1, DigestSHA256, DigestBLAKE3)
	}
}

// Assigner maps speaker names to colours. It is safe for concurrent use.
type Assigner struct {
	digest DigestFunc
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]RGB
}

// NewAssigner creates an Assigner using the named digest algorithm.
func NewAssigner(digestName string, loggerHandler slog.Handler) (*Assigner, error) {
	fn, err := DigestByName(digestName)
	if err != nil {
		return nil, err
	}
	return NewAssignerWithDigest(fn, loggerHandler), nil
}

// NewAssignerWithDigest creates an Assigner around a custom digest function.
func NewAssignerWithDigest(fn DigestFunc, loggerHandler slog.Handler) *Assigner {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &Assigner{
		digest: fn,
		logger: slog.New(loggerHandler).With(slog.String("component", "palette")),
		cache:  make(map[string]RGB),
	}
}

// ColorOf returns the base colour for a speaker.
func (a *Assigner) ColorOf(ctx context.Context, speaker string) (RGB, error) {
	key := Normalize(speaker)

	a.mu.RLock()
	c, ok := a.cache[key]
	a.mu.RUnlock()
	if ok {
		return c, nil
	}

	if err := ctx.Err(); err != nil {
		return RGB{}, err
	}

	sum, err := a.digest([]byte(key))
	if err != nil {
		return RGB{}, fmt.Errorf("digest speaker %q: %w", key, err)
	}
	if len(sum) < 3 {
		return RGB{}, fmt.Errorf("digest speaker %q: short digest (%d bytes)", key, len(sum))
	}
	c = RGB{R: sum[0], G: sum[1], B: sum[2]}

	a.mu.Lock()
	a.cache[key] = c
	a.mu.Unlock()

	a.logger.Debug("Speaker colour assigned", slog.String("speaker", key), slog.String("color", c.Hex()))
	return c, nil
}

// Len reports how many speakers are memoised.
func (a *Assigner) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}
