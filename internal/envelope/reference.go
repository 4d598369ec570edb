package envelope

import (
	"fmt"
	"regexp"
	"sync"
	"time"
)

// referencePattern is the canonical wire form: CTX-YYYY-MMDD-NNN.
var referencePattern = regexp.MustCompile(`^CTX-\d{4}-\d{4}-\d{3}$`)

// ReferenceCode is the opaque identity of a workflow or sub-task. Two codes
// are equal iff their string forms are equal.
type ReferenceCode struct {
	value string
}

// ParseReferenceCode validates and wraps a canonical reference code string.
func ParseReferenceCode(s string) (ReferenceCode, error) {
	if !referencePattern.MatchString(s) {
		return ReferenceCode{}, fmt.Errorf("%w: %q", ErrMalformedReferenceCode, s)
	}
	return ReferenceCode{value: s}, nil
}

func (r ReferenceCode) String() string {
	return r.value
}

// IsZero reports whether r is the zero value (never produced by Generate).
func (r ReferenceCode) IsZero() bool {
	return r.value == ""
}

func (r ReferenceCode) Equal(other ReferenceCode) bool {
	return r.value == other.value
}

const maxDailySequence = 999

// ReferenceCodeGenerator produces ReferenceCode values, serialising
// generation per UTC date bucket so concurrent calls never collide.
type ReferenceCodeGenerator struct {
	mu        sync.Mutex
	sequences map[string]int // "YYYYMMDD" -> last used sequence
	now       func() time.Time
}

// NewReferenceCodeGenerator builds a generator. now defaults to time.Now if
// nil; tests may inject a fixed clock.
func NewReferenceCodeGenerator(now func() time.Time) *ReferenceCodeGenerator {
	if now == nil {
		now = time.Now
	}
	return &ReferenceCodeGenerator{
		sequences: make(map[string]int),
		now:       now,
	}
}

// Generate returns the next reference code for the current UTC day.
func (g *ReferenceCodeGenerator) Generate() (ReferenceCode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	day := g.now().UTC()
	bucket := day.Format("20060102")

	seq := g.sequences[bucket] + 1
	if seq > maxDailySequence {
		return ReferenceCode{}, fmt.Errorf("%w: day %s", ErrSequenceExhausted, bucket)
	}
	g.sequences[bucket] = seq

	value := fmt.Sprintf("CTX-%04d-%02d%02d-%03d", day.Year(), day.Month(), day.Day(), seq)
	return ReferenceCode{value: value}, nil
}
