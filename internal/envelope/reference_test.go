package envelope

import (
	"errors"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestReferenceCodeGenerator_SequentialWithinDay(t *testing.T) {
	gen := NewReferenceCodeGenerator(fixedClock(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)))

	first, err := gen.Generate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.String() != "CTX-2026-0305-001" {
		t.Errorf("first code = %q, want CTX-2026-0305-001", first.String())
	}

	second, err := gen.Generate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.String() != "CTX-2026-0305-002" {
		t.Errorf("second code = %q, want CTX-2026-0305-002", second.String())
	}
}

func TestReferenceCodeGenerator_ResetsAcrossDays(t *testing.T) {
	day1 := time.Date(2026, 3, 5, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 6, 0, 1, 0, 0, time.UTC)

	clock := day1
	gen := NewReferenceCodeGenerator(func() time.Time { return clock })

	if _, err := gen.Generate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock = day2
	code, err := gen.Generate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code.String() != "CTX-2026-0306-001" {
		t.Errorf("code = %q, want CTX-2026-0306-001", code.String())
	}
}

func TestReferenceCodeGenerator_CapacityExhausted(t *testing.T) {
	gen := NewReferenceCodeGenerator(fixedClock(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)))

	var last ReferenceCode
	var err error
	for i := 0; i < maxDailySequence; i++ {
		last, err = gen.Generate()
		if err != nil {
			t.Fatalf("unexpected error at iteration %d: %v", i, err)
		}
	}
	if last.String() != "CTX-2026-0305-999" {
		t.Errorf("999th code = %q, want CTX-2026-0305-999", last.String())
	}

	if _, err := gen.Generate(); !errors.Is(err, ErrSequenceExhausted) {
		t.Errorf("1000th call error = %v, want ErrSequenceExhausted", err)
	}
}

func TestParseReferenceCode(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"CTX-2026-0305-001", false},
		{"CTX-2026-0305-999", false},
		{"ctx-2026-0305-001", true},
		{"CTX-2026-305-001", true},
		{"CTX-2026-0305-01", true},
		{"", true},
	}
	for _, c := range cases {
		_, err := ParseReferenceCode(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseReferenceCode(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
		}
	}
}

func TestReferenceCode_Equal(t *testing.T) {
	a, _ := ParseReferenceCode("CTX-2026-0305-001")
	b, _ := ParseReferenceCode("CTX-2026-0305-001")
	c, _ := ParseReferenceCode("CTX-2026-0305-002")

	if !a.Equal(b) {
		t.Error("expected equal codes to compare equal")
	}
	if a.Equal(c) {
		t.Error("expected different codes to compare unequal")
	}
}
