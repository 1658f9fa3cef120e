package version

import (
	"testing"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

func TestParse_RoundTrips(t *testing.T) {
	for _, s := range []string{"0.1", "1.0", "2.11", "10.3"} {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if v.String() != s {
			t.Fatalf("Parse(%q).String() = %q", s, v.String())
		}
	}
}

func TestParse_RejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "1", "1.", ".1", "a.b", "-1.0", "1.-2", "1.0.0x"} {
		if _, err := Parse(s); !apierr.IsValidation(err) {
			t.Fatalf("Parse(%q): expected validation error, got %v", s, err)
		}
	}
}

func TestVersion_Compare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"0.1", "0.2", -1},
		{"0.9", "0.10", -1},
		{"1.0", "0.10", 1},
		{"1.1", "1.1", 0},
	}
	for _, tc := range cases {
		a, _ := Parse(tc.a)
		b, _ := Parse(tc.b)
		if got := a.Compare(b); got != tc.want {
			t.Fatalf("Compare(%s, %s) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestVersion_Bumps(t *testing.T) {
	v := Version{Major: 0, Minor: 9}
	if got := v.NextMinor().String(); got != "0.10" {
		t.Fatalf("NextMinor = %s", got)
	}
	if got := v.NextMajor().String(); got != "1.0" {
		t.Fatalf("NextMajor = %s", got)
	}
	if v.EverApproved() {
		t.Fatalf("0.9 must not count as approved")
	}
	if !v.NextMajor().EverApproved() {
		t.Fatalf("1.0 must count as approved")
	}
}

func TestItemMetadata_CoversInstant(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	open := ItemMetadata{Start: start}
	if open.CoversInstant(start.Add(-time.Second)) {
		t.Fatalf("instant before start must not be covered")
	}
	if !open.CoversInstant(start) {
		t.Fatalf("start instant must be covered")
	}
	if !open.CoversInstant(start.Add(48 * time.Hour)) {
		t.Fatalf("open edge must cover any later instant")
	}

	closed := ItemMetadata{Start: start, End: &end}
	if !closed.CoversInstant(end.Add(-time.Second)) {
		t.Fatalf("instant inside range must be covered")
	}
	if closed.CoversInstant(end) {
		t.Fatalf("end instant is exclusive")
	}
}
