// Package version implements the lifecycle state machine shared by every
// versioned library entity: Draft, Final and Retired states, two-part
// version numbers, and the per-version metadata recorded on each dated
// relationship in the graph.
package version

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

type Status string

const (
	StatusDraft   Status = "Draft"
	StatusFinal   Status = "Final"
	StatusRetired Status = "Retired"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusFinal, StatusRetired:
		return Status(s), nil
	}
	return "", apierr.Validation("unknown status %q", s)
}

// Version is the two-part number carried on every HAS_VERSION edge.
// Minor counts draft edits within a major line, so "0.10" follows "0.9".
type Version struct {
	Major int
	Minor int
}

func Parse(s string) (Version, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ".", 2)
	if len(parts) != 2 {
		return Version{}, apierr.Validation("malformed version %q, expected <major>.<minor>", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return Version{}, apierr.Validation("malformed version %q, expected <major>.<minor>", s)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return Version{}, apierr.Validation("malformed version %q, expected <major>.<minor>", s)
	}
	return Version{Major: major, Minor: minor}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare orders versions by major then minor.
func (v Version) Compare(o Version) int {
	if v.Major != o.Major {
		if v.Major < o.Major {
			return -1
		}
		return 1
	}
	switch {
	case v.Minor < o.Minor:
		return -1
	case v.Minor > o.Minor:
		return 1
	}
	return 0
}

func (v Version) NextMinor() Version { return Version{Major: v.Major, Minor: v.Minor + 1} }
func (v Version) NextMajor() Version { return Version{Major: v.Major + 1, Minor: 0} }

// EverApproved reports whether the entity has ever reached Final. The
// first Approve produces 1.0, so any major >= 1 implies an approval.
func (v Version) EverApproved() bool { return v.Major >= 1 }

// ItemMetadata mirrors one HAS_VERSION edge: the lifecycle coordinates
// of an entity value between Start and End. A nil End marks the edge as
// currently in effect.
type ItemMetadata struct {
	Status            Status
	Version           Version
	Start             time.Time
	End               *time.Time
	Author            string
	ChangeDescription string
}

func (m ItemMetadata) IsCurrent() bool { return m.End == nil }

// CoversInstant reports whether the edge was in effect at t.
func (m ItemMetadata) CoversInstant(t time.Time) bool {
	if t.Before(m.Start) {
		return false
	}
	if m.End == nil {
		return true
	}
	return t.Before(*m.End)
}
