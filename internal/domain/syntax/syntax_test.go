package syntax

import (
	"testing"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

var testLib = version.LibraryVO{Name: "Sponsor", IsEditable: true}

func TestExtractParameterNames(t *testing.T) {
	got := ExtractParameterNames("Time from [Visit] to [Event] in [Unit]")
	want := []string{"Visit", "Event", "Unit"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	if ExtractParameterNames("no parameters here") != nil {
		t.Fatalf("plain text must yield no parameters")
	}
}

func TestTimeframeTemplate_PlainTextEditAfterApprove(t *testing.T) {
	ar, err := NewTimeframeTemplate("TimeframeTemplate_000001", testLib,
		TimeframeTemplateVO{Name: "Time from [Visit] to [Event]"}, "TST", time.Now())
	if err != nil {
		t.Fatalf("NewTimeframeTemplate: %v", err)
	}
	if err := ar.Approve("TST", "", time.Now()); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := ar.NewVersion("TST", "", time.Now()); err != nil {
		t.Fatalf("NewVersion: %v", err)
	}

	// Same parameter set, different wording: allowed.
	err = ar.EditDraft(TimeframeTemplateVO{Name: "Interval between [Visit] and [Event]"}, "TST", "rewording", time.Now())
	if err != nil {
		t.Fatalf("plain text edit: %v", err)
	}
	if got := ar.Meta.Version.String(); got != "1.2" {
		t.Fatalf("expected 1.2 got %s", got)
	}
}

func TestTimeframeTemplate_ParameterEditAfterApproveFails(t *testing.T) {
	ar, err := NewTimeframeTemplate("TimeframeTemplate_000001", testLib,
		TimeframeTemplateVO{Name: "Time from [Visit] to [Event]"}, "TST", time.Now())
	if err != nil {
		t.Fatalf("NewTimeframeTemplate: %v", err)
	}
	if err := ar.Approve("TST", "", time.Now()); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := ar.NewVersion("TST", "", time.Now()); err != nil {
		t.Fatalf("NewVersion: %v", err)
	}

	err = ar.EditDraft(TimeframeTemplateVO{Name: "Time from [Visit] to [Assessment]"}, "TST", "param swap", time.Now())
	if !apierr.IsVersioning(err) {
		t.Fatalf("expected versioning error, got %v", err)
	}
	if got := ar.Meta.Version.String(); got != "1.1" {
		t.Fatalf("failed edit must not advance version, got %s", got)
	}
}

func TestTimeframeTemplate_ParameterEditBeforeApproveAllowed(t *testing.T) {
	ar, err := NewTimeframeTemplate("TimeframeTemplate_000001", testLib,
		TimeframeTemplateVO{Name: "Time from [Visit] to [Event]"}, "TST", time.Now())
	if err != nil {
		t.Fatalf("NewTimeframeTemplate: %v", err)
	}
	err = ar.EditDraft(TimeframeTemplateVO{Name: "Time from [Visit] to [Assessment]"}, "TST", "param swap", time.Now())
	if err != nil {
		t.Fatalf("pre-approval parameter edit must be allowed: %v", err)
	}
}

func TestTimeframe_NameRendersParameterValues(t *testing.T) {
	vo := TimeframeVO{
		TemplateUID:  "TimeframeTemplate_000001",
		TemplateName: "Time from [Visit] to [Event]",
		ParameterTerms: []ParameterTermVO{
			{Position: 1, Name: "Visit", Value: "Baseline"},
			{Position: 2, Name: "Event", Value: "Week 4"},
		},
	}
	if err := vo.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := vo.Name(); got != "Time from Baseline to Week 4" {
		t.Fatalf("rendered name = %q", got)
	}
}

func TestTimeframe_ValidateChecksTermCount(t *testing.T) {
	vo := TimeframeVO{
		TemplateUID:    "TimeframeTemplate_000001",
		TemplateName:   "Time from [Visit] to [Event]",
		ParameterTerms: []ParameterTermVO{{Position: 1, Name: "Visit", Value: "Baseline"}},
	}
	if err := vo.Validate(); !apierr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
