package filtering

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

type row struct {
	UID     string
	Name    string
	Status  string
	Order   int
	Started time.Time
}

func rowFields(r row) map[string]any {
	return map[string]any{
		"uid":        r.UID,
		"name":       r.Name,
		"status":     r.Status,
		"order":      r.Order,
		"start_date": r.Started,
	}
}

func sampleRows() []row {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []row{
		{UID: "A_000001", Name: "Blood pressure", Status: "Final", Order: 2, Started: base},
		{UID: "A_000002", Name: "Heart rate", Status: "Draft", Order: 1, Started: base.AddDate(0, 1, 0)},
		{UID: "A_000003", Name: "Body temperature", Status: "Final", Order: 3, Started: base.AddDate(0, 2, 0)},
		{UID: "A_000004", Name: "Respiration rate", Status: "Retired", Order: 4, Started: base.AddDate(0, 3, 0)},
	}
}

func allPage() Page { return Page{Number: 1, Size: 0, WithTotal: true} }

func TestApply_EqFilter(t *testing.T) {
	got, total, err := Apply(sampleRows(), rowFields, Query{
		Filters: Filters{"status": {Values: []any{"Final"}}},
		Page:    allPage(),
	}, 1000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Fatalf("expected 2 finals, got %d (total %d)", len(got), total)
	}
}

func TestApply_ContainsIsCaseInsensitive(t *testing.T) {
	got, _, err := Apply(sampleRows(), rowFields, Query{
		Filters: Filters{"name": {Values: []any{"RATE"}, Op: OpContains}},
		Page:    allPage(),
	}, 1000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rate rows, got %+v", got)
	}
}

func TestApply_WildcardSearchesStringFields(t *testing.T) {
	got, _, err := Apply(sampleRows(), rowFields, Query{
		Filters: Filters{WildcardField: {Values: []any{"temperature"}, Op: OpContains}},
		Page:    allPage(),
	}, 1000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != 1 || got[0].UID != "A_000003" {
		t.Fatalf("expected the temperature row, got %+v", got)
	}
}

func TestApply_OrCombination(t *testing.T) {
	got, _, err := Apply(sampleRows(), rowFields, Query{
		Filters: Filters{
			"status": {Values: []any{"Retired"}},
			"name":   {Values: []any{"Heart"}, Op: OpContains},
		},
		Operator: LogicalOr,
		Page:     allPage(),
	}, 1000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows from OR, got %+v", got)
	}
}

func TestApply_RangeOnDates(t *testing.T) {
	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	got, _, err := Apply(sampleRows(), rowFields, Query{
		Filters: Filters{"start_date": {Values: []any{from}, Op: OpGe}},
		Page:    allPage(),
	}, 1000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows on/after Feb, got %d", len(got))
	}
}

func TestApply_MultiKeySortStable(t *testing.T) {
	got, _, err := Apply(sampleRows(), rowFields, Query{
		Sort: Sort{{Field: "status", Ascending: true}, {Field: "order", Ascending: false}},
		Page: allPage(),
	}, 1000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Draft < Final < Retired; within Final, order 3 before 2.
	want := []string{"A_000002", "A_000003", "A_000001", "A_000004"}
	for i, w := range want {
		if got[i].UID != w {
			t.Fatalf("sort order wrong at %d: got %s want %s (%+v)", i, got[i].UID, w, got)
		}
	}
}

func TestApply_Pagination(t *testing.T) {
	got, total, err := Apply(sampleRows(), rowFields, Query{
		Sort: Sort{{Field: "order", Ascending: true}},
		Page: Page{Number: 2, Size: 2, WithTotal: true},
	}, 1000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected total 4 got %d", total)
	}
	if len(got) != 2 || got[0].Order != 3 || got[1].Order != 4 {
		t.Fatalf("expected second page rows 3 and 4, got %+v", got)
	}

	empty, _, err := Apply(sampleRows(), rowFields, Query{
		Page: Page{Number: 99, Size: 2},
	}, 1000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %+v", empty)
	}
}

func TestApply_TotalOnlyWhenRequested(t *testing.T) {
	_, total, err := Apply(sampleRows(), rowFields, Query{
		Page: Page{Number: 1, Size: 2, WithTotal: false},
	}, 1000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if total != 0 {
		t.Fatalf("total must stay 0 when not requested, got %d", total)
	}
}

func TestApply_RejectsBadPagination(t *testing.T) {
	_, _, err := Apply(sampleRows(), rowFields, Query{Page: Page{Number: 0, Size: 10}}, 1000)
	if !apierr.IsValidation(err) {
		t.Fatalf("expected validation error for page_number 0, got %v", err)
	}
	_, _, err = Apply(sampleRows(), rowFields, Query{Page: Page{Number: 1, Size: 5000}}, 1000)
	if !apierr.IsValidation(err) {
		t.Fatalf("expected validation error for oversized page, got %v", err)
	}
}

func TestSort_UnmarshalPreservesOrder(t *testing.T) {
	var s Sort
	if err := json.Unmarshal([]byte(`{"status": true, "order": false, "name": true}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(s) != 3 || s[0].Field != "status" || s[1].Field != "order" || s[2].Field != "name" {
		t.Fatalf("key order lost: %+v", s)
	}
	if s[1].Ascending {
		t.Fatalf("order key must be descending: %+v", s)
	}
}

func TestDistinctValues(t *testing.T) {
	got := DistinctValues(sampleRows(), rowFields, "status", "", 0)
	if len(got) != 3 {
		t.Fatalf("expected 3 distinct statuses, got %v", got)
	}
	if got[0] != "Draft" || got[1] != "Final" || got[2] != "Retired" {
		t.Fatalf("expected sorted statuses, got %v", got)
	}

	limited := DistinctValues(sampleRows(), rowFields, "name", "rate", 1)
	if len(limited) != 1 {
		t.Fatalf("expected limit applied, got %v", limited)
	}
}
