// Package syntax holds the syntax template aggregates and their
// instantiations. Templates carry bracketed parameters in their text;
// once a template has been approved the parameter set is frozen and
// only the plain text may change.
package syntax

import (
	"regexp"
	"strings"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

var paramRe = regexp.MustCompile(`\[([^\[\]]+)\]`)

// ExtractParameterNames lists the bracketed parameter names of a
// template text in order of appearance, e.g.
// "Time from [Visit] to [Event]" yields ["Visit", "Event"].
func ExtractParameterNames(template string) []string {
	matches := paramRe.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// TimeframeTemplateVO is the content snapshot of one template version.
type TimeframeTemplateVO struct {
	Name         string
	GuidanceText string
}

func (v TimeframeTemplateVO) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return apierr.Validation("timeframe template name is required")
	}
	return nil
}

func (v TimeframeTemplateVO) Equals(o TimeframeTemplateVO) bool { return v == o }

// ParameterNames derives the frozen parameter set from the text.
func (v TimeframeTemplateVO) ParameterNames() []string {
	return ExtractParameterNames(v.Name)
}

type TimeframeTemplateAR struct {
	version.Item
	Value TimeframeTemplateVO
}

func NewTimeframeTemplate(uid string, lib version.LibraryVO, vo TimeframeTemplateVO, author string, now time.Time) (*TimeframeTemplateAR, error) {
	if err := vo.Validate(); err != nil {
		return nil, err
	}
	item, err := version.NewItem(uid, lib, author, "", now)
	if err != nil {
		return nil, err
	}
	return &TimeframeTemplateAR{Item: *item, Value: vo}, nil
}

// EditDraft replaces the template text. After the first approval the
// bracketed parameter set may not change; such an attempt fails with a
// versioning error, distinguishable from plain guard failures.
func (ar *TimeframeTemplateAR) EditDraft(vo TimeframeTemplateVO, author, changeDescription string, now time.Time) error {
	if err := vo.Validate(); err != nil {
		return err
	}
	if ar.Value.Equals(vo) {
		return apierr.BusinessLogic("nothing changed on %s, edit rejected", ar.UID)
	}
	if ar.Meta.Version.EverApproved() && !sameParams(ar.Value.ParameterNames(), vo.ParameterNames()) {
		return apierr.Versioning(
			"the template parameters cannot be modified after being a final version, only the plain text can be modified",
		)
	}
	if err := ar.Edit(author, changeDescription, now); err != nil {
		return err
	}
	ar.Value = vo
	return nil
}

// ParameterTermVO is one value plugged into a template parameter slot.
type ParameterTermVO struct {
	Position int
	Name     string
	Value    string
}

// TimeframeVO is the content snapshot of one timeframe instance
// version: a template reference plus the terms filling its slots.
type TimeframeVO struct {
	TemplateUID    string
	TemplateName   string
	ParameterTerms []ParameterTermVO
}

func (v TimeframeVO) Validate() error {
	if strings.TrimSpace(v.TemplateUID) == "" {
		return apierr.Validation("timeframe requires a template uid")
	}
	want := len(ExtractParameterNames(v.TemplateName))
	if want != len(v.ParameterTerms) {
		return apierr.Validation(
			"timeframe based on %s needs %d parameter terms, got %d",
			v.TemplateUID, want, len(v.ParameterTerms),
		)
	}
	return nil
}

func (v TimeframeVO) Equals(o TimeframeVO) bool {
	if v.TemplateUID != o.TemplateUID || v.TemplateName != o.TemplateName {
		return false
	}
	if len(v.ParameterTerms) != len(o.ParameterTerms) {
		return false
	}
	for i := range v.ParameterTerms {
		if v.ParameterTerms[i] != o.ParameterTerms[i] {
			return false
		}
	}
	return true
}

// Name renders the instance text by substituting each parameter slot
// with its term value, left to right.
func (v TimeframeVO) Name() string {
	i := 0
	return paramRe.ReplaceAllStringFunc(v.TemplateName, func(string) string {
		if i >= len(v.ParameterTerms) {
			return ""
		}
		val := v.ParameterTerms[i].Value
		i++
		return val
	})
}

type TimeframeAR struct {
	version.Item
	Value TimeframeVO
}

func NewTimeframe(uid string, lib version.LibraryVO, vo TimeframeVO, author string, now time.Time) (*TimeframeAR, error) {
	if err := vo.Validate(); err != nil {
		return nil, err
	}
	item, err := version.NewItem(uid, lib, author, "", now)
	if err != nil {
		return nil, err
	}
	return &TimeframeAR{Item: *item, Value: vo}, nil
}

func (ar *TimeframeAR) EditDraft(vo TimeframeVO, author, changeDescription string, now time.Time) error {
	if err := vo.Validate(); err != nil {
		return err
	}
	if ar.Value.Equals(vo) {
		return apierr.BusinessLogic("nothing changed on %s, edit rejected", ar.UID)
	}
	if err := ar.Edit(author, changeDescription, now); err != nil {
		return err
	}
	ar.Value = vo
	return nil
}

func sameParams(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
