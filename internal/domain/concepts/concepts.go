// Package concepts holds the versioned library concept aggregates:
// activities, their group hierarchy, and controlled terminology terms.
// Each aggregate pairs an immutable value object with the shared
// lifecycle state machine from the version package.
package concepts

import (
	"strings"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

// ActivityGroupVO is the content snapshot of one activity group version.
type ActivityGroupVO struct {
	Name             string
	NameSentenceCase string
	Definition       string
	Abbreviation     string
}

func (v ActivityGroupVO) Validate() error {
	return validateNamePair("activity group", v.Name, v.NameSentenceCase)
}

func (v ActivityGroupVO) Equals(o ActivityGroupVO) bool { return v == o }

type ActivityGroupAR struct {
	version.Item
	Value ActivityGroupVO
}

func NewActivityGroup(uid string, lib version.LibraryVO, vo ActivityGroupVO, author string, now time.Time) (*ActivityGroupAR, error) {
	if err := vo.Validate(); err != nil {
		return nil, err
	}
	item, err := version.NewItem(uid, lib, author, "", now)
	if err != nil {
		return nil, err
	}
	return &ActivityGroupAR{Item: *item, Value: vo}, nil
}

// EditDraft replaces the value and bumps the minor version. An edit
// with unchanged content is rejected before the state machine runs.
func (ar *ActivityGroupAR) EditDraft(vo ActivityGroupVO, author, changeDescription string, now time.Time) error {
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

// ActivitySubGroupVO snapshots one activity subgroup version. A
// subgroup lives under one or more activity groups.
type ActivitySubGroupVO struct {
	Name             string
	NameSentenceCase string
	Definition       string
	Abbreviation     string
	GroupUIDs        []string
}

func (v ActivitySubGroupVO) Validate() error {
	if err := validateNamePair("activity subgroup", v.Name, v.NameSentenceCase); err != nil {
		return err
	}
	if len(v.GroupUIDs) == 0 {
		return apierr.Validation("activity subgroup requires at least one activity group")
	}
	return nil
}

func (v ActivitySubGroupVO) Equals(o ActivitySubGroupVO) bool {
	return v.Name == o.Name &&
		v.NameSentenceCase == o.NameSentenceCase &&
		v.Definition == o.Definition &&
		v.Abbreviation == o.Abbreviation &&
		sameStrings(v.GroupUIDs, o.GroupUIDs)
}

type ActivitySubGroupAR struct {
	version.Item
	Value ActivitySubGroupVO
}

func NewActivitySubGroup(uid string, lib version.LibraryVO, vo ActivitySubGroupVO, author string, now time.Time) (*ActivitySubGroupAR, error) {
	if err := vo.Validate(); err != nil {
		return nil, err
	}
	item, err := version.NewItem(uid, lib, author, "", now)
	if err != nil {
		return nil, err
	}
	return &ActivitySubGroupAR{Item: *item, Value: vo}, nil
}

func (ar *ActivitySubGroupAR) EditDraft(vo ActivitySubGroupVO, author, changeDescription string, now time.Time) error {
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

// ActivityVO snapshots one activity version. Activities hang off
// subgroups and are the leaves selected into studies.
type ActivityVO struct {
	Name             string
	NameSentenceCase string
	Definition       string
	Abbreviation     string
	SubGroupUIDs     []string
	IsDataCollected  bool
}

func (v ActivityVO) Validate() error {
	return validateNamePair("activity", v.Name, v.NameSentenceCase)
}

func (v ActivityVO) Equals(o ActivityVO) bool {
	return v.Name == o.Name &&
		v.NameSentenceCase == o.NameSentenceCase &&
		v.Definition == o.Definition &&
		v.Abbreviation == o.Abbreviation &&
		v.IsDataCollected == o.IsDataCollected &&
		sameStrings(v.SubGroupUIDs, o.SubGroupUIDs)
}

type ActivityAR struct {
	version.Item
	Value ActivityVO
}

func NewActivity(uid string, lib version.LibraryVO, vo ActivityVO, author string, now time.Time) (*ActivityAR, error) {
	if err := vo.Validate(); err != nil {
		return nil, err
	}
	item, err := version.NewItem(uid, lib, author, "", now)
	if err != nil {
		return nil, err
	}
	return &ActivityAR{Item: *item, Value: vo}, nil
}

func (ar *ActivityAR) EditDraft(vo ActivityVO, author, changeDescription string, now time.Time) error {
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

// CTTermVO snapshots one controlled terminology term version. Terms
// classify study objects (epoch types, SoA groups) and are referenced
// by uid from selections.
type CTTermVO struct {
	CatalogueName string
	CodelistUID   string
	Code          string
	Name          string
	Definition    string
}

func (v CTTermVO) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return apierr.Validation("ct term name is required")
	}
	if strings.TrimSpace(v.CodelistUID) == "" {
		return apierr.Validation("ct term %s requires a codelist uid", v.Name)
	}
	return nil
}

func (v CTTermVO) Equals(o CTTermVO) bool { return v == o }

type CTTermAR struct {
	version.Item
	Value CTTermVO
}

func NewCTTerm(uid string, lib version.LibraryVO, vo CTTermVO, author string, now time.Time) (*CTTermAR, error) {
	if err := vo.Validate(); err != nil {
		return nil, err
	}
	item, err := version.NewItem(uid, lib, author, "", now)
	if err != nil {
		return nil, err
	}
	return &CTTermAR{Item: *item, Value: vo}, nil
}

func (ar *CTTermAR) EditDraft(vo CTTermVO, author, changeDescription string, now time.Time) error {
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

func validateNamePair(kind, name, sentenceCase string) error {
	if strings.TrimSpace(name) == "" {
		return apierr.Validation("%s name is required", kind)
	}
	if sentenceCase != "" && !strings.EqualFold(sentenceCase, name) {
		return apierr.Validation(
			"%s name_sentence_case %q must match name %q ignoring letter case",
			kind, sentenceCase, name,
		)
	}
	return nil
}

func sameStrings(a, b []string) bool {
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
