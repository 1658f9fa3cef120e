// Package study models the study definition aggregate and the selection
// collections composing a study value snapshot. A study is Draft while
// editable; locking freezes it under a numbered version and releasing
// records a named snapshot without leaving Draft.
package study

import (
	"strings"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusLocked   Status = "LOCKED"
	StatusReleased Status = "RELEASED"
)

// IdentificationVO carries the registry identity of a study.
type IdentificationVO struct {
	StudyNumber   string
	StudyAcronym  string
	ProjectNumber string
}

func (v IdentificationVO) Validate() error {
	if strings.TrimSpace(v.StudyNumber) == "" && strings.TrimSpace(v.StudyAcronym) == "" {
		return apierr.Validation("either study number or study acronym must be given")
	}
	return nil
}

// StudyID renders the project-qualified identifier, e.g. "CDISC DEV-0".
func (v IdentificationVO) StudyID() string {
	if v.ProjectNumber == "" || v.StudyNumber == "" {
		return ""
	}
	return v.ProjectNumber + "-" + v.StudyNumber
}

// DescriptionVO carries the registry title fields.
type DescriptionVO struct {
	StudyTitle      string
	StudyShortTitle string
}

// DefinitionAR is the aggregate root for one study. LockedVersionNumber
// counts lock snapshots; it never decreases, including across unlocks.
//
// PrevStatus and PrevLockedVersion hold the state the aggregate was
// loaded at. The repository re-checks them against the open version
// relationship inside the write transaction, so a concurrent lock or
// edit surfaces as a conflict instead of forking the study chain.
type DefinitionAR struct {
	UID                 string
	Identification      IdentificationVO
	Description         DescriptionVO
	Status              Status
	LockedVersionNumber int
	VersionAuthor       string
	VersionStart        time.Time

	PrevStatus        Status
	PrevLockedVersion int
}

func NewDefinition(uid string, ident IdentificationVO, author string, now time.Time) (*DefinitionAR, error) {
	if err := ident.Validate(); err != nil {
		return nil, err
	}
	return &DefinitionAR{
		UID:            uid,
		Identification: ident,
		Status:         StatusDraft,
		VersionAuthor:  author,
		VersionStart:   now.UTC(),
	}, nil
}

// EditMetadata replaces identification and description on a Draft study.
func (ar *DefinitionAR) EditMetadata(ident IdentificationVO, desc DescriptionVO, author string, now time.Time) error {
	if err := ar.requireDraft(); err != nil {
		return err
	}
	if err := ident.Validate(); err != nil {
		return err
	}
	ar.Identification = ident
	ar.Description = desc
	ar.VersionAuthor = author
	ar.VersionStart = now.UTC()
	return nil
}

// Lock freezes the study under the next locked version number. A study
// must carry a title and a study number before it can be locked.
func (ar *DefinitionAR) Lock(author string, now time.Time) error {
	if err := ar.requireDraft(); err != nil {
		return err
	}
	if strings.TrimSpace(ar.Description.StudyTitle) == "" {
		return apierr.BusinessLogic("study %s has no title and cannot be locked", ar.UID)
	}
	if strings.TrimSpace(ar.Identification.StudyNumber) == "" {
		return apierr.BusinessLogic("study %s has no study number and cannot be locked", ar.UID)
	}
	ar.Status = StatusLocked
	ar.LockedVersionNumber++
	ar.VersionAuthor = author
	ar.VersionStart = now.UTC()
	return nil
}

// Unlock returns a locked study to Draft.
func (ar *DefinitionAR) Unlock(author string, now time.Time) error {
	if ar.Status != StatusLocked {
		return apierr.BusinessLogic("study %s is not locked", ar.UID)
	}
	ar.Status = StatusDraft
	ar.VersionAuthor = author
	ar.VersionStart = now.UTC()
	return nil
}

// Release marks the current Draft content as a released snapshot. The
// study stays editable; the repository records the snapshot.
func (ar *DefinitionAR) Release(author string, now time.Time) error {
	if err := ar.requireDraft(); err != nil {
		return err
	}
	ar.VersionAuthor = author
	ar.VersionStart = now.UTC()
	return nil
}

func (ar *DefinitionAR) requireDraft() error {
	if ar.Status != StatusDraft {
		return apierr.BusinessLogic("study %s is locked and cannot be modified", ar.UID)
	}
	return nil
}

// IsNew reports whether the study has never been persisted.
func (ar *DefinitionAR) IsNew() bool { return ar.PrevStatus == "" }

// MarkLoaded records that the current state reflects the persisted
// state. The repository calls it after reading or writing.
func (ar *DefinitionAR) MarkLoaded() {
	ar.PrevStatus = ar.Status
	ar.PrevLockedVersion = ar.LockedVersionNumber
}
