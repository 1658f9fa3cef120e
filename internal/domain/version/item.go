package version

import (
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

// LibraryVO names the editability scope an entity belongs to. Entities
// in a non-editable library (CDISC imports and the like) reject every
// mutation.
type LibraryVO struct {
	Name       string
	IsEditable bool
}

// Item is the versioned half of an aggregate root: uid, owning library
// and the metadata of the currently loaded version. Concept types embed
// it next to their own value object. Transition methods mutate Meta in
// memory only; the repository persists the change atomically.
//
// PrevMeta keeps the metadata the item was loaded at. A zero PrevMeta
// marks a freshly created item; after a transition it carries the
// version the repository must still find open in the store, which is
// how concurrent edits are detected.
type Item struct {
	UID      string
	Library  LibraryVO
	Meta     ItemMetadata
	PrevMeta ItemMetadata
}

// IsNew reports whether the item has never been persisted.
func (it *Item) IsNew() bool { return it.PrevMeta.Status == "" }

// NewItem starts the lifecycle at Draft 0.1.
func NewItem(uid string, lib LibraryVO, author, changeDescription string, now time.Time) (*Item, error) {
	if !lib.IsEditable {
		return nil, apierr.BusinessLogic("the library %s does not allow to add new items", lib.Name)
	}
	if changeDescription == "" {
		changeDescription = "Initial version"
	}
	return &Item{
		UID:     uid,
		Library: lib,
		Meta: ItemMetadata{
			Status:            StatusDraft,
			Version:           Version{Major: 0, Minor: 1},
			Start:             now.UTC(),
			Author:            author,
			ChangeDescription: changeDescription,
		},
	}, nil
}

// Edit bumps the minor version of a Draft.
func (it *Item) Edit(author, changeDescription string, now time.Time) error {
	if !it.Library.IsEditable {
		return apierr.BusinessLogic("the library %s does not allow to edit draft versions", it.Library.Name)
	}
	if it.Meta.Status != StatusDraft {
		return apierr.BusinessLogic("the object %s is not in draft status", it.UID)
	}
	it.advance(StatusDraft, it.Meta.Version.NextMinor(), author, changeDescription, now)
	return nil
}

// Approve promotes a Draft to the next whole major version.
func (it *Item) Approve(author, changeDescription string, now time.Time) error {
	if !it.Library.IsEditable {
		return apierr.BusinessLogic("the library %s does not allow to approve drafts", it.Library.Name)
	}
	if it.Meta.Status != StatusDraft {
		return apierr.BusinessLogic("the object %s is not in draft status", it.UID)
	}
	if changeDescription == "" {
		changeDescription = "Approved version"
	}
	it.advance(StatusFinal, it.Meta.Version.NextMajor(), author, changeDescription, now)
	return nil
}

// NewVersion opens a fresh Draft off a Final, keeping the major line.
func (it *Item) NewVersion(author, changeDescription string, now time.Time) error {
	if !it.Library.IsEditable {
		return apierr.BusinessLogic("the library %s does not allow to create a new version", it.Library.Name)
	}
	if it.Meta.Status != StatusFinal {
		return apierr.BusinessLogic("the object %s is not in final status", it.UID)
	}
	if changeDescription == "" {
		changeDescription = "New draft created"
	}
	it.advance(StatusDraft, it.Meta.Version.NextMinor(), author, changeDescription, now)
	return nil
}

// Inactivate retires a Final. The version number is kept.
func (it *Item) Inactivate(author, changeDescription string, now time.Time) error {
	if !it.Library.IsEditable {
		return apierr.BusinessLogic("the library %s does not allow to inactivate the object", it.Library.Name)
	}
	if it.Meta.Status != StatusFinal {
		return apierr.BusinessLogic("the object %s is not in final status", it.UID)
	}
	if changeDescription == "" {
		changeDescription = "Inactivated version"
	}
	it.advance(StatusRetired, it.Meta.Version, author, changeDescription, now)
	return nil
}

// Reactivate returns a Retired entity to Final at the same version.
func (it *Item) Reactivate(author, changeDescription string, now time.Time) error {
	if !it.Library.IsEditable {
		return apierr.BusinessLogic("the library %s does not allow to reactivate the object", it.Library.Name)
	}
	if it.Meta.Status != StatusRetired {
		return apierr.BusinessLogic("the object %s is not in retired status", it.UID)
	}
	if changeDescription == "" {
		changeDescription = "Reactivated version"
	}
	it.advance(StatusFinal, it.Meta.Version, author, changeDescription, now)
	return nil
}

// CanSoftDelete checks the destructive-delete guards that the state
// machine alone can see. The repository adds the "referenced by a study
// selection" check before removing anything.
func (it *Item) CanSoftDelete() error {
	if !it.Library.IsEditable {
		return apierr.BusinessLogic("the library %s does not allow to delete the object", it.Library.Name)
	}
	if it.Meta.Status != StatusDraft {
		return apierr.BusinessLogic("the object %s is not in draft status", it.UID)
	}
	if it.Meta.Version.EverApproved() {
		return apierr.BusinessLogic("the object %s has been approved and cannot be deleted", it.UID)
	}
	return nil
}

func (it *Item) advance(status Status, v Version, author, changeDescription string, now time.Time) {
	it.PrevMeta = it.Meta
	it.Meta = ItemMetadata{
		Status:            status,
		Version:           v,
		Start:             now.UTC(),
		Author:            author,
		ChangeDescription: changeDescription,
	}
}

// MarkLoaded records that the current metadata reflects the persisted
// state. Repositories call it after reading an item from the store.
func (it *Item) MarkLoaded() { it.PrevMeta = it.Meta }
