package study

import (
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

// EpochVO is one epoch selection of a study. Epochs form an ordered
// collection; Order is always contiguous 1..N inside the aggregate.
type EpochVO struct {
	SelectionUID string
	EpochTermUID string
	Order        int
	Description  string
	StartRule    string
	EndRule      string
	ColorHash    string
	StartDate    time.Time
	Author       string
}

// EpochsAR holds all epoch selections of one study and owns the order
// bookkeeping for add, update, remove and reorder.
type EpochsAR struct {
	StudyUID string
	Epochs   []EpochVO
}

// AddEpoch inserts the epoch. Order 0 appends at the end; any other
// value inserts at that position and shifts the tail.
func (ar *EpochsAR) AddEpoch(vo EpochVO) (EpochVO, error) {
	if vo.SelectionUID == "" {
		return EpochVO{}, apierr.Validation("epoch selection uid is required")
	}
	if vo.EpochTermUID == "" {
		return EpochVO{}, apierr.Validation("epoch %s requires an epoch term uid", vo.SelectionUID)
	}
	if _, err := ar.EpochByUID(vo.SelectionUID); err == nil {
		return EpochVO{}, apierr.BusinessLogic("epoch %s already selected in study %s", vo.SelectionUID, ar.StudyUID)
	}
	idx := len(ar.Epochs)
	if vo.Order >= 1 && vo.Order <= len(ar.Epochs) {
		idx = vo.Order - 1
	}
	ar.Epochs = append(ar.Epochs, EpochVO{})
	copy(ar.Epochs[idx+1:], ar.Epochs[idx:])
	ar.Epochs[idx] = vo
	ar.renumber()
	return ar.Epochs[idx], nil
}

// UpdateEpoch replaces the content of an existing selection, keeping
// its position unless the order field asks for a move.
func (ar *EpochsAR) UpdateEpoch(vo EpochVO) error {
	idx, err := ar.indexOf(vo.SelectionUID)
	if err != nil {
		return err
	}
	if vo.EpochTermUID == "" {
		return apierr.Validation("epoch %s requires an epoch term uid", vo.SelectionUID)
	}
	wantOrder := vo.Order
	vo.Order = ar.Epochs[idx].Order
	ar.Epochs[idx] = vo
	if wantOrder != 0 && wantOrder != vo.Order {
		return ar.ReorderEpoch(vo.SelectionUID, wantOrder)
	}
	return nil
}

// RemoveEpoch drops the selection and closes the order gap.
func (ar *EpochsAR) RemoveEpoch(selectionUID string) error {
	idx, err := ar.indexOf(selectionUID)
	if err != nil {
		return err
	}
	ar.Epochs = append(ar.Epochs[:idx], ar.Epochs[idx+1:]...)
	ar.renumber()
	return nil
}

// ReorderEpoch moves the selection to newOrder, shifting everything in
// between. Out-of-range targets are clamped to the collection bounds.
func (ar *EpochsAR) ReorderEpoch(selectionUID string, newOrder int) error {
	idx, err := ar.indexOf(selectionUID)
	if err != nil {
		return err
	}
	if newOrder < 1 {
		newOrder = 1
	}
	if newOrder > len(ar.Epochs) {
		newOrder = len(ar.Epochs)
	}
	vo := ar.Epochs[idx]
	ar.Epochs = append(ar.Epochs[:idx], ar.Epochs[idx+1:]...)
	rest := make([]EpochVO, 0, len(ar.Epochs)+1)
	rest = append(rest, ar.Epochs[:newOrder-1]...)
	rest = append(rest, vo)
	rest = append(rest, ar.Epochs[newOrder-1:]...)
	ar.Epochs = rest
	ar.renumber()
	return nil
}

func (ar *EpochsAR) EpochByUID(selectionUID string) (EpochVO, error) {
	idx, err := ar.indexOf(selectionUID)
	if err != nil {
		return EpochVO{}, err
	}
	return ar.Epochs[idx], nil
}

func (ar *EpochsAR) indexOf(selectionUID string) (int, error) {
	for i, vo := range ar.Epochs {
		if vo.SelectionUID == selectionUID {
			return i, nil
		}
	}
	return 0, apierr.NotFound("there is no selection %s in study %s", selectionUID, ar.StudyUID)
}

func (ar *EpochsAR) renumber() {
	for i := range ar.Epochs {
		ar.Epochs[i].Order = i + 1
	}
}

// ActivityGroupSelectionVO is one study activity group selection. It is
// referenced by activity selections, so editing it forces a re-link of
// those dependents onto the new instance.
type ActivityGroupSelectionVO struct {
	SelectionUID         string
	ActivityGroupUID     string
	ActivityGroupVersion string
	StartDate            time.Time
	Author               string
	AcceptedVersion      bool
}

// ActivityGroupSelectionsAR holds all activity group selections of one
// study. The collection is unordered.
type ActivityGroupSelectionsAR struct {
	StudyUID   string
	Selections []ActivityGroupSelectionVO
}

func (ar *ActivityGroupSelectionsAR) Add(vo ActivityGroupSelectionVO) error {
	if vo.SelectionUID == "" {
		return apierr.Validation("activity group selection uid is required")
	}
	if vo.ActivityGroupUID == "" {
		return apierr.Validation("selection %s requires an activity group uid", vo.SelectionUID)
	}
	for _, existing := range ar.Selections {
		if existing.SelectionUID == vo.SelectionUID {
			return apierr.BusinessLogic("selection %s already exists in study %s", vo.SelectionUID, ar.StudyUID)
		}
		if existing.ActivityGroupUID == vo.ActivityGroupUID {
			return apierr.Validation(
				"there is already a study selection to that activity group (%s)",
				vo.ActivityGroupUID,
			)
		}
	}
	ar.Selections = append(ar.Selections, vo)
	return nil
}

func (ar *ActivityGroupSelectionsAR) Update(vo ActivityGroupSelectionVO) error {
	for i, existing := range ar.Selections {
		if existing.SelectionUID == vo.SelectionUID {
			ar.Selections[i] = vo
			return nil
		}
	}
	return apierr.NotFound("there is no selection %s in study %s", vo.SelectionUID, ar.StudyUID)
}

func (ar *ActivityGroupSelectionsAR) Remove(selectionUID string) error {
	for i, existing := range ar.Selections {
		if existing.SelectionUID == selectionUID {
			ar.Selections = append(ar.Selections[:i], ar.Selections[i+1:]...)
			return nil
		}
	}
	return apierr.NotFound("there is no selection %s in study %s", selectionUID, ar.StudyUID)
}

func (ar *ActivityGroupSelectionsAR) ByUID(selectionUID string) (ActivityGroupSelectionVO, error) {
	for _, existing := range ar.Selections {
		if existing.SelectionUID == selectionUID {
			return existing, nil
		}
	}
	return ActivityGroupSelectionVO{}, apierr.NotFound("there is no selection %s in study %s", selectionUID, ar.StudyUID)
}

// ActivitySelectionVO is one activity selection. It points at a library
// activity at a pinned version and may reference a sibling activity
// group selection by its selection uid.
type ActivitySelectionVO struct {
	SelectionUID          string
	ActivityUID           string
	ActivityVersion       string
	ActivityName          string
	StudyActivityGroupUID string
	SoAGroupTermUID       string
	Order                 int
	ShowInProtocolFlow    bool
	StartDate             time.Time
	Author                string
	AcceptedVersion       bool
}

// ActivitySelectionsAR holds all activity selections of one study,
// ordered 1..N.
type ActivitySelectionsAR struct {
	StudyUID   string
	Selections []ActivitySelectionVO
}

func (ar *ActivitySelectionsAR) Add(vo ActivitySelectionVO) (ActivitySelectionVO, error) {
	if vo.SelectionUID == "" {
		return ActivitySelectionVO{}, apierr.Validation("activity selection uid is required")
	}
	if vo.ActivityUID == "" {
		return ActivitySelectionVO{}, apierr.Validation("selection %s requires an activity uid", vo.SelectionUID)
	}
	for _, existing := range ar.Selections {
		if existing.SelectionUID == vo.SelectionUID {
			return ActivitySelectionVO{}, apierr.BusinessLogic("selection %s already exists in study %s", vo.SelectionUID, ar.StudyUID)
		}
		if existing.ActivityUID == vo.ActivityUID && existing.StudyActivityGroupUID == vo.StudyActivityGroupUID {
			return ActivitySelectionVO{}, apierr.Validation(
				"there is already a study selection to that activity (%s) with the same groupings",
				vo.ActivityUID,
			)
		}
	}
	idx := len(ar.Selections)
	if vo.Order >= 1 && vo.Order <= len(ar.Selections) {
		idx = vo.Order - 1
	}
	ar.Selections = append(ar.Selections, ActivitySelectionVO{})
	copy(ar.Selections[idx+1:], ar.Selections[idx:])
	ar.Selections[idx] = vo
	ar.renumber()
	return ar.Selections[idx], nil
}

func (ar *ActivitySelectionsAR) Update(vo ActivitySelectionVO) error {
	idx := -1
	for i, existing := range ar.Selections {
		if existing.SelectionUID == vo.SelectionUID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apierr.NotFound("there is no selection %s in study %s", vo.SelectionUID, ar.StudyUID)
	}
	wantOrder := vo.Order
	vo.Order = ar.Selections[idx].Order
	ar.Selections[idx] = vo
	if wantOrder != 0 && wantOrder != vo.Order {
		return ar.Reorder(vo.SelectionUID, wantOrder)
	}
	return nil
}

func (ar *ActivitySelectionsAR) Remove(selectionUID string) error {
	for i, existing := range ar.Selections {
		if existing.SelectionUID == selectionUID {
			ar.Selections = append(ar.Selections[:i], ar.Selections[i+1:]...)
			ar.renumber()
			return nil
		}
	}
	return apierr.NotFound("there is no selection %s in study %s", selectionUID, ar.StudyUID)
}

func (ar *ActivitySelectionsAR) Reorder(selectionUID string, newOrder int) error {
	idx := -1
	for i, existing := range ar.Selections {
		if existing.SelectionUID == selectionUID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apierr.NotFound("there is no selection %s in study %s", selectionUID, ar.StudyUID)
	}
	if newOrder < 1 {
		newOrder = 1
	}
	if newOrder > len(ar.Selections) {
		newOrder = len(ar.Selections)
	}
	vo := ar.Selections[idx]
	ar.Selections = append(ar.Selections[:idx], ar.Selections[idx+1:]...)
	rest := make([]ActivitySelectionVO, 0, len(ar.Selections)+1)
	rest = append(rest, ar.Selections[:newOrder-1]...)
	rest = append(rest, vo)
	rest = append(rest, ar.Selections[newOrder-1:]...)
	ar.Selections = rest
	ar.renumber()
	return nil
}

func (ar *ActivitySelectionsAR) ByUID(selectionUID string) (ActivitySelectionVO, error) {
	for _, existing := range ar.Selections {
		if existing.SelectionUID == selectionUID {
			return existing, nil
		}
	}
	return ActivitySelectionVO{}, apierr.NotFound("there is no selection %s in study %s", selectionUID, ar.StudyUID)
}

func (ar *ActivitySelectionsAR) renumber() {
	for i := range ar.Selections {
		ar.Selections[i].Order = i + 1
	}
}
