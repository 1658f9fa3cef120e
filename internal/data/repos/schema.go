// Package repos translates between domain aggregates and the property
// graph: root and value nodes, dated HAS_VERSION relationships, latest
// pointers, and the append-only audit trail of action nodes. All writes
// run inside one store transaction and invalidate the item cache before
// returning.
package repos

// Graph vocabulary. Reporting tools query these names ad hoc, so they
// are part of the persisted contract and must not change.
const (
	LabelLibrary = "Library"

	RelHasVersion    = "HAS_VERSION"
	RelLatest        = "LATEST"
	RelLatestDraft   = "LATEST_DRAFT"
	RelLatestFinal   = "LATEST_FINAL"
	RelLatestRetired = "LATEST_RETIRED"

	RelContainsConcept = "CONTAINS_CONCEPT"
	RelAuditTrail      = "AUDIT_TRAIL"
	RelBefore          = "BEFORE"
	RelAfter           = "AFTER"
)

// Action node labels. Every mutation appends exactly one action node;
// the label classifies it, the operation property names the transition.
const (
	ActionCreate = "Create"
	ActionEdit   = "Edit"
	ActionDelete = "Delete"
)

const (
	OpCreate     = "Create"
	OpEdit       = "Edit"
	OpApprove    = "Approve"
	OpNewVersion = "NewVersion"
	OpInactivate = "Inactivate"
	OpReactivate = "Reactivate"
	OpDelete     = "Delete"
)

// Study-scoped vocabulary. Study drafts and snapshots ride the same
// HAS_VERSION machinery; selection instances hang off the value node
// current when they were made and identify themselves by a stable
// selection_uid property rather than a uid.
const (
	LabelStudyRoot  = "StudyRoot"
	LabelStudyValue = "StudyValue"

	RelLatestLocked   = "LATEST_LOCKED"
	RelLatestReleased = "LATEST_RELEASED"

	LabelStudyEpoch         = "StudyEpoch"
	LabelStudyActivity      = "StudyActivity"
	LabelStudyActivityGroup = "StudyActivityGroup"

	RelHasStudyEpoch         = "HAS_STUDY_EPOCH"
	RelHasStudyActivity      = "HAS_STUDY_ACTIVITY"
	RelHasStudyActivityGroup = "HAS_STUDY_ACTIVITY_GROUP"

	RelHasEpochTerm          = "HAS_EPOCH"
	RelHasSelectedActivity   = "HAS_SELECTED_ACTIVITY"
	RelHasSelectedGroup      = "HAS_SELECTED_ACTIVITY_GROUP"
	RelHasSoAGroup           = "HAS_FLOWCHART_GROUP"
	RelActivityHasGroupLevel = "STUDY_ACTIVITY_HAS_STUDY_ACTIVITY_GROUP"
)

// SchemaLabels lists every node label carrying a uid property, used for
// uniqueness constraint setup on the graph backend. Selection instance
// labels are absent: successive instances of one selection share its
// selection_uid.
var SchemaLabels = []string{
	"ActivityRoot", "ActivityGroupRoot", "ActivitySubGroupRoot", "CTTermRoot",
	"TimeframeTemplateRoot", "TimeframeRoot",
	LabelStudyRoot,
}
