package repos

import (
	"context"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/cache"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/study"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

// StudyEpochRepo persists the ordered epoch selections of a study.
// Each epoch pins a controlled terminology term; the selection instance
// links to the term value that was Final when the selection was made,
// and snapshot reads re-resolve the term as of the snapshot instant.
type StudyEpochRepo struct {
	store graphstore.Store
	cache cache.ItemCache
	log   *logger.Logger
}

func NewStudyEpochRepo(store graphstore.Store, c cache.ItemCache, log *logger.Logger) *StudyEpochRepo {
	if c == nil {
		c = cache.Nop{}
	}
	return &StudyEpochRepo{store: store, cache: c, log: log.With("repo", LabelStudyEpoch)}
}

// GenerateUID reserves the next epoch selection identifier.
func (r *StudyEpochRepo) GenerateUID(ctx context.Context) (string, error) {
	var uid string
	err := r.store.Write(ctx, func(tx graphstore.Tx) error {
		n, err := tx.NextCounter(LabelStudyEpoch)
		if err != nil {
			return err
		}
		uid = graphstore.FormatUID(LabelStudyEpoch, n)
		return nil
	})
	return uid, err
}

// Load returns the current epoch selections of the study's open draft.
func (r *StudyEpochRepo) Load(ctx context.Context, studyUID string) (*study.EpochsAR, error) {
	var ar *study.EpochsAR
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := findStudyRoot(tx, studyUID)
		if err != nil {
			return err
		}
		nodes, err := openInstances(tx, root.ID, epochSpec)
		if err != nil {
			return err
		}
		ar = &study.EpochsAR{StudyUID: studyUID, Epochs: make([]study.EpochVO, 0, len(nodes))}
		for _, node := range nodes {
			ar.Epochs = append(ar.Epochs, epochVOFromNode(node))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ar, nil
}

// Save reconciles the aggregate against the stored instances in one
// transaction. Reordering N epochs therefore appends N edit actions,
// one per rewritten instance.
func (r *StudyEpochRepo) Save(ctx context.Context, ar *study.EpochsAR, author string, now time.Time) error {
	err := r.store.Write(ctx, func(tx graphstore.Tx) error {
		desired := make([]instanceState, 0, len(ar.Epochs))
		for _, vo := range ar.Epochs {
			valueID, _, err := resolveConceptValue(tx, "CTTermRoot", vo.EpochTermUID, "")
			if err != nil {
				return err
			}
			desired = append(desired, instanceState{
				SelectionUID: vo.SelectionUID,
				Props: graphstore.Props{
					"order":          vo.Order,
					"epoch_term_uid": vo.EpochTermUID,
					"description":    vo.Description,
					"start_rule":     vo.StartRule,
					"end_rule":       vo.EndRule,
					"color_hash":     vo.ColorHash,
				},
				Links: []instanceLink{{RelType: RelHasEpochTerm, ToID: valueID}},
			})
		}
		return saveSelections(tx, ar.StudyUID, epochSpec, desired, author, now)
	})
	if err != nil {
		return err
	}
	r.cache.Invalidate(ctx, studyCacheKey(ar.StudyUID))
	return nil
}

// EpochSnapshot is one epoch selection with its term resolved as of the
// snapshot instant.
type EpochSnapshot struct {
	study.EpochVO
	TermName    string
	TermVersion string
}

// SnapshotAt lists the epoch selections in effect at the instant, or
// the current ones when at is nil. Terms resolve transitively: the
// Final term version as of the same instant, never a newer one.
func (r *StudyEpochRepo) SnapshotAt(ctx context.Context, studyUID string, at *time.Time) ([]EpochSnapshot, error) {
	var out []EpochSnapshot
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := findStudyRoot(tx, studyUID)
		if err != nil {
			return err
		}
		var nodes []*graphstore.Node
		if at == nil {
			nodes, err = openInstances(tx, root.ID, epochSpec)
		} else {
			nodes, err = instancesAt(tx, root.ID, epochSpec, *at)
		}
		if err != nil {
			return err
		}
		out = make([]EpochSnapshot, 0, len(nodes))
		for _, node := range nodes {
			snap := EpochSnapshot{EpochVO: epochVOFromNode(node)}
			linked, err := linkedValueID(tx, node.ID, RelHasEpochTerm)
			if err != nil {
				return err
			}
			if linked != "" {
				value, ver, _, err := conceptAsOf(tx, linked, at)
				if err != nil {
					return err
				}
				snap.TermName = value.Props.String("name")
				snap.TermVersion = ver
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func epochVOFromNode(node *graphstore.Node) study.EpochVO {
	start, _ := node.Props.Time("start_date")
	return study.EpochVO{
		SelectionUID: node.Props.String("selection_uid"),
		EpochTermUID: node.Props.String("epoch_term_uid"),
		Order:        int(node.Props.Int64("order")),
		Description:  node.Props.String("description"),
		StartRule:    node.Props.String("start_rule"),
		EndRule:      node.Props.String("end_rule"),
		ColorHash:    node.Props.String("color_hash"),
		StartDate:    start,
		Author:       node.Props.String("user_initials"),
	}
}
