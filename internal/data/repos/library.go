package repos

import (
	"context"
	"sort"

	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

// LibraryRepo manages the Library nodes every versioned aggregate is
// contained in. Libraries are not versioned themselves.
type LibraryRepo struct {
	store graphstore.Store
	log   *logger.Logger
}

func NewLibraryRepo(store graphstore.Store, log *logger.Logger) *LibraryRepo {
	return &LibraryRepo{store: store, log: log.With("repo", LabelLibrary)}
}

// EnsureLibrary creates the library when missing and returns its
// current state. Editability is fixed at creation and not overwritten
// by later calls.
func (r *LibraryRepo) EnsureLibrary(ctx context.Context, name string, isEditable bool) (version.LibraryVO, error) {
	if name == "" {
		return version.LibraryVO{}, apierr.Validation("library name is required")
	}
	var lib version.LibraryVO
	err := r.store.Write(ctx, func(tx graphstore.Tx) error {
		node, err := tx.FindNode(LabelLibrary, "name", name)
		if err != nil {
			return err
		}
		if node == nil {
			node, err = tx.CreateNode(LabelLibrary, graphstore.Props{
				"name":        name,
				"is_editable": isEditable,
			})
			if err != nil {
				return err
			}
		}
		lib = libraryVO(node)
		return nil
	})
	return lib, err
}

func (r *LibraryRepo) FindByName(ctx context.Context, name string) (version.LibraryVO, error) {
	var lib version.LibraryVO
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		node, err := tx.FindNode(LabelLibrary, "name", name)
		if err != nil {
			return err
		}
		if node == nil {
			return apierr.NotFound("the library %q could not be found", name)
		}
		lib = libraryVO(node)
		return nil
	})
	return lib, err
}

// FindAll lists libraries sorted by name, optionally only editable
// ones.
func (r *LibraryRepo) FindAll(ctx context.Context, editableOnly bool) ([]version.LibraryVO, error) {
	var libs []version.LibraryVO
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		var match graphstore.Props
		if editableOnly {
			match = graphstore.Props{"is_editable": true}
		}
		nodes, err := tx.FindNodes(LabelLibrary, match)
		if err != nil {
			return err
		}
		libs = libs[:0]
		for _, node := range nodes {
			libs = append(libs, libraryVO(node))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(libs, func(i, j int) bool { return libs[i].Name < libs[j].Name })
	return libs, nil
}

func libraryVO(node *graphstore.Node) version.LibraryVO {
	return version.LibraryVO{
		Name:       node.Props.String("name"),
		IsEditable: node.Props.Bool("is_editable"),
	}
}
