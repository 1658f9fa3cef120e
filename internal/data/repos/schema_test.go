package repos

import (
	"testing"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/cache"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore/memstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

// Every root label the repositories create must be covered by the uid
// uniqueness constraints installed at startup.
func TestSchemaLabelsCoverRepositoryRoots(t *testing.T) {
	store := memstore.New()
	c := cache.NewMemory(time.Minute)
	log := logger.NewNop()

	roots := []string{
		NewActivityGroupRepo(store, c, log).kind.RootLabel,
		NewActivitySubGroupRepo(store, c, log).kind.RootLabel,
		NewActivityRepo(store, c, log).kind.RootLabel,
		NewCTTermRepo(store, c, log).kind.RootLabel,
		NewTimeframeTemplateRepo(store, c, log).kind.RootLabel,
		NewTimeframeRepo(store, c, log).kind.RootLabel,
		LabelStudyRoot,
	}
	covered := make(map[string]bool, len(SchemaLabels))
	for _, label := range SchemaLabels {
		covered[label] = true
	}
	for _, label := range roots {
		if !covered[label] {
			t.Errorf("root label %s is missing from SchemaLabels", label)
		}
	}
}
