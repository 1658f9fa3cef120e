package services

import (
	"context"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/repos"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/ctxutil"
)

// VersionQuery selects which version of an item a read should return.
// At most one field may be set; the zero query means the default view.
type VersionQuery struct {
	AtTime  *time.Time
	Version string
	Status  string
}

func (q VersionQuery) selectors() ([]repos.Selector, error) {
	var sels []repos.Selector
	if q.AtTime != nil {
		sels = append(sels, repos.AtTime(*q.AtTime))
	}
	if q.Version != "" {
		v, err := version.Parse(q.Version)
		if err != nil {
			return nil, err
		}
		sels = append(sels, repos.AtVersion(v))
	}
	if q.Status != "" {
		st, err := version.ParseStatus(q.Status)
		if err != nil {
			return nil, err
		}
		sels = append(sels, repos.AtStatus(st))
	}
	return sels, nil
}

// authorFrom pulls the acting user's initials from the request context.
// Every mutation is attributed, so a missing author is a client error.
func authorFrom(ctx context.Context) (string, error) {
	author := ctxutil.Author(ctx)
	if author == "" {
		return "", apierr.Validation("user initials are required for this operation")
	}
	return author, nil
}

func nowUTC() time.Time { return time.Now().UTC() }
