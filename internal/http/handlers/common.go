package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/clinicalmdr-backend/internal/data/filtering"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
	"github.com/yungbote/clinicalmdr-backend/internal/services"
)

// parseListQuery reads the shared list parameters: filters (JSON
// object), operator (and/or), sort_by (JSON object), page_number,
// page_size and total_count.
func parseListQuery(c *gin.Context) (filtering.Query, error) {
	q := filtering.Query{Page: filtering.Page{Number: 1}}

	if raw := c.Query("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.Filters); err != nil {
			return q, apierr.Validation("filters must be a JSON object: %v", err)
		}
	}
	op, err := filtering.ParseLogicalOp(c.Query("operator"))
	if err != nil {
		return q, err
	}
	q.Operator = op
	if raw := c.Query("sort_by"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.Sort); err != nil {
			return q, apierr.Validation("sort_by must be a JSON object: %v", err)
		}
	}

	if q.Page.Number, err = intQuery(c, "page_number", 1); err != nil {
		return q, err
	}
	if q.Page.Size, err = intQuery(c, "page_size", 10); err != nil {
		return q, err
	}
	q.Page.WithTotal = c.Query("total_count") == "true"
	return q, nil
}

// parseVersionQuery reads the mutually exclusive version selectors
// at_specified_date_time, version and status. Exclusivity is enforced
// downstream so that repository reads reject the combination too.
func parseVersionQuery(c *gin.Context) (services.VersionQuery, error) {
	q := services.VersionQuery{
		Version: c.Query("version"),
		Status:  c.Query("status"),
	}
	at, err := timeQuery(c, "at_specified_date_time")
	if err != nil {
		return q, err
	}
	q.AtTime = at
	return q, nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierr.Validation("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

func timeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apierr.Validation("%s must be an RFC 3339 timestamp, got %q", name, raw)
	}
	u := t.UTC()
	return &u, nil
}

// versionInfo is the wire shape of one version edge, shared by every
// versioned resource payload.
type versionInfo struct {
	Status            string     `json:"status"`
	Version           string     `json:"version"`
	StartDate         time.Time  `json:"start_date"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	UserInitials      string     `json:"user_initials"`
	ChangeDescription string     `json:"change_description,omitempty"`
}

func versionInfoOf(it version.Item) versionInfo {
	return versionInfo{
		Status:            string(it.Meta.Status),
		Version:           it.Meta.Version.String(),
		StartDate:         it.Meta.Start,
		EndDate:           it.Meta.End,
		UserInitials:      it.Meta.Author,
		ChangeDescription: it.Meta.ChangeDescription,
	}
}
