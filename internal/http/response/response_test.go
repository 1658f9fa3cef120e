package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

func TestRespondAPIErrorMapsKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err  error
		want int
	}{
		{apierr.NotFound("no ActivityGroup_000001"), http.StatusNotFound},
		{apierr.Validation("bad input"), http.StatusBadRequest},
		{apierr.BusinessLogic("not in draft status"), http.StatusBadRequest},
		{apierr.Versioning("content frozen"), http.StatusBadRequest},
		{apierr.Conflict("stale version"), http.StatusConflict},
		{apierr.Consistency("two open edges"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		RespondAPIError(c, tc.err)
		if rec.Code != tc.want {
			t.Fatalf("status for %v: got=%d want=%d", tc.err, rec.Code, tc.want)
		}
		var envelope ErrorEnvelope
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if envelope.Error.Message == "" || envelope.Error.Code == "" {
			t.Fatalf("incomplete error envelope: %+v", envelope)
		}
	}
}
