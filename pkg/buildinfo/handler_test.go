package buildinfo_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/judgeroute/pkg/buildinfo"
)

func TestHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()

	buildinfo.Handler()(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var info buildinfo.Info
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))

	assert.Equal(t, "judgeroute", info.Name)
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.Commit)
	assert.NotEmpty(t, info.BuildTime)
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"), info.GoVersion)
}
