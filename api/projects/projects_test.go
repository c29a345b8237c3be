package projects

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataloop-tools/dataloop-go/internal/https"
	intlogger "github.com/dataloop-tools/dataloop-go/internal/logger"
	"github.com/dataloop-tools/dataloop-go/internal/vcr"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) *API {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(https.NewClient("test-token", server.URL, intlogger.NewFailTestLogger(t)))
}

// TestProjects_GetByName tests resolving a project by exact name
func TestProjects_GetByName(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects", r.URL.Path)
		assert.Equal(t, "DataloopInterview", r.URL.Query().Get("name"))
		_, _ = w.Write([]byte(`[
			{"id": "p-2", "name": "DataloopInterview-old"},
			{"id": "p-1", "name": "DataloopInterview", "org": "org-1"}
		]`))
	})

	project, err := api.GetByName(context.Background(), "DataloopInterview")
	require.NoError(t, err)
	assert.Equal(t, "p-1", project.ID)
	assert.Equal(t, "org-1", project.Org)
}

// TestProjects_GetByName_NotFound tests that an empty result is a not-found error
func TestProjects_GetByName_NotFound(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := api.GetByName(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, https.IsNotFound(err))
	assert.Contains(t, err.Error(), "missing")
}

// TestProjects_Get_NotFound tests that a 404 maps to not-found
func TestProjects_Get_NotFound(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/p-404", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := api.Get(context.Background(), "p-404")
	require.Error(t, err)
	assert.True(t, https.IsNotFound(err))
}

// TestProjects_Validation tests parameter validation
func TestProjects_Validation(t *testing.T) {
	t.Parallel()

	api := New(https.NewClient("t", "http://localhost", nil))

	_, err := api.Get(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")

	_, err = api.GetByName(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

// TestProjects_GetByName_Cassette replays a recorded lookup
func TestProjects_GetByName_Cassette(t *testing.T) {
	t.Parallel()

	client := vcr.NewClient(t)
	api := New(client)

	project, err := api.GetByName(context.Background(), "go-sdk-tests")
	require.NoError(t, err)
	assert.Equal(t, "go-sdk-tests", project.Name)
	assert.NotEmpty(t, project.ID)
}
