package dataloop

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataloop-tools/dataloop-go/api/datasets"
	"github.com/dataloop-tools/dataloop-go/api/items"
	"github.com/dataloop-tools/dataloop-go/config"
	"github.com/dataloop-tools/dataloop-go/internal/logger"
	"github.com/dataloop-tools/dataloop-go/internal/tests"
)

var fixedNow = time.Date(2024, time.March, 4, 5, 6, 7, 0, time.UTC)

func testConfig(platform *tests.Platform) *config.Config {
	return &config.Config{
		Email:      platform.Email,
		Password:   platform.Password,
		APIURL:     platform.URL(),
		Project:    "DataloopInterview",
		Dataset:    "dataset-created-from-script",
		UploadPath: "unused",
		Keypoints:  5,
		Trace:      "off",
	}
}

func newTestClient(t *testing.T, platform *tests.Platform, opts ...Option) (*Client, *bytes.Buffer) {
	t.Helper()

	out := &bytes.Buffer{}
	opts = append([]Option{
		WithLogger(logger.NewFailTestLogger(t)),
		WithOutput(out),
		WithClock(func() time.Time { return fixedNow }),
		WithRand(rand.New(rand.NewSource(1))),
	}, opts...)

	client, err := New(context.Background(), testConfig(platform), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close(context.Background())
	})
	return client, out
}

// seedDataset creates a project and a dataset with the given number of
// 64x48 items and returns the dataset handle and its first page.
func seedDataset(t *testing.T, platform *tests.Platform, client *Client, n int) (*datasets.Dataset, []items.Item) {
	t.Helper()

	projectID := platform.AddProject("DataloopInterview")
	datasetID := platform.AddDataset(projectID, "ds")
	for i := range n {
		platform.AddItem(datasetID, string(rune('a'+i))+".png", 64, 48)
	}

	ds, err := client.API().Datasets().Get(context.Background(), datasetID)
	require.NoError(t, err)
	batch, err := client.FirstPage(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, batch, n)
	return ds, batch
}

func userMetadata(t *testing.T, platform *tests.Platform, itemID string) map[string]any {
	t.Helper()
	item := platform.Item(itemID)
	require.NotNil(t, item)
	md := item["metadata"].(map[string]any)
	return md["user"].(map[string]any)
}

func TestNew_ReusesToken(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	cfg := testConfig(platform)
	cfg.Email, cfg.Password = "", ""
	cfg.Token = platform.IssueToken()

	client, err := New(context.Background(), cfg, WithLogger(logger.NewFailTestLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, 0, platform.Logins())

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()))
	assert.Equal(t, 1, platform.Logouts())
}

func TestCreateDataset_CreatesOnce(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	client, _ := newTestClient(t, platform)
	projectID := platform.AddProject("DataloopInterview")
	ctx := context.Background()

	ds, err := client.CreateDataset(ctx, "DataloopInterview", "fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", ds.Name)
	assert.Equal(t, 1, platform.Calls("datasets.create"))

	again, err := client.CreateDataset(ctx, "DataloopInterview", "fresh")
	require.NoError(t, err)
	assert.Equal(t, ds.ID, again.ID)
	assert.Equal(t, 1, platform.Calls("datasets.create"))
	assert.Len(t, platform.Datasets(projectID), 1)
}

func TestCreateDataset_ProjectNotFound(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	client, _ := newTestClient(t, platform)
	platform.AddProject("other")

	_, err := client.CreateDataset(context.Background(), "DataloopInterview", "ds")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.EqualError(t, err, "project 'DataloopInterview' not found")

	var lookup *LookupError
	require.ErrorAs(t, err, &lookup)
	assert.Equal(t, NotFound, lookup.Kind)
	assert.Equal(t, "project", lookup.Resource)
	assert.False(t, lookup.Temporary())
	assert.Equal(t, 0, platform.Calls("datasets.list"))
	assert.Equal(t, 0, platform.Calls("datasets.create"))
}

func TestCreateDataset_LookupFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		route    string
		status   int
		resource string
		kind     LookupKind
	}{
		{"project server error", "projects.list", http.StatusServiceUnavailable, "project", Unavailable},
		{"project forbidden", "projects.list", http.StatusForbidden, "project", Unauthorized},
		{"dataset server error", "datasets.list", http.StatusInternalServerError, "dataset", Unavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			platform := tests.NewPlatform(t)
			client, _ := newTestClient(t, platform)
			platform.AddProject("DataloopInterview")
			platform.FailRoute(tc.route, tc.status)

			_, err := client.CreateDataset(context.Background(), "DataloopInterview", "ds")
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrNotFound))

			var lookup *LookupError
			require.ErrorAs(t, err, &lookup)
			assert.Equal(t, tc.resource, lookup.Resource)
			assert.Equal(t, tc.kind, lookup.Kind)
			assert.Equal(t, tc.kind == Unavailable, lookup.Temporary())
			assert.Equal(t, 0, platform.Calls("datasets.create"), "no dataset is created when the lookup fails")
		})
	}
}

func TestCreateDataset_Validation(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	client, _ := newTestClient(t, platform)

	_, err := client.CreateDataset(context.Background(), "", "ds")
	assert.Error(t, err)
	_, err = client.CreateDataset(context.Background(), "p", "")
	assert.Error(t, err)
	assert.Equal(t, 0, platform.Calls("projects.list"))
}

func TestAddUTMInfo(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	client, _ := newTestClient(t, platform)
	ds, batch := seedDataset(t, platform, client, 3)

	require.NoError(t, client.AddUTMInfo(context.Background(), ds, batch[:2]))
	assert.Equal(t, 1, platform.Calls("items.update"))

	for _, item := range batch[:2] {
		assert.Equal(t, "03/04/2024, 05:06:07", userMetadata(t, platform, item.ID)[UTMKey])
	}
	assert.NotContains(t, userMetadata(t, platform, batch[2].ID), UTMKey)
}

func TestAddUTMInfo_EmptyBatch(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	client, _ := newTestClient(t, platform)
	ds, _ := seedDataset(t, platform, client, 1)

	err := client.AddUTMInfo(context.Background(), ds, nil)
	assert.ErrorContains(t, err, "no items")
	assert.Equal(t, 0, platform.Calls("items.update"))
}

func TestAddClassLabel(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	client, _ := newTestClient(t, platform)
	_, batch := seedDataset(t, platform, client, 3)

	require.NoError(t, client.AddClassLabel(context.Background(), LabelClass1, batch))
	assert.Equal(t, 3, platform.Calls("annotations.upload"))

	for _, item := range batch {
		anns := platform.Annotations(item.ID)
		require.Len(t, anns, 1)
		assert.Equal(t, "class", anns[0]["type"])
		assert.Equal(t, LabelClass1, anns[0]["label"])
	}
}

func TestAddClassLabel_EmptyBatch(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	client, _ := newTestClient(t, platform)

	require.NoError(t, client.AddClassLabel(context.Background(), LabelClass2, nil))
	assert.Equal(t, 0, platform.Calls("annotations.upload"))
}

func TestAddRandomKeypointsWithLabel(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	client, _ := newTestClient(t, platform)
	_, batch := seedDataset(t, platform, client, 4)

	chosen, points, err := client.AddRandomKeypointsWithLabel(context.Background(), rand.New(rand.NewSource(42)), batch, LabelKeypoint, 5)
	require.NoError(t, err)
	require.NotNil(t, chosen)
	require.Len(t, points, 5)
	assert.Equal(t, 1, platform.Calls("annotations.upload"))

	for _, p := range points {
		assert.GreaterOrEqual(t, p.X, 0.0)
		assert.LessOrEqual(t, p.X, 64.0)
		assert.GreaterOrEqual(t, p.Y, 0.0)
		assert.LessOrEqual(t, p.Y, 48.0)
		assert.Equal(t, LabelKeypoint, p.Label)
	}

	anns := platform.Annotations(chosen.ID)
	require.Len(t, anns, 5)
	for _, a := range anns {
		assert.Equal(t, "point", a["type"])
	}
	for _, item := range batch {
		if item.ID != chosen.ID {
			assert.Empty(t, platform.Annotations(item.ID))
		}
	}
}

func TestAddRandomKeypointsWithLabel_Deterministic(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	client, _ := newTestClient(t, platform)
	_, batch := seedDataset(t, platform, client, 4)
	ctx := context.Background()

	first, firstPoints, err := client.AddRandomKeypointsWithLabel(ctx, rand.New(rand.NewSource(7)), batch, LabelKeypoint, 3)
	require.NoError(t, err)
	second, secondPoints, err := client.AddRandomKeypointsWithLabel(ctx, rand.New(rand.NewSource(7)), batch, LabelKeypoint, 3)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, firstPoints, secondPoints)
}

func TestAddRandomKeypointsWithLabel_ZeroPoints(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	client, _ := newTestClient(t, platform)
	_, batch := seedDataset(t, platform, client, 2)

	chosen, points, err := client.AddRandomKeypointsWithLabel(context.Background(), rand.New(rand.NewSource(1)), batch, LabelKeypoint, 0)
	require.NoError(t, err)
	assert.Empty(t, points)
	assert.Equal(t, 1, platform.Calls("annotations.upload"))
	assert.Empty(t, platform.Annotations(chosen.ID))
}

func TestAddRandomKeypointsWithLabel_Errors(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	client, _ := newTestClient(t, platform)
	ds, batch := seedDataset(t, platform, client, 1)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	_, _, err := client.AddRandomKeypointsWithLabel(ctx, nil, batch, LabelKeypoint, 1)
	assert.Error(t, err)
	_, _, err = client.AddRandomKeypointsWithLabel(ctx, rng, nil, LabelKeypoint, 1)
	assert.Error(t, err)
	_, _, err = client.AddRandomKeypointsWithLabel(ctx, rng, batch, LabelKeypoint, -1)
	assert.Error(t, err)

	platform.AddItem(ds.ID, "nosize.bin", -1, -1)
	all, err := client.API().Items().List(ds.ID, nil).All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	_, _, err = client.AddRandomKeypointsWithLabel(ctx, rng, all[1:], LabelKeypoint, 1)
	assert.ErrorContains(t, err, "no width/height")

	assert.Equal(t, 0, platform.Calls("annotations.upload"))
}

func TestSelectImagesByLabel(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	client, out := newTestClient(t, platform)
	ds, batch := seedDataset(t, platform, client, 4)
	ctx := context.Background()

	require.NoError(t, client.AddClassLabel(ctx, LabelClass1, batch[:2]))
	require.NoError(t, client.AddClassLabel(ctx, LabelClass2, batch[2:]))

	require.NoError(t, client.SelectImagesByLabel(ctx, ds, LabelClass1))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "id="+batch[0].ID)
	assert.Contains(t, lines[1], "id="+batch[1].ID)

	out.Reset()
	require.NoError(t, client.SelectImagesByLabel(ctx, ds, "missing"))
	assert.Empty(t, out.String())
}

func TestGetAllPointAnnotations(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	client, out := newTestClient(t, platform)
	ds, batch := seedDataset(t, platform, client, 3)
	ctx := context.Background()

	require.NoError(t, client.AddClassLabel(ctx, LabelClass1, batch))
	chosen, _, err := client.AddRandomKeypointsWithLabel(ctx, rand.New(rand.NewSource(3)), batch, LabelKeypoint, 2)
	require.NoError(t, err)

	require.NoError(t, client.GetAllPointAnnotations(ctx, ds))
	report := out.String()
	assert.Contains(t, report, "Item(id="+chosen.ID)
	assert.Contains(t, report, "AnnotationCollection(item="+chosen.ID+", count=3)")
	assert.Equal(t, 2, strings.Count(report, "type=point"))
	assert.Equal(t, 1, strings.Count(report, "type=class"))
	assert.Equal(t, 1, strings.Count(report, "Item(id="))
	assert.Equal(t, 1, platform.Calls("annotations.list"))
}

func TestLookupError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := &LookupError{Resource: "dataset", Name: "ds", Kind: Unavailable, Err: cause}
	assert.Equal(t, "dataset 'ds' lookup failed (unavailable): connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.True(t, err.Temporary())
	assert.Equal(t, "unknown", LookupKind(0).String())
}
