package dataloop

import (
	"bytes"
	"context"
	"math/rand"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataloop-tools/dataloop-go/internal/logger"
	"github.com/dataloop-tools/dataloop-go/internal/oteltest"
	"github.com/dataloop-tools/dataloop-go/internal/tests"
)

func runConfig(t *testing.T) (*bytes.Buffer, []Option, string) {
	t.Helper()

	dir := t.TempDir()
	tests.WritePNG(t, dir, "img-a.png", 32, 24)
	tests.WritePNG(t, dir, "img-b.png", 16, 16)
	tests.WritePNG(t, dir, "img-c.png", 8, 40)
	tests.WritePNG(t, dir, "img-d.png", 50, 10)

	out := &bytes.Buffer{}
	opts := []Option{
		WithLogger(logger.NewFailTestLogger(t)),
		WithOutput(out),
		WithClock(func() time.Time { return fixedNow }),
		WithRand(rand.New(rand.NewSource(99))),
	}
	return out, opts, dir
}

func TestRun(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	projectID := platform.AddProject("DataloopInterview")
	out, opts, dir := runConfig(t)
	tp, recorder := oteltest.Setup(t)

	cfg := testConfig(platform)
	cfg.UploadPath = dir

	require.NoError(t, Run(context.Background(), cfg, append(opts, WithTracerProvider(tp))...))

	assert.Equal(t, 1, platform.Logins())
	assert.Equal(t, 1, platform.Logouts())
	assert.Empty(t, platform.Token())

	created := platform.Datasets(projectID)
	require.Len(t, created, 1)
	datasetID := created[0]["id"].(string)
	assert.Equal(t, cfg.Dataset, created[0]["name"])

	labels := platform.Labels(datasetID)
	require.Len(t, labels, 3)
	assert.Equal(t, "class1", labels[0]["tag"])
	assert.Equal(t, "#ff6400", labels[0]["color"])
	assert.Equal(t, "#223807", labels[1]["color"])
	assert.Equal(t, "#640e96", labels[2]["color"])

	ids := platform.ItemIDs(datasetID)
	require.Len(t, ids, 4)

	points := 0
	for i, id := range ids {
		assert.Equal(t, "03/04/2024, 05:06:07", userMetadata(t, platform, id)[UTMKey])

		want := LabelClass2
		if i < 2 {
			want = LabelClass1
		}
		var classes []string
		for _, a := range platform.Annotations(id) {
			switch a["type"] {
			case "class":
				classes = append(classes, a["label"].(string))
			case "point":
				assert.Equal(t, LabelKeypoint, a["label"])
				points++
			}
		}
		assert.Equal(t, []string{want}, classes, "item %d", i)
	}
	assert.Equal(t, 5, points)

	report := out.String()
	assert.Equal(t, 3, strings.Count(report, "Item(id="), "two class1 items plus the keypoint item")
	assert.Equal(t, 5, strings.Count(report, "type=point"))

	names := oteltest.SpanNames(recorder)
	for _, name := range []string{
		"CreateDataset", "AddLabels", "UploadDirectory", "AddUTMInfo", "AddClassLabel",
		"AddRandomKeypointsWithLabel", "SelectImagesByLabel", "GetAllPointAnnotations", "Curate",
		"POST /auth/login", "POST /auth/logout",
	} {
		assert.Contains(t, names, name)
	}
}

func TestRun_ExistingDataset(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	projectID := platform.AddProject("DataloopInterview")
	_, opts, dir := runConfig(t)

	cfg := testConfig(platform)
	cfg.UploadPath = dir
	datasetID := platform.AddDataset(projectID, cfg.Dataset)

	require.NoError(t, Run(context.Background(), cfg, opts...))
	assert.Equal(t, 0, platform.Calls("datasets.create"))
	assert.Len(t, platform.ItemIDs(datasetID), 4)
}

func TestRun_FailingStepClosesSession(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	platform.AddProject("DataloopInterview")
	_, opts, dir := runConfig(t)
	platform.FailRoute("items.update", http.StatusInternalServerError)

	cfg := testConfig(platform)
	cfg.UploadPath = dir

	err := Run(context.Background(), cfg, opts...)
	require.Error(t, err)
	assert.ErrorContains(t, err, "update items metadata")
	assert.Equal(t, 1, platform.Logouts())
	assert.Equal(t, 0, platform.Calls("annotations.upload"), "later steps do not run")
}

func TestRun_ProjectNotFound(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	_, opts, dir := runConfig(t)

	cfg := testConfig(platform)
	cfg.UploadPath = dir

	err := Run(context.Background(), cfg, opts...)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, platform.Logouts())
}

func TestRun_InvalidCredentials(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	platform.AddProject("DataloopInterview")
	_, opts, dir := runConfig(t)

	cfg := testConfig(platform)
	cfg.UploadPath = dir
	cfg.Password = "wrong"

	err := Run(context.Background(), cfg, opts...)
	assert.ErrorContains(t, err, "invalid credentials")
	assert.Equal(t, 0, platform.Logins())
	assert.Equal(t, 0, platform.Logouts())
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Parallel()

	platform := tests.NewPlatform(t)
	cfg := testConfig(platform)
	cfg.Email = ""

	err := Run(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid config")
	assert.Equal(t, 0, platform.Logins())

	assert.Error(t, Run(context.Background(), nil))
}
