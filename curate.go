package dataloop

import (
	"context"
	"fmt"
	"math/rand"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/dataloop-tools/dataloop-go/api/annotations"
	"github.com/dataloop-tools/dataloop-go/api/datasets"
	"github.com/dataloop-tools/dataloop-go/api/filters"
	"github.com/dataloop-tools/dataloop-go/api/items"
	"github.com/dataloop-tools/dataloop-go/api/projects"
	"github.com/dataloop-tools/dataloop-go/internal/https"
)

// UTMTimeFormat is the layout of the timestamp written by AddUTMInfo.
const UTMTimeFormat = "01/02/2006, 15:04:05"

// UTMKey is the user metadata key written by AddUTMInfo.
const UTMKey = "UTM"

// CreateDataset returns the dataset named datasetName in project
// projectName, creating it when it does not exist yet.
//
// Lookup failures are returned as *LookupError.
func (c *Client) CreateDataset(ctx context.Context, projectName, datasetName string) (ds *datasets.Dataset, err error) {
	ctx, end := c.startSpan(ctx, "CreateDataset",
		attribute.String("dataloop.project", projectName),
		attribute.String("dataloop.dataset", datasetName))
	defer func() { end(err) }()

	if projectName == "" {
		return nil, fmt.Errorf("project name is required")
	}
	if datasetName == "" {
		return nil, fmt.Errorf("dataset name is required")
	}

	var project *projects.Project
	project, err = c.api.Projects().GetByName(ctx, projectName)
	if err != nil {
		return nil, lookupError("project", projectName, err)
	}

	ds, err = c.api.Datasets().GetByName(ctx, project.ID, datasetName)
	if err == nil {
		c.logger.Debug("dataset exists", "dataset", ds.Name, "id", ds.ID)
		return ds, nil
	}
	if !https.IsNotFound(err) {
		return nil, lookupError("dataset", datasetName, err)
	}

	ds, err = c.api.Datasets().Create(ctx, datasets.CreateParams{
		ProjectID: project.ID,
		Name:      datasetName,
	})
	if err != nil {
		return nil, fmt.Errorf("create dataset %q: %w", datasetName, err)
	}
	c.logger.Info("dataset created", "dataset", ds.Name, "id", ds.ID, "project", project.Name)
	return ds, nil
}

// AddLabels registers labels on the dataset.
func (c *Client) AddLabels(ctx context.Context, ds *datasets.Dataset, labels []datasets.Label) (err error) {
	ctx, end := c.startSpan(ctx, "AddLabels", attribute.Int("dataloop.labels", len(labels)))
	defer func() { end(err) }()

	if ds == nil {
		return fmt.Errorf("dataset is required")
	}
	added, err := c.api.Datasets().AddLabels(ctx, ds.ID, labels)
	if err != nil {
		return fmt.Errorf("add labels to %s: %w", ds.Name, err)
	}
	ds.Labels = added
	return nil
}

// UploadDirectory uploads every file of localPath into the dataset root.
func (c *Client) UploadDirectory(ctx context.Context, ds *datasets.Dataset, localPath string, recursive bool) (uploaded []items.Item, err error) {
	ctx, end := c.startSpan(ctx, "UploadDirectory", attribute.String("dataloop.path", localPath))
	defer func() { end(err) }()

	if ds == nil {
		return nil, fmt.Errorf("dataset is required")
	}
	uploaded, err = c.api.Items().UploadDirectory(ctx, ds.ID, localPath, items.UploadDirectoryOptions{
		RemotePath: "/",
		Recursive:  recursive,
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("directory uploaded", "path", localPath, "items", len(uploaded))
	return uploaded, nil
}

// FirstPage returns the first page of the dataset's items.
func (c *Client) FirstPage(ctx context.Context, ds *datasets.Dataset) ([]items.Item, error) {
	if ds == nil {
		return nil, fmt.Errorf("dataset is required")
	}
	page, err := c.api.Items().List(ds.ID, filters.New()).Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items of %s: %w", ds.Name, err)
	}
	return page.Items, nil
}

// AddUTMInfo stamps every item with the same UTM timestamp in its user
// metadata, using a single bulk update.
func (c *Client) AddUTMInfo(ctx context.Context, ds *datasets.Dataset, batch []items.Item) (err error) {
	ctx, end := c.startSpan(ctx, "AddUTMInfo", attribute.Int("dataloop.items", len(batch)))
	defer func() { end(err) }()

	if ds == nil {
		return fmt.Errorf("dataset is required")
	}
	if len(batch) == 0 {
		return fmt.Errorf("no items to update")
	}

	stamp := c.now().Format(UTMTimeFormat)
	f := filters.New().Add(filters.FieldID, filters.OpIn, items.IDs(batch))
	values := map[string]any{
		"user": map[string]any{UTMKey: stamp},
	}

	res, err := c.api.Items().Update(ctx, ds.ID, f, values)
	if err != nil {
		return fmt.Errorf("update items metadata: %w", err)
	}
	c.logger.Info("items updated", "updated", res.Updated, "utm", stamp)
	return nil
}

// UploadAnnotations sends the builder's annotations in one call.
func (c *Client) UploadAnnotations(ctx context.Context, b *annotations.Builder) ([]annotations.Annotation, error) {
	uploaded, err := c.api.Annotations().Upload(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("upload annotations: %w", err)
	}
	return uploaded, nil
}

// AddClassLabel attaches a classification with label to each item, one
// upload per item.
func (c *Client) AddClassLabel(ctx context.Context, label string, batch []items.Item) (err error) {
	ctx, end := c.startSpan(ctx, "AddClassLabel",
		attribute.String("dataloop.label", label),
		attribute.Int("dataloop.items", len(batch)))
	defer func() { end(err) }()

	if label == "" {
		return fmt.Errorf("label is required")
	}
	for _, item := range batch {
		b := annotations.NewBuilder(item.ID).Add(annotations.Classification{Label: label})
		if _, err = c.UploadAnnotations(ctx, b); err != nil {
			return fmt.Errorf("label item %s: %w", item.ID, err)
		}
	}
	c.logger.Info("class label added", "label", label, "items", len(batch))
	return nil
}

// AddRandomKeypointsWithLabel picks one item with rng and attaches n point
// annotations with label, each within the item's bounds. It returns the
// chosen item and points.
func (c *Client) AddRandomKeypointsWithLabel(ctx context.Context, rng *rand.Rand, batch []items.Item, label string, n int) (chosen *items.Item, points []annotations.Point, err error) {
	ctx, end := c.startSpan(ctx, "AddRandomKeypointsWithLabel",
		attribute.String("dataloop.label", label),
		attribute.Int("dataloop.keypoints", n))
	defer func() { end(err) }()

	switch {
	case rng == nil:
		return nil, nil, fmt.Errorf("random source is required")
	case len(batch) == 0:
		return nil, nil, fmt.Errorf("no items to annotate")
	case label == "":
		return nil, nil, fmt.Errorf("label is required")
	case n < 0:
		return nil, nil, fmt.Errorf("keypoint count must not be negative, got %d", n)
	}

	item := batch[rng.Intn(len(batch))]
	width, height, err := item.Dimensions()
	if err != nil {
		return nil, nil, err
	}

	b := annotations.NewBuilder(item.ID)
	points = make([]annotations.Point, 0, n)
	for range n {
		p := annotations.Point{
			X:     float64(rng.Intn(width + 1)),
			Y:     float64(rng.Intn(height + 1)),
			Label: label,
		}
		points = append(points, p)
		b.Add(p)
	}

	if _, err = c.UploadAnnotations(ctx, b); err != nil {
		return nil, nil, fmt.Errorf("keypoints for item %s: %w", item.ID, err)
	}
	c.logger.Info("keypoints added", "item", item.ID, "label", label, "count", n)
	return &item, points, nil
}

// SelectImagesByLabel prints every item carrying an annotation with label.
func (c *Client) SelectImagesByLabel(ctx context.Context, ds *datasets.Dataset, label string) (err error) {
	ctx, end := c.startSpan(ctx, "SelectImagesByLabel", attribute.String("dataloop.label", label))
	defer func() { end(err) }()

	if ds == nil {
		return fmt.Errorf("dataset is required")
	}
	f := filters.New().AddJoin(filters.FieldLabel, label, filters.OpEqual)
	return c.api.Items().List(ds.ID, f).ForEach(ctx, func(item items.Item) error {
		_, err := fmt.Fprintln(c.out, item.String())
		return err
	})
}

// GetAllPointAnnotations prints every item with a point annotation followed
// by the item's annotations.
func (c *Client) GetAllPointAnnotations(ctx context.Context, ds *datasets.Dataset) (err error) {
	ctx, end := c.startSpan(ctx, "GetAllPointAnnotations")
	defer func() { end(err) }()

	if ds == nil {
		return fmt.Errorf("dataset is required")
	}
	f := filters.New().AddJoin(filters.FieldType, filters.AnnotationTypePoint, filters.OpEqual)
	return c.api.Items().List(ds.ID, f).ForEach(ctx, func(item items.Item) error {
		if _, err := fmt.Fprintln(c.out, item.String()); err != nil {
			return err
		}
		coll, err := c.api.Annotations().List(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("annotations of item %s: %w", item.ID, err)
		}
		_, err = fmt.Fprintln(c.out, coll.String())
		return err
	})
}

func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := c.tracer.Start(ctx, name, oteltrace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
