package dataloop

import (
	"context"
	"fmt"

	"github.com/dataloop-tools/dataloop-go/api/datasets"
	"github.com/dataloop-tools/dataloop-go/config"
)

// Label names used by the curation workflow.
const (
	LabelClass1   = "class1"
	LabelClass2   = "class2"
	LabelKeypoint = "key"
)

// DefaultLabels is the taxonomy registered on the dataset by Run.
var DefaultLabels = []datasets.Label{
	{Tag: LabelClass1, Color: datasets.Color{255, 100, 0}},
	{Tag: LabelClass2, Color: datasets.Color{34, 56, 7}},
	{Tag: LabelKeypoint, Color: datasets.Color{100, 14, 150}},
}

// classOneItems is how many items of the first page get LabelClass1; the
// rest get LabelClass2.
const classOneItems = 2

// Run executes the whole curation workflow described by cfg. The session
// is closed before Run returns, also when a step fails.
func Run(ctx context.Context, cfg *config.Config, opts ...Option) (err error) {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.IsValid(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	client, err := New(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := client.Close(context.WithoutCancel(ctx)); cerr != nil {
			client.logger.Warn("logout failed", "error", cerr)
			if err == nil {
				err = fmt.Errorf("close session: %w", cerr)
			}
		}
	}()

	return client.Curate(ctx, cfg)
}

// Curate runs the workflow steps on an open client.
func (c *Client) Curate(ctx context.Context, cfg *config.Config) (err error) {
	ctx, end := c.startSpan(ctx, "Curate")
	defer func() { end(err) }()

	ds, err := c.CreateDataset(ctx, cfg.Project, cfg.Dataset)
	if err != nil {
		return err
	}
	if err := c.AddLabels(ctx, ds, DefaultLabels); err != nil {
		return err
	}
	if _, err := c.UploadDirectory(ctx, ds, cfg.UploadPath, cfg.UploadRecursive); err != nil {
		return err
	}

	batch, err := c.FirstPage(ctx, ds)
	if err != nil {
		return err
	}
	if err := c.AddUTMInfo(ctx, ds, batch); err != nil {
		return err
	}

	split := min(classOneItems, len(batch))
	if err := c.AddClassLabel(ctx, LabelClass1, batch[:split]); err != nil {
		return err
	}
	if err := c.AddClassLabel(ctx, LabelClass2, batch[split:]); err != nil {
		return err
	}

	if _, _, err := c.AddRandomKeypointsWithLabel(ctx, c.rand, batch, LabelKeypoint, cfg.Keypoints); err != nil {
		return err
	}

	if err := c.SelectImagesByLabel(ctx, ds, LabelClass1); err != nil {
		return err
	}
	return c.GetAllPointAnnotations(ctx, ds)
}
