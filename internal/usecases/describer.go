package usecases

import (
	"context"

	"github.com/MyCarrier-DevOps/refspan/internal/domain"
)

// TagDescriber labels revisions with their nearest reachable tag.
// Resolution never fails outwardly: when no tag is reachable, or the id does
// not resolve at all, the raw id is returned unchanged.
type TagDescriber struct {
	graph  domain.GraphStore
	logger Logger
}

// NewTagDescriber creates a new TagDescriber with the given dependencies.
func NewTagDescriber(graph domain.GraphStore, log Logger) *TagDescriber {
	return &TagDescriber{
		graph:  graph,
		logger: log,
	}
}

// Describe returns the nearest-tag description of the revision.
// opts.Override, when set, is described instead of id; opts.Lightweight
// widens the candidate set to lightweight tags.
func (d *TagDescriber) Describe(ctx context.Context, id domain.CommitID, opts domain.DescribeOptions) string {
	target := id
	if !opts.Override.IsZero() {
		target = opts.Override
	}

	desc, err := d.graph.NearestTag(ctx, target, opts)
	if err != nil {
		d.logger.Debug(ctx, "no tag description, falling back to raw id", map[string]interface{}{
			"revision":    string(target),
			"lightweight": opts.Lightweight,
			"reason":      err.Error(),
		})
		return string(target)
	}

	return desc
}
