// Package usecases contains the application business logic.
// This package orchestrates domain entities and interfaces to fulfill use cases.
package usecases

import (
	"context"
	"fmt"

	"github.com/MyCarrier-DevOps/refspan/internal/domain"
)

// Logger defines the logging interface required by the use cases.
// This abstracts the logger dependency to avoid coupling to a specific implementation.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// RangeResolver computes the revision range introduced by one ref update.
//
// For an update of ref R from old to new, the resolved commits are
//
//	Ancestors(new) - Ancestors(old) - Ancestors(tips of every ref except R)
//
// computed by graph reachability, not linear range arithmetic. This is what
// makes the result correct under force-updates (old need not be an ancestor
// of new) and what guarantees at-most-once reporting when a commit becomes
// reachable from two refs pushed independently: whichever update is processed
// second finds the commit already reachable from the other ref's tip.
type RangeResolver struct {
	graph  domain.GraphStore
	logger Logger
}

// NewRangeResolver creates a new RangeResolver with the given dependencies.
func NewRangeResolver(graph domain.GraphStore, log Logger) *RangeResolver {
	return &RangeResolver{
		graph:  graph,
		logger: log,
	}
}

// Resolve classifies the event and computes its RevisionRange.
//
// The tip snapshot is taken fresh on every call and without any lock: a ref
// moved by a concurrent push between the snapshot and the reachability query
// may cause a commit to be reported twice. That race is an accepted
// limitation; the resolver favors availability over linearizable dedup.
func (r *RangeResolver) Resolve(ctx context.Context, input domain.ResolveInput) (*domain.ResolveOutput, error) {
	event := input.Event
	if err := event.Validate(); err != nil {
		return nil, err
	}

	out := &domain.ResolveOutput{
		Event:       event,
		Kind:        event.Kind(),
		OperativeID: event.OperativeID(),
	}

	opType, err := r.graph.TypeOf(ctx, out.OperativeID)
	if err != nil {
		return nil, fmt.Errorf("%w: typing %s: %w", domain.ErrGraphLookup, out.OperativeID.Short(), err)
	}
	out.OperativeType = opType

	r.logger.Info(ctx, "classified ref update", map[string]interface{}{
		"ref":       event.RefName,
		"kind":      out.Kind.String(),
		"operative": string(out.OperativeID),
		"type":      string(out.OperativeType),
	})

	// A deletion introduces nothing; its range stays empty and the graph is
	// not queried for reachability at all.
	if out.Kind == domain.KindDelete {
		return out, nil
	}

	exclude, rng, err := r.exclusionSet(ctx, input)
	if err != nil {
		return nil, err
	}
	out.Range = rng

	commits, err := r.graph.ReachableFrom(ctx, []domain.CommitID{event.NewID}, exclude)
	if err != nil {
		return nil, fmt.Errorf("%w: walking from %s: %w", domain.ErrGraphLookup, event.NewID.Short(), err)
	}
	out.Commits = commits

	r.logger.Debug(ctx, "resolved revision range", map[string]interface{}{
		"ref":         event.RefName,
		"range_len":   len(out.Range),
		"new_commits": len(out.Commits),
	})

	return out, nil
}

// exclusionSet builds the already-known set for the event: the old tip (when
// the ref existed before) plus the current tip of every other ref in the
// snapshot. The updating ref's own tip is skipped by name so its prior
// history suppresses its new commits only through the explicit old-tip entry.
func (r *RangeResolver) exclusionSet(
	ctx context.Context,
	input domain.ResolveInput,
) ([]domain.CommitID, domain.RevisionRange, error) {
	event := input.Event

	rng := domain.RevisionRange{}.Append(domain.RevToken{ID: event.NewID})

	var exclude []domain.CommitID
	if !event.OldID.IsZero() {
		exclude = append(exclude, event.OldID)
		rng = rng.Append(domain.RevToken{ID: event.OldID, Negated: true})
	}

	tips, err := r.snapshotTips(ctx, input.ExcludeTagTips)
	if err != nil {
		return nil, nil, err
	}

	for _, tip := range tips {
		if tip.Name == event.RefName {
			continue
		}
		exclude = append(exclude, tip.ID)
		// A tip already at the new id still suppresses the walk, but the
		// range never carries a negation of the new id itself.
		if tip.ID != event.NewID {
			rng = rng.Append(domain.RevToken{ID: tip.ID, Negated: true})
		}
	}

	if len(tips) == 0 {
		// First-ever push: nothing is known yet.
		r.logger.Debug(ctx, "empty tip snapshot", map[string]interface{}{
			"ref": event.RefName,
		})
	}

	return exclude, rng, nil
}

// snapshotTips lists branch tips, plus tag tips when the policy asks for
// them. Tag tips are excluded by default so a tag push re-surfaces commits
// already announced via a branch.
func (r *RangeResolver) snapshotTips(ctx context.Context, includeTags bool) ([]domain.Tip, error) {
	tips, err := r.graph.ListTips(ctx, domain.RefBranch)
	if err != nil {
		return nil, fmt.Errorf("%w: listing branch tips: %w", domain.ErrGraphLookup, err)
	}

	if includeTags {
		tagTips, err := r.graph.ListTips(ctx, domain.RefTag)
		if err != nil {
			return nil, fmt.Errorf("%w: listing tag tips: %w", domain.ErrGraphLookup, err)
		}
		tips = append(tips, tagTips...)
	}

	return tips, nil
}
