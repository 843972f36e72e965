// Package git provides adapters for interacting with local Git repositories.
// This package implements the domain.GraphStore interface using go-git/v5.
package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/MyCarrier-DevOps/refspan/internal/domain"
)

// Logger defines the logging interface for the git adapter.
// This interface enables dependency injection and testability.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// GoGitStore implements domain.GraphStore using go-git/v5.
// It provides read-only commit-graph and ref queries against a local
// repository; hooks run inside the repository being pushed to, so the path
// is usually the bare repository itself.
type GoGitStore struct {
	repo   *git.Repository
	path   string
	logger Logger
}

// NewGoGitStore creates a new GoGitStore for the given path.
// The path can be either a working directory or a bare repository.
// Returns domain.ErrRepositoryNotFound if the path is not a valid Git repository.
func NewGoGitStore(path string, log Logger) (*GoGitStore, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, path)
	}

	return &GoGitStore{
		repo:   repo,
		path:   path,
		logger: log,
	}, nil
}

// ResolveRef returns the commit a ref currently points at.
// Annotated tag refs are peeled to their target commit.
func (s *GoGitStore) ResolveRef(ctx context.Context, name string) (domain.CommitID, error) {
	ref, err := s.repo.Reference(plumbing.ReferenceName(name), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", fmt.Errorf("%w: %s", domain.ErrRefNotFound, name)
		}
		return "", fmt.Errorf("failed to resolve ref %s: %w", name, err)
	}

	hash, err := s.peelToCommit(ref.Hash())
	if err != nil {
		return "", fmt.Errorf("failed to peel ref %s: %w", name, err)
	}

	s.logger.Debug(ctx, "resolved ref", map[string]interface{}{
		"ref":  name,
		"hash": hash.String(),
	})

	return domain.CommitID(hash.String()), nil
}

// TypeOf returns the object type of an id.
// An id that does not resolve yields ObjectUnknown with no error: the object
// may have been garbage-collected and callers must be able to degrade.
func (s *GoGitStore) TypeOf(ctx context.Context, id domain.CommitID) (domain.ObjectType, error) {
	if id.IsZero() {
		return domain.ObjectUnknown, nil
	}

	obj, err := s.repo.Storer.EncodedObject(plumbing.AnyObject, plumbing.NewHash(string(id)))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			s.logger.Warn(ctx, "object not found; reporting unknown type", map[string]interface{}{
				"hash": string(id),
				"path": s.path,
			})
			return domain.ObjectUnknown, nil
		}
		return domain.ObjectUnknown, fmt.Errorf("failed to read object %s: %w", id.Short(), err)
	}

	switch obj.Type() {
	case plumbing.CommitObject:
		return domain.ObjectCommit, nil
	case plumbing.TagObject:
		return domain.ObjectTag, nil
	case plumbing.TreeObject:
		return domain.ObjectTree, nil
	case plumbing.BlobObject:
		return domain.ObjectBlob, nil
	default:
		return domain.ObjectUnknown, nil
	}
}

// ReachableFrom returns every commit reachable from the include set but not
// reachable from any member of the exclude set, newest first by commit time.
//
// The exclusion set is made ancestor-closed first: each exclude tip is walked
// in full and every visited hash seeds the seen-set of the include walk, so
// the result is an exact ancestor set difference even when the sets overlap
// only through side paths (merges, force-updates).
func (s *GoGitStore) ReachableFrom(
	ctx context.Context,
	include, exclude []domain.CommitID,
) ([]domain.CommitID, error) {
	seen := make(map[plumbing.Hash]bool)

	for _, id := range exclude {
		commit, err := s.commitObject(id)
		if err != nil {
			// An unresolvable exclude tip cannot suppress anything; skip it.
			s.logger.Warn(ctx, "skipping unresolvable exclude tip", map[string]interface{}{
				"hash": string(id),
			})
			continue
		}
		if err := s.markAncestors(ctx, commit, seen); err != nil {
			return nil, err
		}
	}

	var out []domain.CommitID
	for _, id := range include {
		commit, err := s.commitObject(id)
		if err != nil {
			return nil, fmt.Errorf("%w: include tip %s: %w", domain.ErrGraphLookup, id.Short(), err)
		}

		iter := object.NewCommitIterCTime(commit, seen, nil)
		err = iter.ForEach(func(c *object.Commit) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			seen[c.Hash] = true
			out = append(out, domain.CommitID(c.Hash.String()))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: walking from %s: %w", domain.ErrGraphLookup, id.Short(), err)
		}
	}

	s.logger.Debug(ctx, "computed reachability difference", map[string]interface{}{
		"include":  len(include),
		"exclude":  len(exclude),
		"resolved": len(out),
	})

	return out, nil
}

// ListTips snapshots the current target of every ref of the given kind.
// Annotated tag refs are peeled; a tag whose target is not a commit (a tag
// of a tree or blob) is skipped.
func (s *GoGitStore) ListTips(ctx context.Context, kind domain.RefKind) ([]domain.Tip, error) {
	var iter storer.ReferenceIter
	var err error
	switch kind {
	case domain.RefTag:
		iter, err = s.repo.Tags()
	default:
		iter, err = s.repo.Branches()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list refs: %w", err)
	}

	var tips []domain.Tip
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		hash, err := s.peelToCommit(ref.Hash())
		if err != nil {
			s.logger.Warn(ctx, "skipping unpeelable ref", map[string]interface{}{
				"ref":  ref.Name().String(),
				"hash": ref.Hash().String(),
			})
			return nil
		}
		tips = append(tips, domain.Tip{
			Name: ref.Name().String(),
			ID:   domain.CommitID(hash.String()),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk refs: %w", err)
	}

	return tips, nil
}

// NearestTag returns a git-describe style label for the revision: the tag
// name itself when the revision is tagged, otherwise
// "<tag>-<distance>-g<abbrev>" for the nearest tagged ancestor in
// commit-time order. Returns domain.ErrNoTagFound when no candidate tag is
// reachable or the revision does not resolve to a commit.
func (s *GoGitStore) NearestTag(
	ctx context.Context,
	id domain.CommitID,
	opts domain.DescribeOptions,
) (string, error) {
	tagged, err := s.taggedCommits(opts.Lightweight)
	if err != nil {
		return "", err
	}
	if len(tagged) == 0 {
		return "", domain.ErrNoTagFound
	}

	commit, err := s.commitObject(id)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrNoTagFound, id.Short())
	}

	var (
		found    string
		distance int
	)
	iter := object.NewCommitIterCTime(commit, nil, nil)
	err = iter.ForEach(func(c *object.Commit) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if name, ok := tagged[c.Hash]; ok {
			found = name
			return storer.ErrStop
		}
		distance++
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return "", fmt.Errorf("failed to walk history for describe: %w", err)
	}
	if found == "" {
		return "", domain.ErrNoTagFound
	}

	if distance == 0 {
		return found, nil
	}
	return fmt.Sprintf("%s-%d-g%s", found, distance, id.Short()), nil
}

// Close releases any resources held by the store.
// For go-git, this is a no-op as the repository doesn't hold persistent resources.
func (s *GoGitStore) Close() error {
	return nil
}

// taggedCommits maps tagged commit hashes to tag names. Annotated tags are
// always candidates; lightweight tags only when asked for. When both kinds
// tag the same commit the annotated name wins.
func (s *GoGitStore) taggedCommits(lightweight bool) (map[plumbing.Hash]string, error) {
	iter, err := s.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	tagged := make(map[plumbing.Hash]string)
	annotated := make(map[plumbing.Hash]bool)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		tag, err := s.repo.TagObject(ref.Hash())
		switch {
		case err == nil:
			if tag.TargetType != plumbing.CommitObject {
				return nil
			}
			tagged[tag.Target] = ref.Name().Short()
			annotated[tag.Target] = true
		case errors.Is(err, plumbing.ErrObjectNotFound):
			if lightweight && !annotated[ref.Hash()] {
				tagged[ref.Hash()] = ref.Name().Short()
			}
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk tags: %w", err)
	}

	return tagged, nil
}

// markAncestors walks the full ancestry of a commit, adding every visited
// hash to seen. Accumulating into the same map across calls means later
// walks stop as soon as they reach already-marked history.
func (s *GoGitStore) markAncestors(ctx context.Context, commit *object.Commit, seen map[plumbing.Hash]bool) error {
	iter := object.NewCommitPreorderIter(commit, seen, nil)
	err := iter.ForEach(func(c *object.Commit) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		seen[c.Hash] = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: marking ancestors of %s: %w",
			domain.ErrGraphLookup, commit.Hash.String()[:7], err)
	}
	return nil
}

// commitObject resolves an id to a commit, peeling annotated tag objects.
func (s *GoGitStore) commitObject(id domain.CommitID) (*object.Commit, error) {
	hash, err := s.peelToCommit(plumbing.NewHash(string(id)))
	if err != nil {
		return nil, err
	}
	return s.repo.CommitObject(hash)
}

// peelToCommit follows tag objects until a commit hash is reached.
func (s *GoGitStore) peelToCommit(hash plumbing.Hash) (plumbing.Hash, error) {
	for depth := 0; depth < 10; depth++ {
		tag, err := s.repo.TagObject(hash)
		if err != nil {
			if errors.Is(err, plumbing.ErrObjectNotFound) {
				return hash, nil
			}
			return plumbing.ZeroHash, err
		}
		hash = tag.Target
	}
	return plumbing.ZeroHash, fmt.Errorf("tag chain too deep at %s", hash.String())
}
