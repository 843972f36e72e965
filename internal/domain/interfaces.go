// Package domain defines the core business entities and interfaces for refspan.
// This package contains no external dependencies and represents the innermost layer
// of the CLEAN architecture.
package domain

import (
	"context"
	"errors"
)

// Domain errors for graph access, range resolution and locking.
var (
	// ErrRepositoryNotFound indicates the specified path is not a valid Git repository.
	ErrRepositoryNotFound = errors.New("git repository not found at specified path")

	// ErrInvalidUpdateEvent indicates an event with both ids zero or an
	// empty ref name; such events must be rejected before resolution.
	ErrInvalidUpdateEvent = errors.New("invalid update event: old and new id cannot both be the zero id")

	// ErrGraphLookup indicates the graph store could not resolve an id or
	// compute reachability. Fatal for the ref being processed; a batch
	// caller continues with its remaining refs.
	ErrGraphLookup = errors.New("commit graph lookup failed")

	// ErrRefNotFound indicates a named ref does not exist in the repository.
	ErrRefNotFound = errors.New("ref not found")

	// ErrNoTagFound indicates no tag is reachable from a revision.
	// Describers treat it as a signal to fall back to the raw id.
	ErrNoTagFound = errors.New("no tag reachable from revision")

	// ErrLockBusy indicates another process holds the lock. This is a
	// normal control-flow outcome, not a failure of the lock itself.
	ErrLockBusy = errors.New("lock is held by another process")
)

// GraphStore provides read-only access to the commit DAG and its refs.
// Implementations never mutate the repository.
type GraphStore interface {
	// ResolveRef returns the commit a ref currently points at, peeling
	// annotated tags. Returns ErrRefNotFound if the ref does not exist.
	ResolveRef(ctx context.Context, name string) (CommitID, error)

	// TypeOf returns the object type of an id. An unresolvable id yields
	// ObjectUnknown with a nil error; that case must be tolerated.
	TypeOf(ctx context.Context, id CommitID) (ObjectType, error)

	// ReachableFrom returns every commit reachable from the include set but
	// not reachable from any member of the exclude set, newest first.
	// Exclude entries that do not resolve are skipped; an include entry
	// that does not resolve is an ErrGraphLookup.
	ReachableFrom(ctx context.Context, include, exclude []CommitID) ([]CommitID, error)

	// ListTips snapshots the current target of every ref of the given
	// kind. The snapshot is taken without any lock; see the resolver for
	// the consistency this implies.
	ListTips(ctx context.Context, kind RefKind) ([]Tip, error)

	// NearestTag returns a tag-relative description of the revision, or
	// ErrNoTagFound when no candidate tag is reachable.
	NearestTag(ctx context.Context, id CommitID, opts DescribeOptions) (string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Resolver computes the revision range introduced by one ref update.
type Resolver interface {
	// Resolve classifies the event and computes its RevisionRange and the
	// resolved newly introduced commits.
	Resolve(ctx context.Context, input ResolveInput) (*ResolveOutput, error)
}

// Describer produces the most human-meaningful label for a revision.
type Describer interface {
	// Describe returns the nearest-tag description of the revision, or the
	// raw id when none exists. It never fails outwardly.
	Describe(ctx context.Context, id CommitID, opts DescribeOptions) string
}

// Locker is a mutual-exclusion token shared across hook processes.
type Locker interface {
	// Acquire attempts to take the lock. Returns ErrLockBusy when another
	// process holds it and the retry policy is exhausted.
	Acquire(ctx context.Context) error

	// Release frees the lock if this process holds it; otherwise a no-op.
	Release() error

	// Held reports whether this process currently holds the lock.
	Held() bool
}

// SerialCounter is the shared push counter guarded by a Locker.
type SerialCounter interface {
	// Next atomically increments the counter and returns the new value.
	Next(ctx context.Context) (uint64, error)
}

// OutputWriter writes resolution results to an output destination.
type OutputWriter interface {
	// WriteCommits writes the resolved commit ids, one per line.
	WriteCommits(commits []CommitID) error

	// WriteRange writes the signed-token range, one token per line, with
	// negated tokens prefixed by "^".
	WriteRange(rng RevisionRange) error
}
