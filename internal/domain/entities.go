// Package domain defines the core business entities and interfaces for refspan.
package domain

import "strings"

// CommitID is the full hex hash of an object in the commit graph.
// Equality is exact string equality; no abbreviation is performed here.
type CommitID string

// ZeroID is the sentinel hash git uses to signal that a ref does not exist,
// supplied as the old id on ref creation and the new id on ref deletion.
const ZeroID CommitID = "0000000000000000000000000000000000000000"

// IsZero reports whether the id is the all-zero sentinel.
// An empty id is treated as the sentinel too: hooks invoked with a missing
// argument behave the same as ones invoked with the zero hash.
func (id CommitID) IsZero() bool {
	return id == "" || id == ZeroID
}

// Short returns the conventional 7-character abbreviation for log output.
func (id CommitID) Short() string {
	if len(id) <= 7 {
		return string(id)
	}
	return string(id[:7])
}

// UpdateKind classifies a ref transition.
type UpdateKind int

const (
	// KindCreate means the ref did not exist before this update.
	KindCreate UpdateKind = iota

	// KindUpdate means the ref moved from one existing commit to another.
	// This includes non-fast-forward moves; no ancestry relation is implied.
	KindUpdate

	// KindDelete means the ref no longer exists after this update.
	KindDelete
)

// String returns the lower-case update kind name.
func (k UpdateKind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ObjectType is the type of the object a revision resolves to.
type ObjectType string

const (
	ObjectCommit ObjectType = "commit"
	ObjectTag    ObjectType = "tag"
	ObjectTree   ObjectType = "tree"
	ObjectBlob   ObjectType = "blob"

	// ObjectUnknown is returned when an id cannot be resolved, for example
	// after the object has been garbage-collected. It is not an error;
	// consumers decide how to degrade.
	ObjectUnknown ObjectType = "unknown"
)

// RefKind selects a class of refs when listing tips.
type RefKind int

const (
	// RefBranch selects refs under refs/heads.
	RefBranch RefKind = iota

	// RefTag selects refs under refs/tags.
	RefTag
)

// UpdateEvent is one ref transition being processed by a hook invocation:
// the ref name plus its value before and after the push.
type UpdateEvent struct {
	// RefName is the full ref name, e.g. refs/heads/main.
	RefName string

	// OldID is the ref's value before the update; ZeroID on creation.
	OldID CommitID

	// NewID is the ref's value after the update; ZeroID on deletion.
	NewID CommitID
}

// Validate rejects events the resolver must never see.
// Both ids zero is a contract violation by the caller, not a ref state.
func (e UpdateEvent) Validate() error {
	if strings.TrimSpace(e.RefName) == "" {
		return ErrInvalidUpdateEvent
	}
	if e.OldID.IsZero() && e.NewID.IsZero() {
		return ErrInvalidUpdateEvent
	}
	return nil
}

// Kind classifies the event. Create is checked before Delete, so the
// invalid both-zero event (which Validate rejects) classifies as Create.
func (e UpdateEvent) Kind() UpdateKind {
	switch {
	case e.OldID.IsZero():
		return KindCreate
	case e.NewID.IsZero():
		return KindDelete
	default:
		return KindUpdate
	}
}

// OperativeID is the revision that best represents this event: the new id,
// except on deletion where only the old id still names anything.
func (e UpdateEvent) OperativeID() CommitID {
	if e.NewID.IsZero() {
		return e.OldID
	}
	return e.NewID
}

// RevToken is one signed entry of a RevisionRange: a commit to include, or
// (negated) a commit whose ancestry is excluded.
type RevToken struct {
	ID      CommitID
	Negated bool
}

// RevisionRange is the ordered, deduplicated signed-token sequence that
// specifies the commits introduced by one update: the new tip as a plain
// token followed by negated tokens for everything already known.
type RevisionRange []RevToken

// Append adds a token unless it is blank or already present.
func (r RevisionRange) Append(tok RevToken) RevisionRange {
	if tok.ID.IsZero() {
		return r
	}
	for _, t := range r {
		if t == tok {
			return r
		}
	}
	return append(r, tok)
}

// Tip is one ref's current target at snapshot time.
type Tip struct {
	// Name is the full ref name, e.g. refs/heads/main or refs/tags/v1.2.0.
	Name string

	// ID is the commit the ref pointed at when the snapshot was taken.
	// For annotated tags this is the peeled commit, not the tag object.
	ID CommitID
}

// ResolveInput carries the parameters for one range resolution.
type ResolveInput struct {
	// Event is the ref transition to resolve.
	Event UpdateEvent

	// ExcludeTagTips includes tag tips in the already-known exclusion set.
	// The default (false) excludes only branch tips, so tag pushes
	// re-surface commits already announced via a branch.
	ExcludeTagTips bool
}

// ResolveOutput is the result of one range resolution.
type ResolveOutput struct {
	// Event is the input event, echoed for logging and batch reporting.
	Event UpdateEvent

	// Kind is the classified update kind.
	Kind UpdateKind

	// OperativeID is the revision representing the event (new id, or old id
	// on deletion).
	OperativeID CommitID

	// OperativeType is the object type of OperativeID; ObjectUnknown when
	// the id no longer resolves.
	OperativeType ObjectType

	// Range is the signed-token specification of the update: the new tip
	// plus negated tokens for the old tip and the other refs' tips. Empty
	// for deletions.
	Range RevisionRange

	// Commits are the resolved newly introduced commit ids, newest first.
	// Empty for deletions and for pushes that introduce nothing new.
	Commits []CommitID
}

// DescribeOptions controls descriptor resolution.
type DescribeOptions struct {
	// Lightweight includes lightweight tags as description candidates in
	// addition to annotated ones (the --tags behavior).
	Lightweight bool

	// Override, when set, is described instead of the revision the caller
	// resolved from the event.
	Override CommitID
}

// Bounded-retry parameters applied when lock retrying is enabled without
// explicit values: one attempt per second for five minutes.
const (
	DefaultLockRetryIntervalSeconds = 1
	DefaultLockRetryTimeoutSeconds  = 300
)
