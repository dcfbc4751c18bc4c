package filter

import (
	"errors"
	"fmt"
)

// ErrInvariant is matched by every *InvariantError.
var ErrInvariant = errors.New("filter invariant violated")

// InvariantKind classifies an internal consistency failure.
type InvariantKind int

const (
	// ClusterConflict: a protein was reached from two different clusters.
	ClusterConflict InvariantKind = iota + 1
	// EmptyCoverage: a candidate protein explains no candidate PSM.
	EmptyCoverage
	// GroupMismatch: members of one protein group explain different PSMs,
	// or one protein was reported under two group keys.
	GroupMismatch
	// OutsideScope: evidence was returned for a protein that is not a candidate.
	OutsideScope
)

func (k InvariantKind) String() string {
	switch k {
	case ClusterConflict:
		return "cluster conflict"
	case EmptyCoverage:
		return "empty coverage"
	case GroupMismatch:
		return "protein group mismatch"
	case OutsideScope:
		return "evidence outside candidate scope"
	default:
		return "unknown"
	}
}

// InvariantError aborts a run before anything is published.
type InvariantError struct {
	Kind                 InvariantKind
	ProteinID            int64
	ClusterID            int64
	ConflictingClusterID int64
	Group                string
}

func (e *InvariantError) Error() string {
	switch e.Kind {
	case ClusterConflict:
		return fmt.Sprintf("%s: protein %d in cluster %d reassigned to cluster %d",
			e.Kind, e.ProteinID, e.ClusterID, e.ConflictingClusterID)
	case GroupMismatch:
		return fmt.Sprintf("%s: protein %d in group %q", e.Kind, e.ProteinID, e.Group)
	default:
		return fmt.Sprintf("%s: protein %d", e.Kind, e.ProteinID)
	}
}

func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}
