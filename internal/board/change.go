package board

import (
	"errors"

	"realtime-board/internal/model"
)

var (
	// ErrElementNotFound is returned when an id is not in the store.
	ErrElementNotFound = errors.New("element not found")

	// ErrInvalidElement is returned when an element fails validation.
	ErrInvalidElement = errors.New("invalid element")
)

// Origin tells observers where a mutation came from.
type Origin int

const (
	// OriginLocal is a mutation made by the local user.
	OriginLocal Origin = iota
	// OriginHistory is an undo/redo restore. It is locally initiated and
	// visible to remote collaborators like any local edit.
	OriginHistory
	// OriginRemote is a merge of another collaborator's event.
	OriginRemote
	// OriginReload is a refetch from the authoritative source.
	OriginReload
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginHistory:
		return "history"
	case OriginRemote:
		return "remote"
	case OriginReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Publishable reports whether mutations of this origin must be sent to
// other collaborators.
func (o Origin) Publishable() bool {
	return o == OriginLocal || o == OriginHistory
}

// ChangeKind 변경 종류
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota
	ChangeUpdated
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change describes one element mutation. For created and updated changes
// Element is the state after the mutation; for removed it is the last state.
// Patch holds exactly the fields that changed on update.
type Change struct {
	Kind    ChangeKind
	Origin  Origin
	Element model.BoardElement
	Patch   model.Patch
}

// Observer receives the changes of one store operation, in order. It runs
// synchronously after the store lock is released and must not block.
type Observer func(changes []Change)
