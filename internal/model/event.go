package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"realtime-board/internal/geom"
)

// EventKind 실시간 채널 이벤트 종류
type EventKind string

const (
	EventElementCreated  EventKind = "element_created"
	EventElementUpdated  EventKind = "element_updated"
	EventElementRemoved  EventKind = "element_removed"
	EventCursorUpdate    EventKind = "cursor_update"
	EventSelectionUpdate EventKind = "selection_update"
	EventPresenceJoin    EventKind = "presence_join"
	EventPresenceLeave   EventKind = "presence_leave"
)

func (k EventKind) String() string {
	return string(k)
}

// IsElement reports whether the event mutates elements.
func (k EventKind) IsElement() bool {
	return k == EventElementCreated || k == EventElementUpdated || k == EventElementRemoved
}

// IsPresence reports whether the event only carries presence state.
func (k EventKind) IsPresence() bool {
	switch k {
	case EventCursorUpdate, EventSelectionUpdate, EventPresenceJoin, EventPresenceLeave:
		return true
	}
	return false
}

// Presence 접속 중인 협업자 상태 (휘발성, 영속화하지 않음)
type Presence struct {
	CollaboratorID string      `json:"collaborator_id"`
	UserID         int64       `json:"user_id,omitempty"`
	DisplayName    string      `json:"display_name"`
	Color          string      `json:"color"`
	Cursor         *geom.Point `json:"cursor"`
	SelectedIDs    []string    `json:"selected_ids"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Clone returns a deep copy.
func (p Presence) Clone() Presence {
	if p.Cursor != nil {
		c := *p.Cursor
		p.Cursor = &c
	}
	p.SelectedIDs = slices.Clone(p.SelectedIDs)
	return p
}

// Event is the envelope published on a board channel. Payloads carry full
// changed-field sets.
type Event struct {
	Kind    EventKind `json:"kind"`
	BoardID string    `json:"board_id"`
	// Origin is the collaborator id of the publishing connection.
	Origin string    `json:"origin"`
	Seq    uint64    `json:"seq,omitempty"`
	SentAt time.Time `json:"sent_at"`

	// element_created
	Element *BoardElement `json:"element,omitempty"`
	// element_updated
	ElementID   string      `json:"element_id,omitempty"`
	ElementType ElementType `json:"element_type,omitempty"`
	Patch       *Patch      `json:"patch,omitempty"`
	// element_removed
	IDs []string `json:"ids,omitempty"`

	// cursor_update, selection_update, presence_join, presence_leave
	Presence *Presence `json:"presence,omitempty"`
}

type eventJSON struct {
	Kind        EventKind       `json:"kind"`
	BoardID     string          `json:"board_id"`
	Origin      string          `json:"origin"`
	Seq         uint64          `json:"seq,omitempty"`
	SentAt      time.Time       `json:"sent_at"`
	Element     *BoardElement   `json:"element,omitempty"`
	ElementID   string          `json:"element_id,omitempty"`
	ElementType ElementType     `json:"element_type,omitempty"`
	Patch       json.RawMessage `json:"patch,omitempty"`
	IDs         []string        `json:"ids,omitempty"`
	Presence    *Presence       `json:"presence,omitempty"`
}

// UnmarshalJSON decodes the patch using the event's element type.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event{
		Kind:        raw.Kind,
		BoardID:     raw.BoardID,
		Origin:      raw.Origin,
		Seq:         raw.Seq,
		SentAt:      raw.SentAt,
		Element:     raw.Element,
		ElementID:   raw.ElementID,
		ElementType: raw.ElementType,
		IDs:         raw.IDs,
		Presence:    raw.Presence,
	}
	if len(raw.Patch) > 0 && string(raw.Patch) != "null" {
		if !raw.ElementType.Valid() {
			return fmt.Errorf("patch without valid element_type %q", raw.ElementType)
		}
		p, err := DecodePatch(raw.ElementType, raw.Patch)
		if err != nil {
			return err
		}
		e.Patch = &p
	}
	return nil
}

// Validate checks that the payload required by the kind is present.
func (e Event) Validate() error {
	if e.BoardID == "" {
		return fmt.Errorf("%s: board_id is required", e.Kind)
	}
	switch e.Kind {
	case EventElementCreated:
		if e.Element == nil {
			return fmt.Errorf("%s: element is required", e.Kind)
		}
		return e.Element.Validate()
	case EventElementUpdated:
		if e.ElementID == "" || e.Patch == nil {
			return fmt.Errorf("%s: element_id and patch are required", e.Kind)
		}
	case EventElementRemoved:
		if len(e.IDs) == 0 {
			return fmt.Errorf("%s: ids are required", e.Kind)
		}
	case EventCursorUpdate, EventSelectionUpdate, EventPresenceJoin, EventPresenceLeave:
		if e.Presence == nil || e.Presence.CollaboratorID == "" {
			return fmt.Errorf("%s: presence.collaborator_id is required", e.Kind)
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}
