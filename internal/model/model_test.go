package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"realtime-board/internal/geom"
)

func TestNewElementDefaults(t *testing.T) {
	e, err := NewElement("board-1", ElementSticky, geom.Point{X: 12, Y: 34}, "user-1")
	if err != nil {
		t.Fatalf("NewElement() error = %v", err)
	}
	if e.ID == "" {
		t.Error("expected generated id")
	}
	if e.PositionX != 12 || e.PositionY != 34 || e.Width != 200 || e.Height != 200 {
		t.Errorf("unexpected geometry %+v", e.Geometry)
	}
	if _, ok := e.Content.(StickyContent); !ok {
		t.Errorf("content = %T, want StickyContent", e.Content)
	}
	if _, ok := e.Style.(StickyStyle); !ok {
		t.Errorf("style = %T, want StickyStyle", e.Style)
	}
	if err := e.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	if _, err := NewElement("board-1", ElementType("widget"), geom.Point{}, "u"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestValidateRejectsMismatchedPayload(t *testing.T) {
	e, _ := NewElement("b", ElementText, geom.Point{}, "u")
	e.Style = ShapeStyle{}
	if err := e.Validate(); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("Validate() = %v, want ErrPayloadMismatch", err)
	}

	img, _ := NewElement("b", ElementVideo, geom.Point{}, "u")
	img.Content = MediaContent{URL: "https://example.com/a.mp4"}
	if err := img.Validate(); err != nil {
		t.Errorf("media content should be valid on video: %v", err)
	}
}

func TestGeometryNormalize(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	tests := []struct {
		name string
		in   Geometry
		want Geometry
	}{
		{
			name: "clamps size and folds rotation",
			in:   Geometry{Width: 3, Height: 50, RotationDegrees: -45},
			want: Geometry{Width: MinElementSize, Height: 50, RotationDegrees: 315},
		},
		{
			name: "non-finite size",
			in:   Geometry{PositionX: 5, Width: nan, Height: inf},
			want: Geometry{PositionX: 5, Width: MinElementSize, Height: MinElementSize},
		},
		{
			name: "non-finite position and rotation",
			in:   Geometry{PositionX: -inf, PositionY: nan, Width: 20, Height: 20, RotationDegrees: nan},
			want: Geometry{Width: 20, Height: 20},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize(); got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestElementJSONPicksVariantByType(t *testing.T) {
	data := []byte(`{
		"id": "f1", "board_id": "b", "type": "frame",
		"position_x": 1, "position_y": 2, "width": 400, "height": 300,
		"rotation_degrees": 0, "z_index": 4, "locked": true,
		"content": {"title": "Sprint", "children": ["a", "b"]},
		"style": {"background": "#FFF", "border_color": "nope", "border_width": 2}
	}`)

	var e BoardElement
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	fc, ok := e.Content.(FrameContent)
	if !ok {
		t.Fatalf("content = %T, want FrameContent", e.Content)
	}
	if fc.Title != "Sprint" || len(fc.Children) != 2 {
		t.Errorf("content = %+v", fc)
	}
	fs, ok := e.Style.(FrameStyle)
	if !ok {
		t.Fatalf("style = %T, want FrameStyle", e.Style)
	}
	if fs.Background != "#ffffff" {
		t.Errorf("background = %q, want normalized #ffffff", fs.Background)
	}
	if fs.BorderColor != "#9ca3af" {
		t.Errorf("invalid border color should fall back to default, got %q", fs.BorderColor)
	}
	if e.ZIndex != 4 || !e.Locked {
		t.Errorf("unexpected fields %+v", e)
	}

	if err := json.Unmarshal([]byte(`{"id":"x","type":"widget"}`), &e); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestDiffAndFields(t *testing.T) {
	before, _ := NewElement("b", ElementShape, geom.Point{}, "u")
	after := before.Clone()
	after.PositionX = 40
	after.Style = ShapeStyle{Fill: "#ff0000", Stroke: "#000000", StrokeWidth: 1, Opacity: 1}

	p := Diff(before, after)
	got := p.Fields()
	want := []string{FieldPositionX, FieldStyle}
	if len(got) != len(want) {
		t.Fatalf("Fields() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Fields()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if !Diff(before, before.Clone()).IsEmpty() {
		t.Error("diff of identical elements should be empty")
	}
}

func TestEventDecodesPatchByElementType(t *testing.T) {
	ev := Event{
		Kind:        EventElementUpdated,
		BoardID:     "b",
		Origin:      "c1",
		ElementID:   "e1",
		ElementType: ElementShape,
		Patch: &Patch{
			Width: Float(80),
			Style: ShapeStyle{Fill: "#0000ff", Stroke: "#000000", StrokeWidth: 1, Opacity: 1},
		},
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Patch == nil || got.Patch.Width == nil || *got.Patch.Width != 80 {
		t.Fatalf("patch width lost: %+v", got.Patch)
	}
	style, ok := got.Patch.Style.(ShapeStyle)
	if !ok || style.Fill != "#0000ff" {
		t.Errorf("patch style = %#v", got.Patch.Style)
	}
	if got.Patch.Content != nil {
		t.Errorf("unset content should stay nil, got %#v", got.Patch.Content)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		ev      Event
		wantErr bool
	}{
		{"missing board", Event{Kind: EventElementRemoved, IDs: []string{"a"}}, true},
		{"remove without ids", Event{Kind: EventElementRemoved, BoardID: "b"}, true},
		{"cursor without presence", Event{Kind: EventCursorUpdate, BoardID: "b"}, true},
		{"cursor ok", Event{Kind: EventCursorUpdate, BoardID: "b", Presence: &Presence{CollaboratorID: "c"}}, false},
		{"unknown kind", Event{Kind: "shout", BoardID: "b"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.ev.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordConversion(t *testing.T) {
	e, _ := NewElement("board", ElementText, geom.Point{X: 5, Y: 6}, "u")
	e.Content = TextContent{Text: "hello"}
	e.ZIndex = 7

	rec, err := ToRecord(e)
	if err != nil {
		t.Fatalf("ToRecord() error = %v", err)
	}
	if rec.Type != "text" || rec.ZIndex != 7 {
		t.Errorf("unexpected record %+v", rec)
	}

	back, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord() error = %v", err)
	}
	if tc, ok := back.Content.(TextContent); !ok || tc.Text != "hello" {
		t.Errorf("content = %#v", back.Content)
	}

	rec.Type = "bogus"
	if _, err := FromRecord(rec); err == nil {
		t.Error("expected error for unknown stored type")
	}
}
