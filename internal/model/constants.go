package model

// ElementType 보드 요소 타입
type ElementType string

const (
	ElementText   ElementType = "text"
	ElementShape  ElementType = "shape"
	ElementSticky ElementType = "sticky"
	ElementImage  ElementType = "image"
	ElementVideo  ElementType = "video"
	ElementFrame  ElementType = "frame"
)

// String 메서드
func (t ElementType) String() string {
	return string(t)
}

// Valid reports whether t is one of the known element types.
func (t ElementType) Valid() bool {
	switch t {
	case ElementText, ElementShape, ElementSticky, ElementImage, ElementVideo, ElementFrame:
		return true
	}
	return false
}

// ShapeKind 도형 종류
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeEllipse   ShapeKind = "ellipse"
	ShapeTriangle  ShapeKind = "triangle"
	ShapeDiamond   ShapeKind = "diamond"
	ShapeLine      ShapeKind = "line"
	ShapeArrow     ShapeKind = "arrow"
)

func (k ShapeKind) String() string {
	return string(k)
}

// Valid reports whether k is a known shape kind.
func (k ShapeKind) Valid() bool {
	switch k {
	case ShapeRectangle, ShapeEllipse, ShapeTriangle, ShapeDiamond, ShapeLine, ShapeArrow:
		return true
	}
	return false
}

// BoardRole 보드 참여 권한
type BoardRole string

const (
	BoardRoleOwner  BoardRole = "OWNER"
	BoardRoleEditor BoardRole = "EDITOR"
	BoardRoleViewer BoardRole = "VIEWER"
)

func (r BoardRole) String() string {
	return string(r)
}

// CanEdit reports whether the role may mutate elements.
func (r BoardRole) CanEdit() bool {
	return r == BoardRoleOwner || r == BoardRoleEditor
}

// Geometry limits.
const (
	MinElementSize = 10.0
)
