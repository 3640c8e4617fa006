// Package typesys describes managed runtime types as the liveness scanner
// sees them: classes, their fields and the declared types of those fields.
//
// Descriptors are built once, finalized with ComputeLayout, and are read-only
// afterwards. The one exception is the type hierarchy table, which is filled
// lazily and safely from any goroutine by SetupTypeHierarchy.
package typesys

import (
	"strings"
	"sync"
)

// TypeKind classifies the declared type of a field.
type TypeKind int

const (
	// KindPrimitive covers integers, floats, bools, chars and pointers.
	KindPrimitive TypeKind = iota
	// KindString is System.String. Strings hold no references.
	KindString
	// KindClass is a reference to an instance of a class.
	KindClass
	// KindInterface is a reference typed by an interface.
	KindInterface
	// KindObject is a reference typed as System.Object.
	KindObject
	// KindArray is a reference to an array.
	KindArray
	// KindValueType is an inline struct or enum.
	KindValueType
	// KindGenericInst is a generic instantiation, either a class or a struct.
	KindGenericInst
)

var kindNames = map[TypeKind]string{
	KindPrimitive:   "primitive",
	KindString:      "string",
	KindClass:       "class",
	KindInterface:   "interface",
	KindObject:      "object",
	KindArray:       "array",
	KindValueType:   "struct",
	KindGenericInst: "generic",
}

// String returns the kind name used by snapshot documents.
func (k TypeKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseTypeKind parses a kind name. ok is false for unknown names.
func ParseTypeKind(s string) (TypeKind, bool) {
	s = strings.ToLower(s)
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	if s == "valuetype" || s == "enum" {
		return KindValueType, true
	}
	return KindPrimitive, false
}

// Attr holds field attribute flags.
type Attr uint16

const (
	// AttrStatic marks a field stored once per class.
	AttrStatic Attr = 1 << iota
	// AttrLiteral marks a compile-time constant with no storage.
	AttrLiteral
)

// ThreadStaticOffset is the offset sentinel of a thread-static field.
const ThreadStaticOffset = -1

// Image is a loaded assembly image.
type Image struct {
	Name string
}

// GenericInst is a generic instantiation. Cached is the concrete class the
// runtime built for it.
type GenericInst struct {
	Definition *Class
	Cached     *Class
}

// Type is the declared type of a field.
type Type struct {
	Kind    TypeKind
	Class   *Class
	Generic *GenericInst
	Attrs   Attr
}

// Field is a field declared by a class.
type Field struct {
	Name   string
	Type   *Type
	Offset int
	Parent *Class
}

// Class is a runtime class descriptor.
type Class struct {
	Name      string
	Namespace string
	Image     *Image
	Parent    *Class
	Fields    []*Field

	IsValueType bool
	IsEnum      bool
	IsInterface bool

	// ElementClass and Rank describe array classes.
	ElementClass *Class
	Rank         int

	// Filled by ComputeLayout.
	HasReferences   bool
	SizeInited      bool
	InstanceSlots   int
	StaticSlots     int
	LayoutPending   bool
	hasStaticFields bool

	hierarchyOnce sync.Once
	hierarchy     []*Class
}

// IsArray reports whether c is an array class.
func (c *Class) IsArray() bool {
	return c.ElementClass != nil
}

// FullName returns Namespace.Name, or Name for the global namespace. Array
// classes render as Element[] with one comma per extra dimension.
func (c *Class) FullName() string {
	if c == nil {
		return ""
	}
	if c.IsArray() {
		rank := c.Rank
		if rank < 1 {
			rank = 1
		}
		return c.ElementClass.FullName() + "[" + strings.Repeat(",", rank-1) + "]"
	}
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + "." + c.Name
}

// String implements fmt.Stringer.
func (c *Class) String() string {
	return c.FullName()
}

// HasStaticFields reports whether c declares static storage.
func (c *Class) HasStaticFields() bool {
	return c.hasStaticFields
}

// IsStatic reports whether f is stored per class.
func (f *Field) IsStatic() bool {
	return f.Type != nil && f.Type.Attrs&AttrStatic != 0
}

// IsLiteral reports whether f is a constant without storage.
func (f *Field) IsLiteral() bool {
	return f.Type != nil && f.Type.Attrs&AttrLiteral != 0
}

// IsThreadStatic reports whether f carries the thread-static offset sentinel.
func (f *Field) IsThreadStatic() bool {
	return f.Offset == ThreadStaticOffset
}

// IsNormalStatic reports whether f is a static field with per-class storage:
// static, not thread-static and not literal.
func IsNormalStatic(f *Field) bool {
	return f.IsStatic() && !f.IsThreadStatic() && !f.IsLiteral()
}

// IsStruct reports whether t is an inline non-enum value type, including
// generic struct instantiations.
func IsStruct(t *Type) bool {
	switch t.Kind {
	case KindValueType:
		return t.Class != nil && !t.Class.IsEnum
	case KindGenericInst:
		c := t.Generic.concrete()
		return c != nil && c.IsValueType && !c.IsEnum
	}
	return false
}

// IsReference reports whether a value of type t is an object reference.
func IsReference(t *Type) bool {
	switch t.Kind {
	case KindString, KindClass, KindInterface, KindObject, KindArray:
		return true
	case KindGenericInst:
		c := t.Generic.concrete()
		return c != nil && !c.IsValueType
	}
	return false
}

// FieldCanContainReferences reports whether the storage of f may hold an
// object reference the scanner has to follow. Nested structs are assumed to
// carry references; literals and strings never do.
func FieldCanContainReferences(f *Field) bool {
	if f.Type == nil {
		return false
	}
	if IsStruct(f.Type) {
		return true
	}
	if f.IsLiteral() {
		return false
	}
	if f.Type.Kind == KindString {
		return false
	}
	return IsReference(f.Type)
}

// StructClass returns the concrete class of a struct-typed field, using the
// cached class of a generic instantiation.
func StructClass(t *Type) *Class {
	if t.Kind == KindGenericInst {
		return t.Generic.concrete()
	}
	return t.Class
}

func (g *GenericInst) concrete() *Class {
	if g == nil {
		return nil
	}
	if g.Cached != nil {
		return g.Cached
	}
	return g.Definition
}
