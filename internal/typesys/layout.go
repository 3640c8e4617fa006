package typesys

import (
	"fmt"

	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

// Layout is slot based: every field occupies one slot except inline structs,
// which occupy as many consecutive slots as their own instance layout. An
// instance field's Offset is its first slot inside the object, a static
// field's Offset is its first slot inside the class's static storage.

type layoutState uint8

const (
	layoutNone layoutState = iota
	layoutActive
	layoutDone
)

// Layouter finalizes class layouts. It is single-threaded and meant to run
// once while a type universe is being built.
type Layouter struct {
	state map[*Class]layoutState
}

// NewLayouter creates a Layouter.
func NewLayouter() *Layouter {
	return &Layouter{state: make(map[*Class]layoutState)}
}

// ComputeLayout assigns field offsets and computes HasReferences for c, its
// ancestors, its array element class and every struct it embeds. Classes with
// LayoutPending get offsets but keep SizeInited false.
func (l *Layouter) ComputeLayout(c *Class) error {
	if c == nil {
		return nil
	}
	switch l.state[c] {
	case layoutDone:
		return nil
	case layoutActive:
		return apperrors.Newf(apperrors.CodeInvalidInput, "class %s embeds itself", c.FullName())
	}
	l.state[c] = layoutActive

	if err := l.layout(c); err != nil {
		return err
	}

	c.SizeInited = !c.LayoutPending
	l.state[c] = layoutDone
	return nil
}

func (l *Layouter) layout(c *Class) error {
	if c.IsArray() {
		if err := l.ComputeLayout(c.ElementClass); err != nil {
			return err
		}
		e := c.ElementClass
		c.HasReferences = !e.IsValueType || e.HasReferences
		return nil
	}

	slots := 0
	hasRefs := false
	if c.Parent != nil {
		if err := l.ComputeLayout(c.Parent); err != nil {
			return err
		}
		slots = c.Parent.InstanceSlots
		hasRefs = c.Parent.HasReferences
	}

	statics := 0
	for _, f := range c.Fields {
		if f.Type == nil {
			return apperrors.Newf(apperrors.CodeInvalidInput, "field %s.%s has no type", c.FullName(), f.Name)
		}
		f.Parent = c

		width := 1
		fieldRefs := FieldCanContainReferences(f)
		if IsStruct(f.Type) {
			sc := StructClass(f.Type)
			if sc == nil {
				return apperrors.Newf(apperrors.CodeInvalidInput, "field %s.%s has no struct class", c.FullName(), f.Name)
			}
			if err := l.ComputeLayout(sc); err != nil {
				return fmt.Errorf("field %s.%s: %w", c.FullName(), f.Name, err)
			}
			width = sc.InstanceSlots
			fieldRefs = sc.HasReferences
		}

		switch {
		case f.IsThreadStatic():
			// no per-class or per-object storage
		case f.IsStatic():
			if f.IsLiteral() {
				f.Offset = 0
				continue
			}
			f.Offset = statics
			statics += width
			c.hasStaticFields = true
		default:
			f.Offset = slots
			slots += width
			hasRefs = hasRefs || fieldRefs
		}
	}

	c.InstanceSlots = slots
	c.StaticSlots = statics
	c.HasReferences = hasRefs
	return nil
}

// ComputeLayouts finalizes every class in classes.
func ComputeLayouts(classes ...*Class) error {
	l := NewLayouter()
	for _, c := range classes {
		if err := l.ComputeLayout(c); err != nil {
			return err
		}
	}
	return nil
}
