// Package managed is an in-memory managed heap: objects, arrays and class
// static storage laid out in slots. It implements liveness.Runtime and is what
// snapshots are loaded into.
//
// A Heap is built single-threaded and is read-only while scans run.
package managed

import (
	"fmt"
	"strings"

	"github.com/No1412lee/il2cpp-plus/internal/liveness"
	"github.com/No1412lee/il2cpp-plus/internal/typesys"
	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

type object struct {
	class  *typesys.Class
	slots  []liveness.ObjectRef
	length int
}

// Heap holds objects indexed by ObjectRef. Ref 0 is never allocated.
type Heap struct {
	corlib   *typesys.Corlib
	layouter *typesys.Layouter

	objects []object
	classes map[*typesys.Class]bool
	arrays  map[*typesys.Class]*typesys.Class

	owners  []*typesys.Class
	statics map[*typesys.Class][]liveness.ObjectRef
}

var _ liveness.Runtime = (*Heap)(nil)

// NewHeap creates an empty heap over the given core library.
func NewHeap(corlib *typesys.Corlib) *Heap {
	if corlib == nil {
		corlib = typesys.NewCorlib("mscorlib")
	}
	return &Heap{
		corlib:   corlib,
		layouter: typesys.NewLayouter(),
		objects:  make([]object, 1),
		classes:  make(map[*typesys.Class]bool),
		arrays:   make(map[*typesys.Class]*typesys.Class),
		statics:  make(map[*typesys.Class][]liveness.ObjectRef),
	}
}

// Corlib returns the core library the heap was created with.
func (h *Heap) Corlib() *typesys.Corlib {
	return h.corlib
}

// RegisterClass finalizes c's layout and allocates its static storage. Classes
// with static fields become static owners in registration order. Registering
// a class twice is a no-op.
func (h *Heap) RegisterClass(c *typesys.Class) error {
	if c == nil {
		return apperrors.New(apperrors.CodeInvalidInput, "class is nil")
	}
	if h.classes[c] {
		return nil
	}
	if err := h.layouter.ComputeLayout(c); err != nil {
		return err
	}
	h.classes[c] = true
	if c.HasStaticFields() {
		h.statics[c] = make([]liveness.ObjectRef, c.StaticSlots)
		h.owners = append(h.owners, c)
	}
	return nil
}

// AddStaticOwner appends an entry to the static owner list without
// allocating storage. A nil entry stands for an unloaded class slot.
func (h *Heap) AddStaticOwner(c *typesys.Class) {
	h.owners = append(h.owners, c)
}

// ArrayClass returns the single-dimension array class of elem.
func (h *Heap) ArrayClass(elem *typesys.Class) (*typesys.Class, error) {
	if ac, ok := h.arrays[elem]; ok {
		return ac, nil
	}
	if err := h.RegisterClass(elem); err != nil {
		return nil, err
	}
	ac := h.corlib.NewArrayClass(elem, 1)
	if err := h.RegisterClass(ac); err != nil {
		return nil, err
	}
	h.arrays[elem] = ac
	return ac, nil
}

// New allocates an instance of c with every reference null.
func (h *Heap) New(c *typesys.Class) (liveness.ObjectRef, error) {
	if c != nil && c.IsArray() {
		return liveness.Null, apperrors.Newf(apperrors.CodeInvalidInput, "%s is an array class, use NewArray", c.FullName())
	}
	if err := h.RegisterClass(c); err != nil {
		return liveness.Null, err
	}
	return h.alloc(object{class: c, slots: make([]liveness.ObjectRef, c.InstanceSlots)})
}

// NewArray allocates an array of length elements of class elem.
func (h *Heap) NewArray(elem *typesys.Class, length int) (liveness.ObjectRef, error) {
	if length < 0 {
		return liveness.Null, apperrors.Newf(apperrors.CodeInvalidInput, "negative array length %d", length)
	}
	ac, err := h.ArrayClass(elem)
	if err != nil {
		return liveness.Null, err
	}
	return h.alloc(object{class: ac, slots: make([]liveness.ObjectRef, length*elementWidth(elem)), length: length})
}

func (h *Heap) alloc(o object) (liveness.ObjectRef, error) {
	if uint64(len(h.objects)) > uint64(^uint32(0)) {
		return liveness.Null, apperrors.New(apperrors.CodeAllocExhausted, "object index space exhausted")
	}
	ref := liveness.ObjectRef(len(h.objects))
	h.objects = append(h.objects, o)
	return ref, nil
}

func elementWidth(elem *typesys.Class) int {
	if elem.IsValueType {
		return elem.InstanceSlots
	}
	return 1
}

// Len returns the number of allocated objects.
func (h *Heap) Len() int {
	return len(h.objects) - 1
}

// Each calls fn for every object in allocation order until fn returns false.
func (h *Heap) Each(fn func(ref liveness.ObjectRef, c *typesys.Class) bool) {
	for i := 1; i < len(h.objects); i++ {
		if !fn(liveness.ObjectRef(i), h.objects[i].class) {
			return
		}
	}
}

// SetRef stores target in the reference field of obj named by path. Nested
// struct fields are addressed with dots, e.g. "pos.target".
func (h *Heap) SetRef(obj liveness.ObjectRef, path string, target liveness.ObjectRef) error {
	o, err := h.object(obj)
	if err != nil {
		return err
	}
	if o.class.IsArray() {
		return apperrors.Newf(apperrors.CodeInvalidInput, "object %d is an array, use SetElement", obj)
	}
	off, err := resolve(o.class, path, false)
	if err != nil {
		return err
	}
	return h.store(o.slots, off, target)
}

// SetElement stores target in element i of a reference array, or in the
// field named by path of element i of a struct array.
func (h *Heap) SetElement(arr liveness.ObjectRef, i int, path string, target liveness.ObjectRef) error {
	o, err := h.object(arr)
	if err != nil {
		return err
	}
	if !o.class.IsArray() {
		return apperrors.Newf(apperrors.CodeInvalidInput, "object %d is not an array", arr)
	}
	if i < 0 || i >= o.length {
		return apperrors.Newf(apperrors.CodeInvalidInput, "index %d out of range [0, %d)", i, o.length)
	}
	elem := o.class.ElementClass
	base := i * elementWidth(elem)

	if !elem.IsValueType {
		if path != "" {
			return apperrors.Newf(apperrors.CodeInvalidInput, "reference array elements have no field %q", path)
		}
		return h.store(o.slots, base, target)
	}
	off, err := resolve(elem, path, false)
	if err != nil {
		return err
	}
	return h.store(o.slots, base+off, target)
}

// SetStatic stores target in the static reference field of c named by path.
func (h *Heap) SetStatic(c *typesys.Class, path string, target liveness.ObjectRef) error {
	if err := h.RegisterClass(c); err != nil {
		return err
	}
	storage, ok := h.statics[c]
	if !ok {
		return apperrors.Newf(apperrors.CodeNotFound, "%s has no static storage", c.FullName())
	}
	off, err := resolve(c, path, true)
	if err != nil {
		return err
	}
	return h.store(storage, off, target)
}

func (h *Heap) store(slots []liveness.ObjectRef, off int, target liveness.ObjectRef) error {
	if target != liveness.Null && h.ClassOf(target) == nil {
		return apperrors.Newf(apperrors.CodeNotFound, "object %d does not exist", target)
	}
	if off < 0 || off >= len(slots) {
		return apperrors.Newf(apperrors.CodeInvalidInput, "slot %d out of range", off)
	}
	slots[off] = target
	return nil
}

func (h *Heap) object(ref liveness.ObjectRef) (*object, error) {
	if ref == liveness.Null || int(ref) >= len(h.objects) {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "object %d does not exist", ref)
	}
	return &h.objects[ref], nil
}

// resolve returns the slot offset of a dotted reference field path in c.
// The first segment names a static field when static is set.
func resolve(c *typesys.Class, path string, static bool) (int, error) {
	parts := strings.Split(path, ".")
	off := 0
	cur := c
	for i, name := range parts {
		f := cur.FieldByName(name)
		if f == nil {
			return 0, apperrors.Newf(apperrors.CodeNotFound, "%s has no field %q", cur.FullName(), name)
		}
		wantStatic := static && i == 0
		if f.IsStatic() != wantStatic {
			return 0, apperrors.Newf(apperrors.CodeInvalidInput, "field %s.%s: static mismatch", cur.FullName(), name)
		}
		if f.IsThreadStatic() || f.IsLiteral() {
			return 0, apperrors.Newf(apperrors.CodeInvalidInput, "field %s.%s has no storage", cur.FullName(), name)
		}
		off += f.Offset

		last := i == len(parts)-1
		switch {
		case last && typesys.IsReference(f.Type):
			return off, nil
		case last:
			return 0, apperrors.Newf(apperrors.CodeInvalidInput, "field %s.%s is not a reference", cur.FullName(), name)
		case !typesys.IsStruct(f.Type):
			return 0, apperrors.Newf(apperrors.CodeInvalidInput, "field %s.%s is not a struct", cur.FullName(), name)
		}
		cur = typesys.StructClass(f.Type)
	}
	return 0, fmt.Errorf("empty field path")
}

// ObjectCapacity implements liveness.Runtime.
func (h *Heap) ObjectCapacity() int {
	return len(h.objects)
}

// ClassOf implements liveness.Runtime.
func (h *Heap) ClassOf(obj liveness.ObjectRef) *typesys.Class {
	if obj == liveness.Null || int(obj) >= len(h.objects) {
		return nil
	}
	return h.objects[obj].class
}

// ArrayLength implements liveness.Runtime.
func (h *Heap) ArrayLength(arr liveness.ObjectRef) int {
	if arr == liveness.Null || int(arr) >= len(h.objects) {
		return 0
	}
	return h.objects[arr].length
}

// ElementLocation implements liveness.Runtime.
func (h *Heap) ElementLocation(arr liveness.ObjectRef, i int) liveness.Location {
	width := 1
	if c := h.ClassOf(arr); c != nil && c.IsArray() {
		width = elementWidth(c.ElementClass)
	}
	return liveness.Location{Object: arr, Offset: i * width}
}

// LoadRef implements liveness.Runtime. Out-of-range locations read as null.
func (h *Heap) LoadRef(loc liveness.Location) liveness.ObjectRef {
	var slots []liveness.ObjectRef
	if loc.Static != nil {
		slots = h.statics[loc.Static]
	} else if loc.Object != liveness.Null && int(loc.Object) < len(h.objects) {
		slots = h.objects[loc.Object].slots
	}
	if loc.Offset < 0 || loc.Offset >= len(slots) {
		return liveness.Null
	}
	return slots[loc.Offset]
}

// StaticOwners implements liveness.Runtime.
func (h *Heap) StaticOwners() []*typesys.Class {
	return h.owners
}

// CorlibImage implements liveness.Runtime.
func (h *Heap) CorlibImage() *typesys.Image {
	return h.corlib.Image
}
