// Package liveness enumerates every managed object reachable from a root
// object or from the static fields of all loaded classes.
//
// A Session walks the object graph with an explicit work queue, marks each
// object it discovers in a MarkSet, and hands the discovered objects that
// match its filter class to a collector in batches. Several sessions sharing
// one MarkSet can scan the static roots in parallel and steal queued work
// from each other; RunPass drives such a pass.
//
// Scans assume a stopped world: nothing may mutate the heap while a session
// is seeding or draining.
package liveness

import "github.com/No1412lee/il2cpp-plus/internal/typesys"

// ObjectRef identifies a managed object. The zero value is the null reference.
type ObjectRef uint32

// Null is the null object reference.
const Null ObjectRef = 0

// Location addresses the start of a storage region: the instance data of an
// object (or array element), or the static storage of a class. Field offsets
// are relative to it.
type Location struct {
	Object ObjectRef
	Static *typesys.Class
	Offset int
}

// ObjectLocation returns the location of obj's instance data.
func ObjectLocation(obj ObjectRef) Location {
	return Location{Object: obj}
}

// StaticLocation returns the location of c's static storage.
func StaticLocation(c *typesys.Class) Location {
	return Location{Static: c}
}

// Field returns the location of field f inside the region starting at l.
func (l Location) Field(f *typesys.Field) Location {
	l.Offset += f.Offset
	return l
}

// Runtime is the view of the managed heap and loaded types a session needs.
// All methods must be safe for concurrent readers.
type Runtime interface {
	// ObjectCapacity returns an exclusive upper bound for object refs.
	ObjectCapacity() int

	// ClassOf returns the class of a live object.
	ClassOf(obj ObjectRef) *typesys.Class

	// ArrayLength returns the number of elements of an array object.
	ArrayLength(arr ObjectRef) int

	// ElementLocation returns the location of element i of an array.
	ElementLocation(arr ObjectRef, i int) Location

	// LoadRef reads the object reference stored at loc.
	LoadRef(loc Location) ObjectRef

	// StaticOwners returns the classes that own static storage, in a stable
	// order. Entries may be nil.
	StaticOwners() []*typesys.Class

	// CorlibImage returns the core library image, whose statics are never
	// scanned.
	CorlibImage() *typesys.Image
}
