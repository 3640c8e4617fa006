package liveness

import (
	"time"

	"github.com/No1412lee/il2cpp-plus/internal/typesys"
	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

// drain traverses queued objects until the local buffer and the shared queue
// are both empty. The local buffer is served first.
func (s *Session) drain() error {
	s.drainDepth++
	defer func() { s.drainDepth-- }()

	for {
		obj, ok := s.local.Pop()
		if !ok {
			obj, ok = s.queue.Pop()
			if !ok {
				return nil
			}
		}
		if obj == Null {
			continue
		}
		if err := s.traverse(obj); err != nil {
			return err
		}
	}
}

// traverse visits the elements of an array or the fields of an object.
func (s *Session) traverse(obj ObjectRef) error {
	class := s.rt.ClassOf(obj)

	var start time.Time
	if s.profiler != nil {
		start = s.clock.Now()
	}

	var err error
	if class != nil && class.IsArray() {
		err = s.visitArray(obj, class)
	} else {
		_, err = s.visitFields(ObjectLocation(obj), false, class, 0)
	}
	s.stats.Traversed++

	if s.profiler != nil {
		s.profiler.Observe(PhaseTraverseObject, ClassName(class), s.clock.Since(start))
	}
	return err
}

// visitFields walks the reference-capable instance fields stored at base.
// An object view walks class and all its ancestors; a value view (an inline
// struct) walks only class. depth counts struct nesting. It reports whether
// any new object was queued.
func (s *Session) visitFields(base Location, valueView bool, class *typesys.Class, depth int) (bool, error) {
	if depth > MaxRecursionDepth {
		return false, apperrors.Newf(apperrors.CodeRecursionDepth,
			"struct %s nested deeper than %d", class.FullName(), MaxRecursionDepth)
	}
	if class == nil {
		return false, apperrors.New(apperrors.CodeLayoutNotFinalized, "field walk reached a class with no descriptor")
	}
	if !class.SizeInited {
		return false, apperrors.Newf(apperrors.CodeLayoutNotFinalized, "layout of %s is not finalized", class.FullName())
	}

	added := false
	for c := class; c != nil; c = c.Parent {
		for _, f := range c.Fields {
			if f.IsStatic() || !typesys.FieldCanContainReferences(f) {
				continue
			}

			if typesys.IsStruct(f.Type) {
				queued, err := s.visitFields(base.Field(f), true, typesys.StructClass(f.Type), depth+1)
				added = added || queued
				if err != nil {
					return added, err
				}
				continue
			}

			if f.IsThreadStatic() {
				return added, apperrors.Newf(apperrors.CodeThreadStaticField,
					"instance field %s.%s carries the thread-static offset", c.FullName(), f.Name)
			}

			queued, err := s.addCandidate(s.rt.LoadRef(base.Field(f)))
			added = added || queued
			if err != nil {
				return added, err
			}
		}
		if valueView {
			break
		}
	}
	return added, nil
}

// elementsMayReference reports whether array elements of class elem can hold
// a reference: any reference type, or a struct with a reference-capable field.
func elementsMayReference(elem *typesys.Class) bool {
	if elem == nil {
		return false
	}
	if !elem.IsValueType {
		return true
	}
	for _, f := range elem.Fields {
		if !f.IsStatic() && typesys.FieldCanContainReferences(f) {
			return true
		}
	}
	return false
}

func (s *Session) visitArray(arr ObjectRef, class *typesys.Class) error {
	elem := class.ElementClass
	if !elementsMayReference(elem) {
		return nil
	}

	n := s.rt.ArrayLength(arr)
	queued := 0
	for i := 0; i < n; i++ {
		var added bool
		var err error
		if elem.IsValueType {
			added, err = s.visitFields(s.rt.ElementLocation(arr, i), true, elem, 1)
		} else {
			added, err = s.addCandidate(s.rt.LoadRef(s.rt.ElementLocation(arr, i)))
		}
		if err != nil {
			return err
		}
		if !added {
			continue
		}
		queued++
		if s.shouldYield(queued) {
			if err := s.drain(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) shouldYield(queued int) bool {
	return s.yieldEvery > 0 && queued%s.yieldEvery == 0 && s.drainDepth < MaxDrainDepth
}

// addCandidate marks and records obj if it is unmarked and either carries
// references or passes the filter, and queues it if it carries references.
// It reports whether obj was queued.
func (s *Session) addCandidate(obj ObjectRef) (bool, error) {
	if obj == Null {
		return false, nil
	}
	if int(obj) >= s.marks.Capacity() {
		return false, apperrors.Newf(apperrors.CodeInvalidInput,
			"object %d is outside the mark set of %d refs; finalize before scanning a grown heap",
			obj, s.marks.Capacity())
	}
	if s.marks.IsMarked(obj) {
		return false, nil
	}
	s.stats.Processed++

	class := s.rt.ClassOf(obj)
	hasRefs := class != nil && class.HasReferences
	if !hasRefs && !s.passesFilter(class) {
		return false, nil
	}
	if !s.marks.TryMark(obj) {
		// another session of the pass got there first
		return false, nil
	}
	if err := s.allObjects.PushNoLock(obj); err != nil {
		s.marks.Unmark(obj)
		return false, err
	}
	s.stats.Discovered++

	if !hasRefs {
		return false, nil
	}
	if s.local.Push(obj) {
		if _, err := s.local.FlushTo(s.queue); err != nil {
			return true, err
		}
	}
	return true, nil
}

// seedStatics adds the objects referenced from owner's static storage.
// Corlib owners and owners whose layout is not finalized are skipped, as are
// thread-static and literal fields.
func (s *Session) seedStatics(owner *typesys.Class) error {
	if owner == nil || !owner.SizeInited {
		return nil
	}
	if corlib := s.rt.CorlibImage(); corlib != nil && owner.Image == corlib {
		return nil
	}

	var start time.Time
	if s.profiler != nil {
		start = s.clock.Now()
	}

	base := StaticLocation(owner)
	for _, f := range owner.Fields {
		if !typesys.IsNormalStatic(f) || !typesys.FieldCanContainReferences(f) {
			continue
		}
		var err error
		if typesys.IsStruct(f.Type) {
			_, err = s.visitFields(base.Field(f), true, typesys.StructClass(f.Type), 1)
		} else {
			_, err = s.addCandidate(s.rt.LoadRef(base.Field(f)))
		}
		if err != nil {
			return err
		}
	}

	if s.profiler != nil {
		s.profiler.Observe(PhaseCollectStatics, ClassName(owner), s.clock.Since(start))
	}
	return nil
}
