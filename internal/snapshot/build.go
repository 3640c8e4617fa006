package snapshot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/No1412lee/il2cpp-plus/internal/liveness"
	"github.com/No1412lee/il2cpp-plus/internal/managed"
	"github.com/No1412lee/il2cpp-plus/internal/typesys"
	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

// Snapshot is a document built into a heap.
type Snapshot struct {
	Heap *managed.Heap

	classes map[string]*typesys.Class
	refs    map[uint32]liveness.ObjectRef
	ids     map[liveness.ObjectRef]uint32
	roots   []liveness.ObjectRef
}

// Class returns a class by document name. "X[]" returns the array class of X.
func (s *Snapshot) Class(name string) (*typesys.Class, bool) {
	if elem, ok := strings.CutSuffix(name, "[]"); ok {
		c, ok := s.classes[elem]
		if !ok {
			return nil, false
		}
		ac, err := s.Heap.ArrayClass(c)
		if err != nil {
			return nil, false
		}
		return ac, true
	}
	c, ok := s.classes[name]
	return c, ok
}

// Ref returns the heap ref of a document object id.
func (s *Snapshot) Ref(id uint32) (liveness.ObjectRef, bool) {
	if id == 0 {
		return liveness.Null, true
	}
	r, ok := s.refs[id]
	return r, ok
}

// ID returns the document id of a heap ref.
func (s *Snapshot) ID(ref liveness.ObjectRef) uint32 {
	return s.ids[ref]
}

// Roots returns the refs of the document's root ids.
func (s *Snapshot) Roots() []liveness.ObjectRef {
	return s.roots
}

// builder carries the state of one Build call.
type builder struct {
	doc    *Document
	corlib *typesys.Corlib
	heap   *managed.Heap

	classes map[string]*typesys.Class
	images  map[string]*typesys.Image

	// array field types whose class is filled in once layouts exist
	arrayTypes []arrayFixup
}

type arrayFixup struct {
	typ  *typesys.Type
	elem *typesys.Class
}

func parseErr(format string, args ...interface{}) error {
	return apperrors.Newf(apperrors.CodeParseError, format, args...)
}

// Build creates the document's classes and objects on a new heap. Classes are
// registered in document order, which fixes the order of static owners.
func (d *Document) Build() (*Snapshot, error) {
	corlibName := d.Corlib
	if corlibName == "" {
		corlibName = "mscorlib"
	}
	cl := typesys.NewCorlib(corlibName)
	b := &builder{
		doc:     d,
		corlib:  cl,
		heap:    managed.NewHeap(cl),
		classes: make(map[string]*typesys.Class),
		images:  map[string]*typesys.Image{corlibName: cl.Image},
	}
	for _, c := range []*typesys.Class{cl.Object, cl.ValueType, cl.Enum, cl.Array, cl.String} {
		b.classes[c.Name] = c
		b.classes[c.Namespace+"."+c.Name] = c
	}

	if err := b.declareClasses(); err != nil {
		return nil, err
	}
	if err := b.defineClasses(); err != nil {
		return nil, err
	}
	if err := b.registerClasses(); err != nil {
		return nil, err
	}

	s := &Snapshot{
		Heap:    b.heap,
		classes: b.classes,
		refs:    make(map[uint32]liveness.ObjectRef, len(d.Objects)),
		ids:     make(map[liveness.ObjectRef]uint32, len(d.Objects)),
	}
	if err := b.allocObjects(s); err != nil {
		return nil, err
	}
	if err := b.linkObjects(s); err != nil {
		return nil, err
	}
	if err := b.setStatics(s); err != nil {
		return nil, err
	}
	for _, id := range d.Roots {
		r, ok := s.Ref(id)
		if !ok {
			return nil, parseErr("root %d: no such object", id)
		}
		s.roots = append(s.roots, r)
	}
	return s, nil
}

func (b *builder) image(name string) *typesys.Image {
	if name == "" {
		name = "Assembly-CSharp"
	}
	img, ok := b.images[name]
	if !ok {
		img = &typesys.Image{Name: name}
		b.images[name] = img
	}
	return img
}

func (b *builder) declareClasses() error {
	for i := range b.doc.Classes {
		cd := &b.doc.Classes[i]
		if cd.Name == "" {
			return parseErr("class #%d has no name", i)
		}
		if strings.HasSuffix(cd.Name, "[]") {
			return parseErr("class %s: array classes are implicit", cd.Name)
		}
		if _, dup := b.classes[cd.Name]; dup {
			return parseErr("class %s declared twice", cd.Name)
		}

		c := &typesys.Class{Name: cd.Name, Namespace: cd.Namespace, Image: b.image(cd.Image), LayoutPending: cd.LayoutPending}
		switch strings.ToLower(cd.Kind) {
		case "", "class":
		case "struct", "valuetype":
			c.IsValueType = true
		case "enum":
			c.IsValueType = true
			c.IsEnum = true
		case "interface":
			c.IsInterface = true
		default:
			return parseErr("class %s: unknown kind %q", cd.Name, cd.Kind)
		}
		b.classes[cd.Name] = c
		if cd.Namespace != "" {
			if _, taken := b.classes[c.FullName()]; !taken {
				b.classes[c.FullName()] = c
			}
		}
	}
	return nil
}

func (b *builder) defineClasses() error {
	for i := range b.doc.Classes {
		cd := &b.doc.Classes[i]
		c := b.classes[cd.Name]

		switch {
		case cd.Parent != "":
			p, ok := b.classes[cd.Parent]
			if !ok {
				return parseErr("class %s: unknown parent %q", cd.Name, cd.Parent)
			}
			c.Parent = p
		case c.IsEnum:
			c.Parent = b.corlib.Enum
		case c.IsValueType:
			c.Parent = b.corlib.ValueType
		case !c.IsInterface:
			c.Parent = b.corlib.Object
		}
		for p := c.Parent; p != nil; p = p.Parent {
			if p == c {
				return parseErr("class %s inherits from itself", cd.Name)
			}
		}

		for j := range cd.Fields {
			fd := &cd.Fields[j]
			if err := b.addField(c, fd); err != nil {
				return parseErr("class %s field %q: %v", cd.Name, fd.Name, err)
			}
		}
	}
	return nil
}

func (b *builder) addField(c *typesys.Class, fd *FieldDoc) error {
	if fd.Name == "" {
		return fmt.Errorf("field has no name")
	}
	if strings.Contains(fd.Name, ".") {
		return fmt.Errorf("field names cannot contain dots")
	}
	typ, err := b.fieldType(fd)
	if err != nil {
		return err
	}

	var f *typesys.Field
	switch {
	case fd.Literal:
		f = c.AddLiteral(fd.Name, typ)
	case fd.ThreadStatic:
		f = c.AddThreadStatic(fd.Name, typ)
	case fd.Static:
		f = c.AddStatic(fd.Name, typ)
	default:
		f = c.AddField(fd.Name, typ)
	}
	if f.Type.Kind == typesys.KindArray {
		elem := b.classes[strings.TrimSuffix(fd.Type, "[]")]
		b.arrayTypes = append(b.arrayTypes, arrayFixup{typ: f.Type, elem: elem})
	}
	return nil
}

func (b *builder) lookup(name string) (*typesys.Class, error) {
	if name == "" {
		return nil, fmt.Errorf("missing type")
	}
	c, ok := b.classes[name]
	if !ok {
		return nil, fmt.Errorf("unknown class %q", name)
	}
	return c, nil
}

func (b *builder) fieldType(fd *FieldDoc) (*typesys.Type, error) {
	kind, ok := typesys.ParseTypeKind(fd.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", fd.Kind)
	}

	switch kind {
	case typesys.KindPrimitive:
		return typesys.Primitive(), nil
	case typesys.KindString:
		return typesys.StringType(b.corlib), nil
	case typesys.KindObject:
		return typesys.ObjectType(b.corlib), nil
	case typesys.KindArray:
		elemName, ok := strings.CutSuffix(fd.Type, "[]")
		if !ok {
			return nil, fmt.Errorf("array type %q must end in []", fd.Type)
		}
		if _, err := b.lookup(elemName); err != nil {
			return nil, err
		}
		return &typesys.Type{Kind: typesys.KindArray}, nil
	case typesys.KindValueType:
		sc, err := b.lookup(fd.Type)
		if err != nil {
			return nil, err
		}
		if !sc.IsValueType {
			return nil, fmt.Errorf("%s is not a value type", fd.Type)
		}
		return typesys.ValueType(sc), nil
	case typesys.KindGenericInst:
		def, err := b.lookup(fd.Type)
		if err != nil {
			return nil, err
		}
		var cached *typesys.Class
		if fd.Cached != "" {
			if cached, err = b.lookup(fd.Cached); err != nil {
				return nil, err
			}
		}
		return typesys.GenericType(def, cached), nil
	default:
		c, err := b.lookup(fd.Type)
		if err != nil {
			return nil, err
		}
		t := typesys.RefType(c)
		if kind == typesys.KindInterface {
			t.Kind = typesys.KindInterface
		}
		return t, nil
	}
}

func (b *builder) registerClasses() error {
	for i := range b.doc.Classes {
		c := b.classes[b.doc.Classes[i].Name]
		if err := b.heap.RegisterClass(c); err != nil {
			return apperrors.Wrap(apperrors.CodeParseError, "class "+c.Name, err)
		}
	}
	for _, fx := range b.arrayTypes {
		ac, err := b.heap.ArrayClass(fx.elem)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeParseError, "array of "+fx.elem.Name, err)
		}
		fx.typ.Class = ac
	}
	return nil
}

func (b *builder) allocObjects(s *Snapshot) error {
	for i := range b.doc.Objects {
		od := &b.doc.Objects[i]
		if od.ID == 0 {
			return parseErr("object #%d: id 0 is the null reference", i)
		}
		if _, dup := s.refs[od.ID]; dup {
			return parseErr("object %d declared twice", od.ID)
		}

		var (
			ref liveness.ObjectRef
			err error
		)
		if elemName, isArray := strings.CutSuffix(od.Class, "[]"); isArray {
			var elem *typesys.Class
			if elem, err = b.lookup(elemName); err != nil {
				return parseErr("object %d: %v", od.ID, err)
			}
			ref, err = b.heap.NewArray(elem, od.arrayLength())
		} else {
			var c *typesys.Class
			if c, err = b.lookup(od.Class); err != nil {
				return parseErr("object %d: %v", od.ID, err)
			}
			if c.IsValueType || c.IsInterface {
				return parseErr("object %d: cannot instantiate %s", od.ID, c.FullName())
			}
			ref, err = b.heap.New(c)
		}
		if err != nil {
			return apperrors.Wrap(apperrors.CodeParseError, "object", err)
		}
		s.refs[od.ID] = ref
		s.ids[ref] = od.ID
	}
	return nil
}

func (b *builder) target(s *Snapshot, owner string, id uint32) (liveness.ObjectRef, error) {
	r, ok := s.Ref(id)
	if !ok {
		return liveness.Null, parseErr("%s refers to unknown object %d", owner, id)
	}
	return r, nil
}

// sortedPaths keeps error reporting deterministic.
func sortedPaths(m map[string]uint32) []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (b *builder) linkObjects(s *Snapshot) error {
	h := b.heap
	for i := range b.doc.Objects {
		od := &b.doc.Objects[i]
		ref := s.refs[od.ID]
		owner := "object " + od.Class

		for _, path := range sortedPaths(od.Refs) {
			to, err := b.target(s, owner, od.Refs[path])
			if err != nil {
				return err
			}
			if err := h.SetRef(ref, path, to); err != nil {
				return apperrors.Wrap(apperrors.CodeParseError, owner+"."+path, err)
			}
		}
		for j, id := range od.Elements {
			if id == 0 {
				continue
			}
			to, err := b.target(s, owner, id)
			if err != nil {
				return err
			}
			if err := h.SetElement(ref, j, "", to); err != nil {
				return apperrors.Wrap(apperrors.CodeParseError, owner, err)
			}
		}
		for j, value := range od.Values {
			for _, path := range sortedPaths(value) {
				if value[path] == 0 {
					continue
				}
				to, err := b.target(s, owner, value[path])
				if err != nil {
					return err
				}
				if err := h.SetElement(ref, j, path, to); err != nil {
					return apperrors.Wrap(apperrors.CodeParseError, owner, err)
				}
			}
		}
	}
	return nil
}

func (b *builder) setStatics(s *Snapshot) error {
	names := make([]string, 0, len(b.doc.Statics))
	for name := range b.doc.Statics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c, err := b.lookup(name)
		if err != nil {
			return parseErr("statics: %v", err)
		}
		values := b.doc.Statics[name]
		for _, path := range sortedPaths(values) {
			to, err := b.target(s, "statics of "+name, values[path])
			if err != nil {
				return err
			}
			if err := b.heap.SetStatic(c, path, to); err != nil {
				return apperrors.Wrap(apperrors.CodeParseError, "statics of "+name, err)
			}
		}
	}
	return nil
}
