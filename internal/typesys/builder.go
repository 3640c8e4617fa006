package typesys

// Corlib holds the core classes every type universe starts from.
type Corlib struct {
	Image     *Image
	Object    *Class
	ValueType *Class
	Enum      *Class
	Array     *Class
	String    *Class
}

// NewCorlib creates the core classes in an image named name.
func NewCorlib(name string) *Corlib {
	img := &Image{Name: name}
	object := &Class{Name: "Object", Namespace: "System", Image: img}
	valueType := &Class{Name: "ValueType", Namespace: "System", Image: img, Parent: object}
	return &Corlib{
		Image:     img,
		Object:    object,
		ValueType: valueType,
		Enum:      &Class{Name: "Enum", Namespace: "System", Image: img, Parent: valueType, IsValueType: true},
		Array:     &Class{Name: "Array", Namespace: "System", Image: img, Parent: object},
		String:    &Class{Name: "String", Namespace: "System", Image: img, Parent: object},
	}
}

// NewClass creates a reference class deriving from parent.
func (cl *Corlib) NewClass(img *Image, namespace, name string, parent *Class) *Class {
	if parent == nil {
		parent = cl.Object
	}
	return &Class{Name: name, Namespace: namespace, Image: img, Parent: parent}
}

// NewStruct creates a value type.
func (cl *Corlib) NewStruct(img *Image, namespace, name string) *Class {
	return &Class{Name: name, Namespace: namespace, Image: img, Parent: cl.ValueType, IsValueType: true}
}

// NewEnum creates an enum value type.
func (cl *Corlib) NewEnum(img *Image, namespace, name string) *Class {
	return &Class{Name: name, Namespace: namespace, Image: img, Parent: cl.Enum, IsValueType: true, IsEnum: true}
}

// NewArrayClass creates the array class of elem with the given rank.
func (cl *Corlib) NewArrayClass(elem *Class, rank int) *Class {
	if rank < 1 {
		rank = 1
	}
	return &Class{
		Name:         elem.Name,
		Namespace:    elem.Namespace,
		Image:        elem.Image,
		Parent:       cl.Array,
		ElementClass: elem,
		Rank:         rank,
	}
}

// AddField appends an instance field of type t.
func (c *Class) AddField(name string, t *Type) *Field {
	f := &Field{Name: name, Type: t, Parent: c}
	c.Fields = append(c.Fields, f)
	return f
}

// AddStatic appends a static field of type t.
func (c *Class) AddStatic(name string, t *Type) *Field {
	st := *t
	st.Attrs |= AttrStatic
	return c.AddField(name, &st)
}

// AddThreadStatic appends a thread-static field of type t.
func (c *Class) AddThreadStatic(name string, t *Type) *Field {
	f := c.AddStatic(name, t)
	f.Offset = ThreadStaticOffset
	return f
}

// AddLiteral appends a constant field of type t.
func (c *Class) AddLiteral(name string, t *Type) *Field {
	st := *t
	st.Attrs |= AttrStatic | AttrLiteral
	return c.AddField(name, &st)
}

// FieldByName returns the field of c or its ancestors named name.
func (c *Class) FieldByName(name string) *Field {
	for p := c; p != nil; p = p.Parent {
		for _, f := range p.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// Primitive returns the type of a scalar field.
func Primitive() *Type { return &Type{Kind: KindPrimitive} }

// StringType returns the System.String field type.
func StringType(cl *Corlib) *Type { return &Type{Kind: KindString, Class: cl.String} }

// ObjectType returns the System.Object field type.
func ObjectType(cl *Corlib) *Type { return &Type{Kind: KindObject, Class: cl.Object} }

// RefType returns a field type referencing instances of c.
func RefType(c *Class) *Type {
	if c.IsArray() {
		return &Type{Kind: KindArray, Class: c}
	}
	if c.IsInterface {
		return &Type{Kind: KindInterface, Class: c}
	}
	return &Type{Kind: KindClass, Class: c}
}

// ValueType returns an inline field type for the struct or enum c.
func ValueType(c *Class) *Type { return &Type{Kind: KindValueType, Class: c} }

// GenericType returns a field type for a generic instantiation whose concrete
// class is cached.
func GenericType(definition, cached *Class) *Type {
	return &Type{Kind: KindGenericInst, Generic: &GenericInst{Definition: definition, Cached: cached}}
}
