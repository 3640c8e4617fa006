// Package snapshot reads heap snapshot documents and builds them into a
// managed heap the scanner can walk.
//
// A document lists classes with their fields, objects with the references
// they hold, and the values of class statics. Objects are identified by
// document ids; 0 is the null reference. Nested struct fields are addressed
// with dotted paths such as "pos.target".
package snapshot

// Document is the serialized form of a heap snapshot.
type Document struct {
	// Corlib names the core library image. Default "mscorlib".
	Corlib string `yaml:"corlib,omitempty" json:"corlib,omitempty"`

	Classes []ClassDoc  `yaml:"classes" json:"classes"`
	Objects []ObjectDoc `yaml:"objects,omitempty" json:"objects,omitempty"`

	// Statics maps a class name to the values of its static reference
	// fields, keyed by field path.
	Statics map[string]map[string]uint32 `yaml:"statics,omitempty" json:"statics,omitempty"`

	// Roots lists object ids of interest, e.g. for scans from a root.
	Roots []uint32 `yaml:"roots,omitempty" json:"roots,omitempty"`
}

// ClassDoc describes one class. Array classes need no entry: "Node[]" names
// the array class of Node wherever a class name is expected.
type ClassDoc struct {
	Name      string `yaml:"name" json:"name"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Image     string `yaml:"image,omitempty" json:"image,omitempty"`
	Parent    string `yaml:"parent,omitempty" json:"parent,omitempty"`

	// Kind is class (default), struct, enum or interface.
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`

	LayoutPending bool       `yaml:"layout_pending,omitempty" json:"layout_pending,omitempty"`
	Fields        []FieldDoc `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// FieldDoc describes one field.
type FieldDoc struct {
	Name string `yaml:"name" json:"name"`

	// Kind is a type kind name: primitive, string, class, interface, object,
	// array, struct, enum or generic.
	Kind string `yaml:"kind" json:"kind"`

	// Type names the field's class. Required for class, interface, array,
	// struct and generic kinds. For generic fields it is the definition.
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Cached names the concrete class of a generic instantiation.
	Cached string `yaml:"cached,omitempty" json:"cached,omitempty"`

	Static       bool `yaml:"static,omitempty" json:"static,omitempty"`
	ThreadStatic bool `yaml:"thread_static,omitempty" json:"thread_static,omitempty"`
	Literal      bool `yaml:"literal,omitempty" json:"literal,omitempty"`
}

// ObjectDoc describes one object. Refs fills reference fields of a class
// instance; Elements fills a reference array; Values fills a struct array
// element by element.
type ObjectDoc struct {
	ID    uint32 `yaml:"id" json:"id"`
	Class string `yaml:"class" json:"class"`

	Refs     map[string]uint32   `yaml:"refs,omitempty" json:"refs,omitempty"`
	Elements []uint32            `yaml:"elements,omitempty" json:"elements,omitempty"`
	Values   []map[string]uint32 `yaml:"values,omitempty" json:"values,omitempty"`

	// Length overrides the array length implied by Elements or Values.
	Length int `yaml:"length,omitempty" json:"length,omitempty"`
}

func (o *ObjectDoc) arrayLength() int {
	n := len(o.Elements)
	if len(o.Values) > n {
		n = len(o.Values)
	}
	if o.Length > n {
		n = o.Length
	}
	return n
}
