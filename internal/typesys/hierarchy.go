package typesys

// SetupTypeHierarchy fills the ancestor table of c (root first, c last) so
// that HasParent is a constant-time lookup. It is idempotent and safe to call
// from concurrent sessions. A nil class is ignored.
func SetupTypeHierarchy(c *Class) {
	if c == nil {
		return
	}
	c.hierarchyOnce.Do(func() {
		var chain []*Class
		for p := c; p != nil; p = p.Parent {
			chain = append(chain, p)
		}
		for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
			chain[i], chain[j] = chain[j], chain[i]
		}
		c.hierarchy = chain
	})
}

// Depth returns the number of classes from the root down to c inclusive.
func (c *Class) Depth() int {
	SetupTypeHierarchy(c)
	return len(c.hierarchy)
}

// HasParent reports whether c is parent or derives from it.
func HasParent(c, parent *Class) bool {
	if c == nil || parent == nil {
		return false
	}
	SetupTypeHierarchy(c)
	SetupTypeHierarchy(parent)
	d := len(parent.hierarchy)
	return len(c.hierarchy) >= d && c.hierarchy[d-1] == parent
}
