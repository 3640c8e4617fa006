package typesys

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

func TestFieldCanContainReferences(t *testing.T) {
	cl := NewCorlib("mscorlib")
	img := &Image{Name: "Game"}
	node := cl.NewClass(img, "Game", "Node", nil)
	vec := cl.NewStruct(img, "Game", "Vec")
	color := cl.NewEnum(img, "Game", "Color")
	list := cl.NewClass(img, "System.Collections.Generic", "List`1", nil)
	pair := cl.NewStruct(img, "Game", "Pair`2")

	tests := []struct {
		name     string
		field    *Field
		expected bool
	}{
		{"class reference", &Field{Type: RefType(node)}, true},
		{"array reference", &Field{Type: RefType(cl.NewArrayClass(node, 1))}, true},
		{"object", &Field{Type: ObjectType(cl)}, true},
		{"struct", &Field{Type: ValueType(vec)}, true},
		{"enum", &Field{Type: ValueType(color)}, false},
		{"string", &Field{Type: StringType(cl)}, false},
		{"primitive", &Field{Type: Primitive()}, false},
		{"literal reference", &Field{Type: &Type{Kind: KindClass, Class: node, Attrs: AttrStatic | AttrLiteral}}, false},
		{"generic class", &Field{Type: GenericType(list, list)}, true},
		{"generic struct", &Field{Type: GenericType(pair, pair)}, true},
		{"no type", &Field{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FieldCanContainReferences(tt.field))
		})
	}
}

func TestIsNormalStatic(t *testing.T) {
	cl := NewCorlib("mscorlib")
	c := cl.NewClass(&Image{Name: "Game"}, "", "Holder", nil)
	node := RefType(c)

	inst := c.AddField("inst", node)
	static := c.AddStatic("cache", node)
	tls := c.AddThreadStatic("tls", node)
	lit := c.AddLiteral("K", node)

	assert.False(t, IsNormalStatic(inst))
	assert.True(t, IsNormalStatic(static))
	assert.False(t, IsNormalStatic(tls))
	assert.False(t, IsNormalStatic(lit))
	assert.False(t, inst.IsStatic(), "AddStatic must not change the shared type")
}

func TestHasParent(t *testing.T) {
	cl := NewCorlib("mscorlib")
	img := &Image{Name: "Game"}
	base := cl.NewClass(img, "Game", "Base", nil)
	mid := cl.NewClass(img, "Game", "Mid", base)
	leaf := cl.NewClass(img, "Game", "Leaf", mid)
	other := cl.NewClass(img, "Game", "Other", nil)

	assert.True(t, HasParent(leaf, leaf))
	assert.True(t, HasParent(leaf, base))
	assert.True(t, HasParent(leaf, cl.Object))
	assert.False(t, HasParent(base, leaf))
	assert.False(t, HasParent(leaf, other))
	assert.False(t, HasParent(nil, base))
	assert.False(t, HasParent(leaf, nil))
	assert.Equal(t, 4, leaf.Depth())
}

func TestSetupTypeHierarchy_Concurrent(t *testing.T) {
	cl := NewCorlib("mscorlib")
	leaf := cl.NewClass(&Image{Name: "Game"}, "", "Leaf", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			SetupTypeHierarchy(leaf)
			assert.True(t, HasParent(leaf, cl.Object))
		}()
	}
	wg.Wait()
	SetupTypeHierarchy(nil)
}

func TestFullName(t *testing.T) {
	cl := NewCorlib("mscorlib")
	node := cl.NewClass(&Image{Name: "Game"}, "Game", "Node", nil)
	plain := cl.NewClass(&Image{Name: "Game"}, "", "Plain", nil)

	assert.Equal(t, "Game.Node", node.FullName())
	assert.Equal(t, "Plain", plain.String())
	assert.Equal(t, "Game.Node[]", cl.NewArrayClass(node, 1).FullName())
	assert.Equal(t, "Game.Node[,]", cl.NewArrayClass(node, 2).FullName())
	assert.Equal(t, "", (*Class)(nil).FullName())
}

func TestComputeLayout(t *testing.T) {
	cl := NewCorlib("mscorlib")
	img := &Image{Name: "Game"}

	vec := cl.NewStruct(img, "Game", "Vec")
	vec.AddField("x", Primitive())
	vec.AddField("y", Primitive())

	boxed := cl.NewStruct(img, "Game", "Boxed")
	boxed.AddField("id", Primitive())

	base := cl.NewClass(img, "Game", "Base", nil)
	base.AddField("name", StringType(cl))

	node := cl.NewClass(img, "Game", "Node", base)
	pos := node.AddField("pos", ValueType(vec))
	next := node.AddField("next", RefType(node))
	cache := node.AddStatic("cache", RefType(node))
	origin := node.AddStatic("origin", ValueType(vec))
	tls := node.AddThreadStatic("tls", RefType(node))
	node.AddLiteral("K", Primitive())

	require.NoError(t, ComputeLayouts(node, cl.NewArrayClass(vec, 1)))

	assert.Equal(t, 1, pos.Offset)
	assert.Equal(t, 3, next.Offset)
	assert.Equal(t, 4, node.InstanceSlots)
	assert.Equal(t, 0, cache.Offset)
	assert.Equal(t, 1, origin.Offset)
	assert.Equal(t, 3, node.StaticSlots)
	assert.Equal(t, ThreadStaticOffset, tls.Offset)
	assert.True(t, node.HasStaticFields())
	assert.True(t, node.HasReferences)
	assert.True(t, node.SizeInited)

	assert.False(t, base.HasReferences, "a string field holds no traced reference")
	assert.False(t, vec.HasReferences)
	assert.Equal(t, 2, vec.InstanceSlots)
}

func TestComputeLayout_Arrays(t *testing.T) {
	cl := NewCorlib("mscorlib")
	img := &Image{Name: "Game"}
	node := cl.NewClass(img, "Game", "Node", nil)
	vec := cl.NewStruct(img, "Game", "Vec")
	vec.AddField("x", Primitive())
	ref := cl.NewStruct(img, "Game", "Ref")
	ref.AddField("target", RefType(node))

	nodes := cl.NewArrayClass(node, 1)
	vecs := cl.NewArrayClass(vec, 1)
	refs := cl.NewArrayClass(ref, 1)
	require.NoError(t, ComputeLayouts(nodes, vecs, refs))

	assert.True(t, nodes.HasReferences)
	assert.False(t, vecs.HasReferences)
	assert.True(t, refs.HasReferences)
}

func TestComputeLayout_Pending(t *testing.T) {
	cl := NewCorlib("mscorlib")
	s := cl.NewStruct(&Image{Name: "Game"}, "", "Pending")
	s.AddField("x", Primitive())
	s.LayoutPending = true

	require.NoError(t, ComputeLayouts(s))
	assert.False(t, s.SizeInited)
	assert.Equal(t, 1, s.InstanceSlots)
}

func TestComputeLayout_SelfEmbedding(t *testing.T) {
	cl := NewCorlib("mscorlib")
	s := cl.NewStruct(&Image{Name: "Game"}, "", "Loop")
	s.AddField("self", ValueType(s))

	err := ComputeLayouts(s)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
}

func TestParseTypeKind(t *testing.T) {
	for k, name := range kindNames {
		got, ok := ParseTypeKind(name)
		assert.True(t, ok)
		assert.Equal(t, k, got)
		assert.Equal(t, name, k.String())
	}
	got, ok := ParseTypeKind("Enum")
	assert.True(t, ok)
	assert.Equal(t, KindValueType, got)

	_, ok = ParseTypeKind("pointer")
	assert.False(t, ok)
	assert.Equal(t, "unknown", TypeKind(42).String())
}

func TestFieldByName(t *testing.T) {
	cl := NewCorlib("mscorlib")
	base := cl.NewClass(nil, "", "Base", nil)
	f := base.AddField("id", Primitive())
	leaf := cl.NewClass(nil, "", "Leaf", base)

	assert.Same(t, f, leaf.FieldByName("id"))
	assert.Nil(t, leaf.FieldByName("missing"))
}
