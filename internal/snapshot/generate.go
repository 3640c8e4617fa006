package snapshot

import (
	"fmt"
	"math/rand/v2"
)

// GenerateOptions sizes a synthetic snapshot.
type GenerateOptions struct {
	// Objects is the number of plain objects. Default 1000.
	Objects int
	// Owners is the number of classes holding statics. Default 16.
	Owners int
	// ArrayEvery makes every n-th object an array of Pair structs, 0 for
	// the default of 50.
	ArrayEvery int
	// ArrayLength is the length of those arrays. Default 32.
	ArrayLength int
	// Seed makes generation reproducible.
	Seed uint64
}

func (o *GenerateOptions) defaults() {
	if o.Objects <= 0 {
		o.Objects = 1000
	}
	if o.Owners <= 0 {
		o.Owners = 16
	}
	if o.ArrayEvery <= 0 {
		o.ArrayEvery = 50
	}
	if o.ArrayLength <= 0 {
		o.ArrayLength = 32
	}
}

// Generate builds a random but reproducible document: a graph of Node
// objects with Pair struct arrays, rooted in the statics of Owner classes.
// Roughly a tenth of the nodes are unreachable.
func Generate(opts GenerateOptions) *Document {
	opts.defaults()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	doc := &Document{
		Classes: []ClassDoc{
			{Name: "Node", Namespace: "Game", Fields: []FieldDoc{
				{Name: "id", Kind: "primitive"},
				{Name: "name", Kind: "string"},
				{Name: "next", Kind: "class", Type: "Node"},
				{Name: "other", Kind: "object"},
			}},
			{Name: "Leaf", Namespace: "Game", Parent: "Node"},
			{Name: "Pair", Namespace: "Game", Kind: "struct", Fields: []FieldDoc{
				{Name: "weight", Kind: "primitive"},
				{Name: "target", Kind: "class", Type: "Node"},
			}},
		},
		Statics: make(map[string]map[string]uint32),
	}

	n := opts.Objects
	reachable := n - n/10
	pick := func() uint32 {
		if reachable == 0 {
			return 0
		}
		return uint32(rng.IntN(reachable) + 1)
	}

	for i := 1; i <= n; i++ {
		id := uint32(i)
		if i%opts.ArrayEvery == 0 {
			values := make([]map[string]uint32, opts.ArrayLength)
			for j := range values {
				values[j] = map[string]uint32{"target": pick()}
			}
			doc.Objects = append(doc.Objects, ObjectDoc{ID: id, Class: "Pair[]", Values: values})
			continue
		}
		class := "Node"
		if rng.IntN(4) == 0 {
			class = "Leaf"
		}
		obj := ObjectDoc{ID: id, Class: class, Refs: map[string]uint32{}}
		if i < reachable {
			obj.Refs["next"] = uint32(i + 1)
		}
		if rng.IntN(3) == 0 {
			obj.Refs["other"] = pick()
		}
		if len(obj.Refs) == 0 {
			obj.Refs = nil
		}
		doc.Objects = append(doc.Objects, obj)
	}

	for k := 0; k < opts.Owners; k++ {
		name := fmt.Sprintf("Owner%d", k)
		doc.Classes = append(doc.Classes, ClassDoc{Name: name, Namespace: "Game", Fields: []FieldDoc{
			{Name: "root", Kind: "class", Type: "Node", Static: true},
			{Name: "slot", Kind: "struct", Type: "Pair", Static: true},
			{Name: "count", Kind: "primitive", Static: true},
		}})
		doc.Statics[name] = map[string]uint32{"root": pick(), "slot.target": pick()}
	}
	if reachable > 0 {
		doc.Statics["Owner0"]["root"] = 1
		doc.Roots = []uint32{1}
	}
	return doc
}
