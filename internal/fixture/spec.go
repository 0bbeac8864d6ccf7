package fixture

import (
	"hash/fnv"
	"math/rand/v2"
	"strings"
)

// Spec is the self-contained description of one node. It crosses the process
// boundary as-is, so it carries everything needed to rebuild the fixture.
type Spec struct {
	Name        string      `msgpack:"name" json:"name"`
	Kind        Kind        `msgpack:"kind" json:"kind"`
	Size        int         `msgpack:"size" json:"size"`
	Seed        uint64      `msgpack:"seed" json:"seed"`
	Workload    Workload    `msgpack:"workload" json:"workload"`
	Metadata    Metadata    `msgpack:"metadata" json:"metadata,omitempty"`
	Constraints Constraints `msgpack:"constraints" json:"constraints,omitempty"`
}

// Key returns the innermost segment of the dotted name.
func (s Spec) Key() string {
	if i := strings.LastIndexByte(s.Name, '.'); i >= 0 {
		return s.Name[i+1:]
	}
	return s.Name
}

// SeedFor derives a node seed from the run seed and the node name, so a node's
// output does not depend on which lane or in which order it runs.
func SeedFor(runSeed uint64, name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return runSeed ^ h.Sum64()
}

// Random streams derived from a node seed. Values and the null mask draw from
// separate streams so toggling nullable does not perturb the values.
const (
	streamValues uint64 = iota + 1
	streamMask
	streamSubset
)

func (s Spec) rand(stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(s.Seed, stream))
}

// Array is a node's generated output. Leaves fill Values; containers fill
// Children (and Keys for named children).
type Array struct {
	Values   []string `msgpack:"values,omitempty"`
	Children []Array  `msgpack:"children,omitempty"`
	Keys     []string `msgpack:"keys,omitempty"`
}

// Len is the row count.
func (a Array) Len() int {
	if a.Values != nil || len(a.Children) == 0 {
		return len(a.Values)
	}
	return a.Children[0].Len()
}

// Child returns the named child of a keyed container array.
func (a Array) Child(key string) (Array, bool) {
	for i, k := range a.Keys {
		if k == key {
			return a.Children[i], true
		}
	}
	return Array{}, false
}
