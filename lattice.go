package rhea

import (
	"math/bits"
	"sync"

	"github.com/rheolabs/rhea/pool"
)

// nonReentrantMutex guards lattice-wide mutations. The code paths under it
// never call back into the lattice, so plain locking suffices.
type nonReentrantMutex = sync.Mutex

// signature is a fixed-capacity bitmap over leaf groups. A leaf occupies one
// uniquely assigned bit; a meet's signature is the OR of its contributors.
// Signature-subset is the lattice order: a larger signature lies below a
// smaller one.
type signature [MaxGroupLeaves / 64]uint64

func (s *signature) set(bit int) {
	s[bit/64] |= 1 << (bit % 64)
}

func (s *signature) or(a, b *signature) {
	for i := range s {
		s[i] = a[i] | b[i]
	}
}

func (s *signature) equal(o *signature) bool {
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// subsetOf reports s ⊆ o.
func (s *signature) subsetOf(o *signature) bool {
	for i := range s {
		if s[i]&^o[i] != 0 {
			return false
		}
	}
	return true
}

// lowestBit returns the smallest set leaf id, or -1 for the empty signature.
func (s *signature) lowestBit() int {
	for i, w := range s {
		if w != 0 {
			return i*64 + bits.TrailingZeros64(w)
		}
	}
	return -1
}

// leafSlot is one entry of the leaf pool. Each leaf owns the list of meets
// registered under it, which makes the meet-DB a distributed structure: a
// meet lives with its contributing leaf of lowest id.
type leafSlot struct {
	group *Group
	meets []*Group
}

// lattice canonicalizes group intersections. Leaves draw their bit from a
// fixed linear pool; meets are looked up by signature in the owning leaf's
// list. Lattice-wide mutations are serialized by a single mutex, designed so
// no code path re-enters it.
type lattice struct {
	mu      nonReentrantMutex
	leaves  *pool.Linear[leafSlot]
	groupID uint32
}

func newLattice() *lattice {
	return &lattice{leaves: pool.NewLinear[leafSlot](MaxGroupLeaves)}
}

func (l *lattice) nextID() uint32 {
	l.groupID++
	return l.groupID
}

// newLeaf creates a leaf group with a fresh bit.
func (l *lattice) newLeaf(rt *runtimeState, name string) (*Group, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bit, slot, err := l.leaves.Alloc()
	if err != nil {
		return nil, NewAllocationError("CreateGroup", "leaf group pool exhausted", err)
	}
	g := &Group{
		id:                  l.nextID(),
		name:                name,
		leaf:                true,
		leafBit:             bit,
		seesDescendantTasks: true,
		rt:                  rt,
	}
	g.sig.set(bit)
	g.refCount.init(1)
	slot.group = g
	return g, nil
}

// meet returns the canonical intersection of a and b, creating and wiring a
// meet node on first use.
func (l *lattice) meet(rt *runtimeState, a, b *Group) (*Group, error) {
	if a == nil || b == nil {
		return nil, NewInvalidArgError("Intersect", "nil group")
	}
	if a == b {
		a.retainRef()
		return a, nil
	}
	var sig signature
	sig.or(&a.sig, &b.sig)

	// One contributor subsumed by the other: the intersection is the lower
	// group itself.
	if sig.equal(&a.sig) {
		a.retainRef()
		return a, nil
	}
	if sig.equal(&b.sig) {
		b.retainRef()
		return b, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	owner := l.leaves.At(sig.lowestBit())
	if owner == nil {
		return nil, NewInvalidArgError("Intersect", "contributing leaf destroyed")
	}
	for _, m := range owner.meets {
		if m.sig.equal(&sig) {
			m.retainRef()
			return m, nil
		}
	}

	g := &Group{
		id:                  l.nextID(),
		name:                a.name + "^" + b.name,
		leaf:                false,
		leafBit:             -1,
		sig:                 sig,
		seesDescendantTasks: true,
		rt:                  rt,
	}
	g.refCount.init(1)

	// Superiors and inferiors by signature-subset tests, seeded at the
	// contributors. Direct superiors are the contributors themselves unless
	// an existing meet sits strictly between.
	g.parents = l.superiors(&sig, a, b)
	for _, p := range g.parents {
		p.children = append(p.children, g)
	}
	for _, inf := range l.inferiors(&sig) {
		inf.parents = append(inf.parents, g)
		g.children = append(g.children, inf)
	}

	owner.meets = append(owner.meets, g)
	return g, nil
}

// superiors finds the immediate parents of a new meet: the deepest existing
// groups whose signature is a strict subset of sig.
func (l *lattice) superiors(sig *signature, seeds ...*Group) []*Group {
	var out []*Group
	seen := make(map[*Group]bool)
	var descend func(*Group)
	descend = func(g *Group) {
		if seen[g] {
			return
		}
		seen[g] = true
		lower := false
		for _, c := range g.children {
			if c.sig.subsetOf(sig) && !c.sig.equal(sig) {
				lower = true
				descend(c)
			}
		}
		if !lower {
			out = append(out, g)
		}
	}
	for _, s := range seeds {
		if s.sig.subsetOf(sig) && !s.sig.equal(sig) {
			descend(s)
		}
	}
	return out
}

// inferiors finds existing meets whose signature strictly contains sig and
// which have no intermediate group between themselves and the new meet.
func (l *lattice) inferiors(sig *signature) []*Group {
	var out []*Group
	low := sig.lowestBit()
	slot := l.leaves.At(low)
	if slot == nil {
		return nil
	}
	for _, m := range slot.meets {
		if !sig.subsetOf(&m.sig) || m.sig.equal(sig) {
			continue
		}
		direct := true
		for _, p := range m.parents {
			if sig.subsetOf(&p.sig) && !sig.equal(&p.sig) {
				direct = false
				break
			}
		}
		if direct {
			out = append(out, m)
		}
	}
	return out
}

// canceledAbove reports whether any superior of g carries the canceled flag.
// Parent lists are mutated under the lattice mutex (a later meet may splice
// itself in above an existing one), so the walk holds it too.
func (l *lattice) canceledAbove(g *Group) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := map[*Group]bool{g: true}
	stack := append([]*Group(nil), g.parents...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		if n.canceledFlag.Load() {
			return true
		}
		stack = append(stack, n.parents...)
	}
	return false
}

// observersOf snapshots the groups a task joining g is counted in: g itself
// plus every superior whose seesDescendantTasks flag is set, as the topology
// stands right now.
func (l *lattice) observersOf(g *Group) []*Group {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []*Group{g}
	seen := map[*Group]bool{g: true}
	var walk func(*Group)
	walk = func(n *Group) {
		for _, p := range n.parents {
			if !seen[p] && p.seesDescendantTasks {
				seen[p] = true
				out = append(out, p)
				walk(p)
			}
		}
	}
	walk(g)
	return out
}

// remove deregisters a destroyed group.
func (l *lattice) remove(g *Group) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range g.parents {
		p.children = deleteGroup(p.children, g)
	}
	for _, c := range g.children {
		c.parents = deleteGroup(c.parents, g)
	}
	if g.leaf {
		if slot := l.leaves.At(g.leafBit); slot != nil && slot.group == g {
			l.leaves.Free(g.leafBit)
		}
		return
	}
	low := g.sig.lowestBit()
	if slot := l.leaves.At(low); slot != nil {
		slot.meets = deleteGroup(slot.meets, g)
	}
}

func deleteGroup(list []*Group, g *Group) []*Group {
	for i, x := range list {
		if x == g {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
