/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package index provides the ordered discovery index over scheduled calls:
// a balanced search tree mapping a signed sort key (discovery bucket or raw
// schedule point) to opaque request identifiers. Nodes live in an arena and
// are addressed by integer index, with insertion order breaking ties on
// equal keys, so the same operation sequence always produces the same tree
// shape on every observer.
package index

import "github.com/google/uuid"

const nilNode int32 = -1

// Entry is one key/identifier pair held by the tree.
type Entry struct {
	Key int64     `json:"key"`
	ID  uuid.UUID `json:"id"`
}

type node struct {
	key    int64
	seq    uint64
	id     uuid.UUID
	left   int32
	right  int32
	height int32
}

// Tree is an AVL tree over (key, insertion-seq) pairs. The zero value is
// not usable; construct with New.
type Tree struct {
	nodes   []node
	free    []int32
	root    int32
	nextSeq uint64
	size    int
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{root: nilNode}
}

// Len returns the number of entries held.
func (t *Tree) Len() int {
	return t.size
}

// Insert adds id under key. Duplicate keys are kept and ordered by
// insertion; the same id may appear under several keys.
func (t *Tree) Insert(key int64, id uuid.UUID) {
	seq := t.nextSeq
	t.nextSeq++
	t.root = t.insert(t.root, key, seq, id)
	t.size++
}

// Remove deletes the entry holding id under key. It returns false when no
// such entry exists.
func (t *Tree) Remove(key int64, id uuid.UUID) bool {
	seq, found := t.findSeq(t.root, key, id)
	if !found {
		return false
	}
	t.root = t.remove(t.root, key, seq)
	t.size--
	return true
}

// NextAfter returns the entry with the smallest key strictly greater than
// key. Among equal keys the earliest-inserted entry is returned.
func (t *Tree) NextAfter(key int64) (Entry, bool) {
	best := nilNode
	cur := t.root
	for cur != nilNode {
		if t.nodes[cur].key > key {
			best = cur
			cur = t.nodes[cur].left
		} else {
			cur = t.nodes[cur].right
		}
	}
	if best == nilNode {
		return Entry{}, false
	}
	return Entry{Key: t.nodes[best].key, ID: t.nodes[best].id}, true
}

// PreviousBefore returns the entry with the largest key strictly less than
// key. Among equal keys the latest-inserted entry is returned.
func (t *Tree) PreviousBefore(key int64) (Entry, bool) {
	best := nilNode
	cur := t.root
	for cur != nilNode {
		if t.nodes[cur].key < key {
			best = cur
			cur = t.nodes[cur].right
		} else {
			cur = t.nodes[cur].left
		}
	}
	if best == nilNode {
		return Entry{}, false
	}
	return Entry{Key: t.nodes[best].key, ID: t.nodes[best].id}, true
}

// At returns every identifier stored under exactly key, in insertion
// order.
func (t *Tree) At(key int64) []uuid.UUID {
	var out []uuid.UUID
	t.walk(t.root, func(n *node) {
		if n.key == key {
			out = append(out, n.id)
		}
	})
	return out
}

// Ascend visits all entries in (key, insertion) order until fn returns
// false.
func (t *Tree) Ascend(fn func(Entry) bool) {
	t.ascend(t.root, fn)
}

func (t *Tree) ascend(idx int32, fn func(Entry) bool) bool {
	if idx == nilNode {
		return true
	}
	n := &t.nodes[idx]
	if !t.ascend(n.left, fn) {
		return false
	}
	if !fn(Entry{Key: n.key, ID: n.id}) {
		return false
	}
	return t.ascend(n.right, fn)
}

func (t *Tree) walk(idx int32, fn func(*node)) {
	if idx == nilNode {
		return
	}
	t.walk(t.nodes[idx].left, fn)
	fn(&t.nodes[idx])
	t.walk(t.nodes[idx].right, fn)
}

// less orders nodes by key, then insertion sequence.
func less(aKey int64, aSeq uint64, bKey int64, bSeq uint64) bool {
	if aKey != bKey {
		return aKey < bKey
	}
	return aSeq < bSeq
}

func (t *Tree) alloc(key int64, seq uint64, id uuid.UUID) int32 {
	n := node{key: key, seq: seq, id: id, left: nilNode, right: nilNode, height: 1}
	if len(t.free) > 0 {
		idx := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.nodes[idx] = n
		return idx
	}
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

func (t *Tree) height(idx int32) int32 {
	if idx == nilNode {
		return 0
	}
	return t.nodes[idx].height
}

func (t *Tree) fix(idx int32) {
	lh, rh := t.height(t.nodes[idx].left), t.height(t.nodes[idx].right)
	if lh > rh {
		t.nodes[idx].height = lh + 1
	} else {
		t.nodes[idx].height = rh + 1
	}
}

func (t *Tree) balanceFactor(idx int32) int32 {
	return t.height(t.nodes[idx].left) - t.height(t.nodes[idx].right)
}

func (t *Tree) rotateRight(y int32) int32 {
	x := t.nodes[y].left
	t.nodes[y].left = t.nodes[x].right
	t.nodes[x].right = y
	t.fix(y)
	t.fix(x)
	return x
}

func (t *Tree) rotateLeft(x int32) int32 {
	y := t.nodes[x].right
	t.nodes[x].right = t.nodes[y].left
	t.nodes[y].left = x
	t.fix(x)
	t.fix(y)
	return y
}

// rebalance restores the AVL invariant at idx. Rotation choice depends
// only on subtree heights, never on allocation order, so replayed
// operation sequences rebalance identically.
func (t *Tree) rebalance(idx int32) int32 {
	t.fix(idx)
	bf := t.balanceFactor(idx)
	if bf > 1 {
		if t.balanceFactor(t.nodes[idx].left) < 0 {
			t.nodes[idx].left = t.rotateLeft(t.nodes[idx].left)
		}
		return t.rotateRight(idx)
	}
	if bf < -1 {
		if t.balanceFactor(t.nodes[idx].right) > 0 {
			t.nodes[idx].right = t.rotateRight(t.nodes[idx].right)
		}
		return t.rotateLeft(idx)
	}
	return idx
}

func (t *Tree) insert(idx int32, key int64, seq uint64, id uuid.UUID) int32 {
	if idx == nilNode {
		return t.alloc(key, seq, id)
	}
	n := &t.nodes[idx]
	if less(key, seq, n.key, n.seq) {
		left := t.insert(n.left, key, seq, id)
		t.nodes[idx].left = left
	} else {
		right := t.insert(n.right, key, seq, id)
		t.nodes[idx].right = right
	}
	return t.rebalance(idx)
}

// findSeq locates the entry with the given key and id and returns its
// insertion sequence, which totally orders it for removal.
func (t *Tree) findSeq(idx int32, key int64, id uuid.UUID) (uint64, bool) {
	if idx == nilNode {
		return 0, false
	}
	n := &t.nodes[idx]
	if key < n.key {
		return t.findSeq(n.left, key, id)
	}
	if key > n.key {
		return t.findSeq(n.right, key, id)
	}
	if n.id == id {
		return n.seq, true
	}
	// Equal keys may sit on either side depending on sequence.
	if seq, ok := t.findSeq(n.left, key, id); ok {
		return seq, true
	}
	return t.findSeq(n.right, key, id)
}

func (t *Tree) remove(idx int32, key int64, seq uint64) int32 {
	if idx == nilNode {
		return nilNode
	}
	n := &t.nodes[idx]
	switch {
	case less(key, seq, n.key, n.seq):
		left := t.remove(n.left, key, seq)
		t.nodes[idx].left = left
	case less(n.key, n.seq, key, seq):
		right := t.remove(n.right, key, seq)
		t.nodes[idx].right = right
	default:
		left, right := n.left, n.right
		if left == nilNode || right == nilNode {
			child := left
			if child == nilNode {
				child = right
			}
			t.free = append(t.free, idx)
			return child
		}
		// Two children: replace with in-order successor.
		succ := right
		for t.nodes[succ].left != nilNode {
			succ = t.nodes[succ].left
		}
		sKey, sSeq, sID := t.nodes[succ].key, t.nodes[succ].seq, t.nodes[succ].id
		newRight := t.remove(right, sKey, sSeq)
		t.nodes[idx].key = sKey
		t.nodes[idx].seq = sSeq
		t.nodes[idx].id = sID
		t.nodes[idx].right = newRight
	}
	return t.rebalance(idx)
}

// shape returns the preorder (key, seq) sequence of the tree. Two trees
// built from the same operation sequence have equal shapes.
func (t *Tree) shape() []Entry {
	var out []Entry
	var pre func(int32)
	pre = func(idx int32) {
		if idx == nilNode {
			return
		}
		out = append(out, Entry{Key: t.nodes[idx].key, ID: t.nodes[idx].id})
		pre(t.nodes[idx].left)
		pre(t.nodes[idx].right)
	}
	pre(t.root)
	return out
}
