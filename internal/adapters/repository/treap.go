package repository

import (
	"github.com/cespare/xxhash/v2"

	"github.com/okian/mathboard/internal/domain/model"
	"github.com/okian/mathboard/internal/domain/ranking"
)

// Order-statistics treap keyed by the leaderboard order. In-order traversal
// yields players from best to worst; size lets us count how many players
// rank ahead of a key in O(log n).

type node struct {
	stats model.PlayerStats
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

// priority hashes the player id so tree shape does not depend on score
// distribution or insertion order.
func priority(id string) uint64 {
	return xxhash.Sum64String(id)
}

func insert(n *node, s model.PlayerStats) *node {
	if n == nil {
		return &node{stats: s, prio: priority(s.PlayerID), size: 1}
	}
	if ranking.Less(s, n.stats) {
		n.left = insert(n.left, s)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, s)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// remove deletes the node whose key equals s. s must be the exact record
// stored, since the key includes every ordering field.
func remove(n *node, s model.PlayerStats) *node {
	if n == nil {
		return nil
	}
	switch c := ranking.Compare(s, n.stats); {
	case c < 0:
		n.left = remove(n.left, s)
	case c > 0:
		n.right = remove(n.right, s)
	default:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, s)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, s)
		}
	}
	fix(n)
	return n
}

// countBefore returns how many keys rank strictly ahead of s.
func countBefore(n *node, s model.PlayerStats) int {
	count := 0
	for n != nil {
		if ranking.Less(n.stats, s) {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// iterator walks a treap in order with an explicit stack.
type iterator struct {
	stack []*node
}

func newIterator(root *node) *iterator {
	it := &iterator{}
	it.pushLeft(root)
	return it
}

func (it *iterator) pushLeft(n *node) {
	for n != nil {
		it.stack = append(it.stack, n)
		n = n.left
	}
}

func (it *iterator) peek() (model.PlayerStats, bool) {
	if len(it.stack) == 0 {
		return model.PlayerStats{}, false
	}
	return it.stack[len(it.stack)-1].stats, true
}

func (it *iterator) next() {
	n := it.stack[len(it.stack)-1]
	it.stack = it.stack[:len(it.stack)-1]
	it.pushLeft(n.right)
}

// seek positions the iterator at the k-th key (0-based) using subtree sizes.
func seek(root *node, k int) *iterator {
	it := &iterator{}
	n := root
	for n != nil {
		ls := nsize(n.left)
		switch {
		case k < ls:
			it.stack = append(it.stack, n)
			n = n.left
		case k == ls:
			it.stack = append(it.stack, n)
			return it
		default:
			k -= ls + 1
			n = n.right
		}
	}
	return it
}

// kth returns the k-th key (0-based). k must be within [0, nsize(n)).
func kth(n *node, k int) model.PlayerStats {
	for {
		ls := nsize(n.left)
		switch {
		case k < ls:
			n = n.left
		case k == ls:
			return n.stats
		default:
			k -= ls + 1
			n = n.right
		}
	}
}
