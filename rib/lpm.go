package rib

import (
	"github.com/mwolff44/bgpeer/ipv4"
)

// trie is a longest-prefix-match radix trie over IPv4 prefixes. It
// backs AdjRIBIn and is deliberately independent of any
// session state: multiple peers may each own one, or a future
// multi-peer RIB could share it.
type trie struct {
	root  *node
	nodes uint64
}

type node struct {
	skip  uint8
	dummy bool
	pfx   *ipv4.Prefix
	l     *node
	h     *node
}

func newTrie() *trie {
	return &trie{}
}

func newNode(pfx *ipv4.Prefix, skip uint8, dummy bool) *node {
	return &node{
		pfx:   pfx,
		skip:  skip,
		dummy: dummy,
	}
}

// lookup performs a longest prefix match for pfx, returning every
// covering prefix from least to most specific.
func (t *trie) lookup(pfx *ipv4.Prefix) (res []*ipv4.Prefix) {
	if t.root == nil {
		return nil
	}

	t.root.lpm(pfx, &res)
	return res
}

// get retrieves the exact prefix pfx, or (with moreSpecifics) every
// prefix at or below it in the trie.
func (t *trie) get(pfx *ipv4.Prefix, moreSpecifics bool) (res []*ipv4.Prefix) {
	if t.root == nil {
		return nil
	}

	n := t.root.get(pfx)
	if moreSpecifics {
		return n.dumpPfxs(res)
	}

	if n == nil {
		return nil
	}

	return []*ipv4.Prefix{n.pfx}
}

// insert adds pfx to the trie. Inserting an already-present prefix is
// a no-op.
func (t *trie) insert(pfx *ipv4.Prefix) {
	if t.root == nil {
		t.root = newNode(pfx, pfx.Pfxlen(), false)
		t.nodes++
		return
	}

	t.root = t.root.insert(pfx)
	t.nodes++
}

// remove deletes pfx from the trie, demoting its node to a dummy
// (structural-only) node so descendants stay reachable. Removing a
// prefix that isn't present is a no-op.
func (t *trie) remove(pfx *ipv4.Prefix) {
	if t.root == nil {
		return
	}
	t.root.remove(pfx)
}

func (n *node) remove(pfx *ipv4.Prefix) {
	if n == nil {
		return
	}

	if *n.pfx == *pfx {
		n.dummy = true
		return
	}

	if !n.pfx.Contains(pfx) {
		return
	}

	b := getBitUint32(pfx.Addr(), n.pfx.Pfxlen()+1)
	if !b {
		n.l.remove(pfx)
		return
	}
	n.h.remove(pfx)
}

func (t *trie) dump() []*ipv4.Prefix {
	if t.root == nil {
		return nil
	}
	return t.root.dumpPfxs(nil)
}

func (n *node) lpm(needle *ipv4.Prefix, res *[]*ipv4.Prefix) {
	if n == nil {
		return
	}

	if *n.pfx == *needle && !n.dummy {
		*res = append(*res, n.pfx)
		return
	}

	if !n.pfx.Contains(needle) {
		return
	}

	if !n.dummy {
		*res = append(*res, n.pfx)
	}
	n.l.lpm(needle, res)
	n.h.lpm(needle, res)
}

func (n *node) dumpPfxs(res []*ipv4.Prefix) []*ipv4.Prefix {
	if n == nil {
		return nil
	}

	if !n.dummy {
		res = append(res, n.pfx)
	}

	if n.l != nil {
		res = n.l.dumpPfxs(res)
	}
	if n.h != nil {
		res = n.h.dumpPfxs(res)
	}

	return res
}

func (n *node) get(pfx *ipv4.Prefix) *node {
	if n == nil {
		return nil
	}

	if *n.pfx == *pfx {
		if n.dummy {
			return nil
		}
		return n
	}

	if n.pfx.Pfxlen() > pfx.Pfxlen() {
		return nil
	}

	b := getBitUint32(pfx.Addr(), n.pfx.Pfxlen()+1)
	if !b {
		return n.l.get(pfx)
	}
	return n.h.get(pfx)
}

func (n *node) insert(pfx *ipv4.Prefix) *node {
	if *n.pfx == *pfx {
		n.dummy = false
		return n
	}

	if !n.pfx.Contains(pfx) {
		if pfx.Contains(n.pfx) {
			return n.insertBefore(pfx, n.pfx.Pfxlen()-n.skip-1)
		}
		return n.newSuperNode(pfx)
	}

	b := getBitUint32(pfx.Addr(), n.pfx.Pfxlen()+1)
	if !b {
		return n.insertLow(pfx, n.pfx.Pfxlen())
	}
	return n.insertHigh(pfx, n.pfx.Pfxlen())
}

func (n *node) insertLow(pfx *ipv4.Prefix, parentPfxLen uint8) *node {
	if n.l == nil {
		n.l = newNode(pfx, pfx.Pfxlen()-parentPfxLen-1, false)
		return n
	}
	n.l = n.l.insert(pfx)
	return n
}

func (n *node) insertHigh(pfx *ipv4.Prefix, parentPfxLen uint8) *node {
	if n.h == nil {
		n.h = newNode(pfx, pfx.Pfxlen()-parentPfxLen-1, false)
		return n
	}
	n.h = n.h.insert(pfx)
	return n
}

func (n *node) newSuperNode(pfx *ipv4.Prefix) *node {
	superNet := pfx.GetSupernet(n.pfx)

	pfxLenDiff := n.pfx.Pfxlen() - superNet.Pfxlen()
	skip := n.skip - pfxLenDiff

	pseudoNode := newNode(superNet, skip, true)
	pseudoNode.insertChildren(n, pfx)
	return pseudoNode
}

func (n *node) insertChildren(old *node, newPfx *ipv4.Prefix) {
	b := getBitUint32(old.pfx.Addr(), n.pfx.Pfxlen()+1)
	if !b {
		n.l = old
		n.l.skip = old.pfx.Pfxlen() - n.pfx.Pfxlen() - 1
	} else {
		n.h = old
		n.h.skip = old.pfx.Pfxlen() - n.pfx.Pfxlen() - 1
	}

	inserted := newNode(newPfx, newPfx.Pfxlen()-n.pfx.Pfxlen()-1, false)
	b = getBitUint32(newPfx.Addr(), n.pfx.Pfxlen()+1)
	if !b {
		n.l = inserted
	} else {
		n.h = inserted
	}
}

func (n *node) insertBefore(pfx *ipv4.Prefix, parentPfxLen uint8) *node {
	tmp := n

	pfxLenDiff := n.pfx.Pfxlen() - pfx.Pfxlen()
	skip := n.skip - pfxLenDiff
	newN := newNode(pfx, skip, false)

	b := getBitUint32(pfx.Addr(), parentPfxLen)
	if !b {
		newN.l = tmp
		newN.l.skip = tmp.pfx.Pfxlen() - pfx.Pfxlen() - 1
	} else {
		newN.h = tmp
		newN.h.skip = tmp.pfx.Pfxlen() - pfx.Pfxlen() - 1
	}

	return newN
}

func getBitUint32(x uint32, pos uint8) bool {
	return (x & (1 << (32 - pos))) != 0
}
