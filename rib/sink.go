// Package rib provides the collaborator interface the FSM uses to
// install and withdraw NLRI on Established UPDATE processing, and a
// default in-memory implementation backed by a longest-prefix-match
// trie. Route selection, policy, and best-path are explicitly out of
// scope here: this is the adj-RIB-in boundary, nothing more.
package rib

import (
	"sync"

	"github.com/mwolff44/bgpeer/ipv4"
)

// PathAttributes is the opaque, still-encoded attribute blob that
// accompanied an UPDATE's NLRI. Parsing beyond withdrawn/NLRI
// extraction is out of scope per the session layer's contract.
type PathAttributes []byte

// Sink is the collaborator the FSM calls on Established UPDATE
// processing and on every transition into Idle.
type Sink interface {
	// Install records newly reachable prefixes together with the
	// path attributes they arrived with.
	Install(prefixes []*ipv4.Prefix, attrs PathAttributes)
	// Withdraw removes prefixes that the peer declared unreachable.
	Withdraw(prefixes []*ipv4.Prefix)
	// Flush discards every prefix associated with sessionID. Called
	// on every FSM transition into Idle.
	Flush(sessionID string)
}

// AdjRIBIn is a minimal multi-session table: one longest-prefix-match
// trie per session, keyed by session ID so Flush can discard just that
// session's routes without touching others sharing the same table. It
// does not itself implement Sink; NewSink binds it to one session ID.
type AdjRIBIn struct {
	mu   sync.Mutex
	tries map[string]*trie
}

// NewAdjRIBIn creates an empty AdjRIBIn.
func NewAdjRIBIn() *AdjRIBIn {
	return &AdjRIBIn{
		tries: make(map[string]*trie),
	}
}

func (r *AdjRIBIn) trieFor(sessionID string) *trie {
	t, ok := r.tries[sessionID]
	if !ok {
		t = newTrie()
		r.tries[sessionID] = t
	}
	return t
}

// InstallFor installs prefixes for a specific session. The Sink
// returned by NewSink calls it with its bound session ID; callers
// holding the AdjRIBIn itself call InstallFor/WithdrawFor/Flush directly.
func (r *AdjRIBIn) InstallFor(sessionID string, prefixes []*ipv4.Prefix, _ PathAttributes) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.trieFor(sessionID)
	for _, pfx := range prefixes {
		t.insert(pfx)
	}
}

// WithdrawFor withdraws prefixes for a specific session.
func (r *AdjRIBIn) WithdrawFor(sessionID string, prefixes []*ipv4.Prefix) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.trieFor(sessionID)
	for _, pfx := range prefixes {
		t.remove(pfx)
	}
}

// Flush discards every prefix installed for sessionID.
func (r *AdjRIBIn) Flush(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tries, sessionID)
}

// Dump returns every non-withdrawn prefix held for sessionID, in trie
// order. Intended for diagnostics/tests.
func (r *AdjRIBIn) Dump(sessionID string) []*ipv4.Prefix {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tries[sessionID]
	if !ok {
		return nil
	}
	return t.dump()
}

// LPM performs a longest-prefix-match lookup for needle against
// sessionID's adj-RIB-in.
func (r *AdjRIBIn) LPM(sessionID string, needle *ipv4.Prefix) []*ipv4.Prefix {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tries[sessionID]
	if !ok {
		return nil
	}
	return t.lookup(needle)
}

// boundSink adapts an AdjRIBIn plus a fixed session ID to the Sink
// interface the FSM expects, so each session can hold a plain Sink
// without re-threading its own ID through every call.
type boundSink struct {
	rib       *AdjRIBIn
	sessionID string
}

// NewSink returns a Sink bound to one session ID within rib.
func NewSink(r *AdjRIBIn, sessionID string) Sink {
	return &boundSink{rib: r, sessionID: sessionID}
}

func (b *boundSink) Install(prefixes []*ipv4.Prefix, attrs PathAttributes) {
	b.rib.InstallFor(b.sessionID, prefixes, attrs)
}

func (b *boundSink) Withdraw(prefixes []*ipv4.Prefix) {
	b.rib.WithdrawFor(b.sessionID, prefixes)
}

func (b *boundSink) Flush(sessionID string) {
	b.rib.Flush(sessionID)
}
