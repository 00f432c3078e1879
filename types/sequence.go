package types

import "sync"

// SequenceMap maps the domain -> the minter account nonce. Holding a domain's Sequence
// serializes every submission from the account on that domain.
type SequenceMap struct {
	mu        sync.Mutex
	sequences map[Domain]*Sequence
}

// Sequence is the locally tracked nonce of one account on one domain
type Sequence struct {
	mu     sync.Mutex
	nonce  uint64
	synced bool
}

func NewSequenceMap() *SequenceMap {
	return &SequenceMap{
		sequences: make(map[Domain]*Sequence),
	}
}

// Acquire blocks until the caller holds the domain's sequence. Release must be called.
func (m *SequenceMap) Acquire(domain Domain) *Sequence {
	m.mu.Lock()
	seq, ok := m.sequences[domain]
	if !ok {
		seq = &Sequence{}
		m.sequences[domain] = seq
	}
	m.mu.Unlock()

	seq.mu.Lock()
	return seq
}

func (s *Sequence) Release() {
	s.mu.Unlock()
}

// Next returns the nonce to use and whether it was synced with the chain
func (s *Sequence) Next() (uint64, bool) {
	return s.nonce, s.synced
}

func (s *Sequence) Set(nonce uint64) {
	s.nonce = nonce
	s.synced = true
}

func (s *Sequence) Increment() {
	s.nonce++
}

// Invalidate forces a resync from the chain on the next submission
func (s *Sequence) Invalidate() {
	s.synced = false
}
