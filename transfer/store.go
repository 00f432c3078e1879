package transfer

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrTransferInFlight = errors.New("sender already has a transfer in flight")
	ErrTransferRunning  = errors.New("transfer is already running")
)

// Store keeps transfer results in memory, keyed by transfer id and burn tx hash.
// Results are stored by value so readers never observe a transfer mid-update.
//
// A transfer id is claimed by Begin (or Reserve) and released once a terminal snapshot is
// stored, so only one run per id and one non-terminal transfer per sender exist at a time.
type Store struct {
	mu       sync.RWMutex
	byID     map[string]Result
	byBurn   map[string]string // burn tx hash -> transfer id
	running  map[string]bool
	reserved map[string]bool
}

func NewStore() *Store {
	return &Store{
		byID:     make(map[string]Result),
		byBurn:   make(map[string]string),
		running:  make(map[string]bool),
		reserved: make(map[string]bool),
	}
}

// Reserve claims res.ID ahead of the run that will Begin it, storing res as the first
// snapshot. Callers that start transfers in the background reserve before responding.
func (s *Store) Reserve(res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claimable(res); err != nil {
		return err
	}
	s.reserved[res.ID] = true
	s.running[res.ID] = true
	s.store(res)
	return nil
}

// Begin claims res.ID for a run and stores its first snapshot. A reserved id is handed to
// the first run that begins it.
func (s *Store) Begin(res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserved[res.ID] {
		delete(s.reserved, res.ID)
		s.store(res)
		return nil
	}
	if err := s.claimable(res); err != nil {
		return err
	}
	s.running[res.ID] = true
	s.store(res)
	return nil
}

func (s *Store) claimable(res Result) error {
	if s.running[res.ID] {
		return ErrTransferRunning
	}
	if res.Sender != "" {
		for id, r := range s.byID {
			if id != res.ID && !r.State.Terminal() && strings.EqualFold(r.Sender, res.Sender) {
				return ErrTransferInFlight
			}
		}
	}
	return nil
}

// Store replaces the snapshot of a transfer
func (s *Store) Store(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(res)
}

func (s *Store) store(res Result) {
	s.byID[res.ID] = res
	if res.State.Terminal() {
		delete(s.running, res.ID)
		delete(s.reserved, res.ID)
	}
	if res.BurnTxHash != "" {
		s.byBurn[strings.ToLower(res.BurnTxHash)] = res.ID
	}
}

func (s *Store) Load(id string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.byID[id]
	return res, ok
}

// ByBurnTx finds the transfer that submitted the burn txHash
func (s *Store) ByBurnTx(txHash string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byBurn[strings.ToLower(txHash)]
	if !ok {
		return Result{}, false
	}
	res, ok := s.byID[id]
	return res, ok
}

// InFlight reports whether sender has a transfer that is not complete or failed
func (s *Store) InFlight(sender string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.byID {
		if !r.State.Terminal() && strings.EqualFold(r.Sender, sender) {
			return true
		}
	}
	return false
}

// List returns every stored transfer, oldest first
func (s *Store) List() []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]Result, 0, len(s.byID))
	for _, r := range s.byID {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].StartedAt.Before(results[j].StartedAt)
	})
	return results
}
