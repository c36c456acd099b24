// Package accountsets implements the priority heap and blocked-account
// map described in spec.md §4.1 (component C1). An account is in either
// the priority set or the blocked map, never both (spec §3 invariant).
package accountsets

import (
	"container/heap"

	"github.com/kaspanet/latticeboot/bootstrap/model"
	"github.com/kaspanet/latticeboot/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.ASET)

// PriorityDownResult is the outcome of PriorityDown.
type PriorityDownResult uint8

const (
	// Deprioritized means the account's priority was lowered but it
	// survives.
	Deprioritized PriorityDownResult = iota
	// Erased means the account's priority fell below the cutoff and it
	// was removed.
	Erased
	// AccountNotFound means the account was not in the priority set.
	AccountNotFound
	// InvalidAccount means the account is the zero sentinel.
	InvalidAccount
)

// PriorityUpResult is the outcome of PriorityUp.
type PriorityUpResult uint8

const (
	// Updated means an existing entry's priority was raised.
	Updated PriorityUpResult = iota
	// Inserted means a new entry was created at the default priority.
	Inserted
	// AccountBlocked means the account is currently in the blocked map,
	// so its priority was left untouched.
	AccountBlocked
	// UpInvalidAccount means the account is the zero sentinel.
	UpInvalidAccount
)

const (
	// priorityUpFactor raises priority by this multiplier on a
	// successful block insertion.
	priorityUpFactor = 2.0
	// priorityDownFactor lowers priority by this divisor on "nothing
	// new" replies.
	priorityDownFactor = 2.0
	// initialPriority seeds a brand-new account above the cutoff so it
	// is competitive on its first few rounds.
	initialPriority = 2.0
)

// entry is one account's priority-set bookkeeping.
type entry struct {
	account            model.Account
	priority           model.Priority
	lastRequestTimeSec int64
	heapIndex          int
}

// priorityHeap is a max-heap on (priority desc, lastRequestTime asc,
// account asc), matching the tie-break rules in spec §4.1.
type priorityHeap []*entry

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	if h[i].lastRequestTimeSec != h[j].lastRequestTimeSec {
		return h[i].lastRequestTimeSec < h[j].lastRequestTimeSec
	}
	return h[i].account.Less(h[j].account)
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *priorityHeap) Push(x interface{}) {
	e := x.(*entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

// AccountSets is the C1 priority set and blocked map. Not safe for
// concurrent use by itself; the orchestrator serializes access under its
// own lock.
type AccountSets struct {
	cutoff   model.Priority
	capacity int

	heap    priorityHeap
	byIndex map[model.Account]*entry // priority set membership
	blocked map[model.Account]model.BlockHash
	byHash  map[model.BlockHash]map[model.Account]struct{}
}

// New creates an empty AccountSets with the given priority cutoff and
// priority-set capacity bound.
func New(cutoff model.Priority, capacity int) *AccountSets {
	return &AccountSets{
		cutoff:   cutoff,
		capacity: capacity,
		heap:     make(priorityHeap, 0),
		byIndex:  make(map[model.Account]*entry),
		blocked:  make(map[model.Account]model.BlockHash),
		byHash:   make(map[model.BlockHash]map[model.Account]struct{}),
	}
}

// Cutoff returns the configured priority floor.
func (s *AccountSets) Cutoff() model.Priority {
	return s.cutoff
}

// PrioritySetLen returns the number of accounts in the priority set.
func (s *AccountSets) PrioritySetLen() int {
	return len(s.byIndex)
}

// BlockedLen returns the number of accounts in the blocked map.
func (s *AccountSets) BlockedLen() int {
	return len(s.blocked)
}

// IsHalfFull reports whether the priority set has reached half of its
// configured capacity, gating GapPrevious live-traffic admission
// (spec §4.1 "the priority heap has a half-full flag").
func (s *AccountSets) IsHalfFull() bool {
	if s.capacity <= 0 {
		return false
	}
	return len(s.byIndex) >= s.capacity/2
}

// IsBlockedHalfFull mirrors IsHalfFull for the blocked map, used by the
// GapPrevious/Live feedback rule in spec §4.9.6.
func (s *AccountSets) IsBlockedHalfFull() bool {
	if s.capacity <= 0 {
		return false
	}
	return len(s.blocked) >= s.capacity/2
}

// InPriority reports whether account is currently in the priority set.
func (s *AccountSets) InPriority(account model.Account) bool {
	_, ok := s.byIndex[account]
	return ok
}

// InBlocked reports whether account is currently in the blocked map.
func (s *AccountSets) InBlocked(account model.Account) bool {
	_, ok := s.blocked[account]
	return ok
}

// PriorityOf returns account's current priority score, if it is in the
// priority set. Used to size outgoing pull requests (spec §4.9.2).
func (s *AccountSets) PriorityOf(account model.Account) (model.Priority, bool) {
	e, ok := s.byIndex[account]
	if !ok {
		return 0, false
	}
	return e.priority, true
}

// PrioritySet inserts account at priority if absent, or raises its
// priority if priority exceeds the existing value. Capacity-bounded: once
// capacity is exceeded, the entry the heap order ranks last is evicted
// (lowest priority; among equal priorities, the latest
// last_request_timestamp, then the larger account).
func (s *AccountSets) PrioritySet(account model.Account, priority model.Priority) {
	if account.IsZero() {
		return
	}
	if _, blocked := s.blocked[account]; blocked {
		return
	}

	if e, ok := s.byIndex[account]; ok {
		if priority > e.priority {
			e.priority = priority
			heap.Fix(&s.heap, e.heapIndex)
		}
		return
	}

	e := &entry{account: account, priority: priority}
	heap.Push(&s.heap, e)
	s.byIndex[account] = e

	s.evictIfOverCapacity()
}

func (s *AccountSets) evictIfOverCapacity() {
	if s.capacity <= 0 {
		return
	}
	for len(s.byIndex) > s.capacity {
		worst := s.findLowestPriorityEntry()
		if worst == nil {
			return
		}
		s.eraseFromPriority(worst.account)
	}
}

// findLowestPriorityEntry scans for the entry the heap's ordering ranks
// last; used only on the rare eviction path so an O(n) scan is
// acceptable and keeps the heap itself a pure max-heap.
func (s *AccountSets) findLowestPriorityEntry() *entry {
	var worst *entry
	for _, e := range s.byIndex {
		if worst == nil || isWorse(e, worst) {
			worst = e
		}
	}
	return worst
}

func isWorse(a, b *entry) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	if a.lastRequestTimeSec != b.lastRequestTimeSec {
		return a.lastRequestTimeSec > b.lastRequestTimeSec
	}
	return b.account.Less(a.account)
}

func (s *AccountSets) eraseFromPriority(account model.Account) {
	e, ok := s.byIndex[account]
	if !ok {
		return
	}
	heap.Remove(&s.heap, e.heapIndex)
	delete(s.byIndex, account)
}

// NextPriority returns the highest-priority account whose cooldown (the
// interval since last_request_timestamp) has elapsed at nowSec and which
// filter accepts. filter is typically a duplicate-in-flight check
// (spec §4.9.3). Returns the zero account if none qualifies.
func (s *AccountSets) NextPriority(nowSec int64, cooldownSec int64, filter func(model.Account) bool) model.Account {
	// The heap only orders by (priority, timestamp, account); cooldown
	// and the caller's filter can disqualify the head, so we scan
	// candidates in heap order without mutating the heap.
	candidates := make([]*entry, len(s.heap))
	copy(candidates, s.heap)
	sortByOrder(candidates)

	for _, e := range candidates {
		if nowSec-e.lastRequestTimeSec < cooldownSec {
			continue
		}
		if filter != nil && !filter(e.account) {
			continue
		}
		return e.account
	}
	return model.Account{}
}

func sortByOrder(entries []*entry) {
	// Simple insertion sort over the copy of every priority-set entry
	// that NextPriority passes in.
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && less(entries[j], entries[j-1]) {
			entries[j], entries[j-1] = entries[j-1], entries[j]
			j--
		}
	}
}

func less(a, b *entry) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	if a.lastRequestTimeSec != b.lastRequestTimeSec {
		return a.lastRequestTimeSec < b.lastRequestTimeSec
	}
	return a.account.Less(b.account)
}

// Timestamp updates account's last_request_timestamp to nowSec, called
// once a request targeting it has actually been issued.
func (s *AccountSets) Timestamp(account model.Account, nowSec int64) {
	if e, ok := s.byIndex[account]; ok {
		e.lastRequestTimeSec = nowSec
	}
}

// TimestampReset clears account's cooldown, called from a block
// processor completion callback once the chain can progress further
// (spec §4.9.4).
func (s *AccountSets) TimestampReset(account model.Account) {
	if e, ok := s.byIndex[account]; ok {
		e.lastRequestTimeSec = 0
	}
}

// PriorityUp raises account's priority on a successful block insertion.
func (s *AccountSets) PriorityUp(account model.Account) PriorityUpResult {
	if account.IsZero() {
		return UpInvalidAccount
	}
	if _, blocked := s.blocked[account]; blocked {
		return AccountBlocked
	}
	if e, ok := s.byIndex[account]; ok {
		e.priority *= priorityUpFactor
		heap.Fix(&s.heap, e.heapIndex)
		return Updated
	}
	s.PrioritySet(account, initialPriority)
	return Inserted
}

// PriorityDown lowers account's priority on a "nothing new" reply,
// erasing it once it falls below the cutoff.
func (s *AccountSets) PriorityDown(account model.Account) PriorityDownResult {
	if account.IsZero() {
		return InvalidAccount
	}
	e, ok := s.byIndex[account]
	if !ok {
		return AccountNotFound
	}
	e.priority /= priorityDownFactor
	if e.priority < s.cutoff {
		s.eraseFromPriority(account)
		return Erased
	}
	heap.Fix(&s.heap, e.heapIndex)
	return Deprioritized
}

// Block moves account from the priority set to the blocked map, keyed by
// dependencyHash.
func (s *AccountSets) Block(account model.Account, dependencyHash model.BlockHash) {
	s.eraseFromPriority(account)
	s.blocked[account] = dependencyHash
	if s.byHash[dependencyHash] == nil {
		s.byHash[dependencyHash] = make(map[model.Account]struct{})
	}
	s.byHash[dependencyHash][account] = struct{}{}
}

// Unblock moves account back to the priority set at the cutoff if its
// stored dependency matches hash (or hash is nil, matching unconditionally).
// Returns whether unblocking occurred.
func (s *AccountSets) Unblock(account model.Account, hash *model.BlockHash) bool {
	stored, ok := s.blocked[account]
	if !ok {
		return false
	}
	if hash != nil && stored != *hash {
		return false
	}

	delete(s.blocked, account)
	if set, ok := s.byHash[stored]; ok {
		delete(set, account)
		if len(set) == 0 {
			delete(s.byHash, stored)
		}
	}

	s.PrioritySet(account, s.cutoff)
	return true
}

// DependencyUpdate raises newAccount's priority for every blocked entry
// whose dependency equals hash, returning the count updated
// (spec §4.1's dependency_update).
func (s *AccountSets) DependencyUpdate(hash model.BlockHash, newAccount model.Account) int {
	set, ok := s.byHash[hash]
	if !ok {
		return 0
	}
	s.PrioritySet(newAccount, s.cutoff)
	return len(set)
}

// SyncDependencies is the periodic consistency pass over the blocked map:
// it logs a critical message for any blocked account that is also in the
// priority set. It changes no priority and does not seed the accounts
// that own the blocked dependency hashes; the blocked map records only
// the dependency hash, not the account it belongs to.
func (s *AccountSets) SyncDependencies() {
	for account := range s.blocked {
		if _, inPriority := s.byIndex[account]; inPriority {
			log.Criticalf("account %s is in both priority and blocked sets", account)
		}
	}
}

// NextBlocking returns a dependency hash with zero in-flight
// Dependencies-source requests, as reported by hasInFlight, or false if
// none qualifies (spec §4.1's next_blocking).
func (s *AccountSets) NextBlocking(hasInFlight func(model.BlockHash) bool) (model.BlockHash, bool) {
	for hash := range s.byHash {
		if hasInFlight == nil || !hasInFlight(hash) {
			return hash, true
		}
	}
	return model.BlockHash{}, false
}
