// Package orderedtags implements the in-flight bootstrap request registry
// described in spec.md §4.5 (component C5). A tag is the only
// authoritative proof that a given peer reply is expected; this package
// indexes live tags by id, by account, by hash, and by insertion order so
// the orchestrator can demultiplex acks and enforce per-target in-flight
// caps without scanning.
package orderedtags

import (
	"container/list"

	"github.com/kaspanet/latticeboot/bootstrap/model"
	"github.com/kaspanet/latticeboot/logger"
	"github.com/pkg/errors"
)

var log, _ = logger.Get(logger.SubsystemTags.TAGS)

type accountKey struct {
	account model.Account
	source  model.QuerySource
}

type hashKey struct {
	hash   model.BlockHash
	source model.QuerySource
}

// OrderedTags is the C5 in-flight request registry. Not safe for
// concurrent use by itself; the orchestrator serializes access under its
// own lock, matching spec §5.
type OrderedTags struct {
	maxRequests int

	byID      map[uint64]*list.Element
	insertion *list.List // front = oldest, used for timeout sweeping

	byAccount map[accountKey]int
	byHash    map[hashKey]int
}

// New creates an empty OrderedTags capped at maxRequests live entries.
func New(maxRequests int) *OrderedTags {
	return &OrderedTags{
		maxRequests: maxRequests,
		byID:        make(map[uint64]*list.Element),
		insertion:   list.New(),
		byAccount:   make(map[accountKey]int),
		byHash:      make(map[hashKey]int),
	}
}

// Len returns the number of live tags.
func (t *OrderedTags) Len() int {
	return len(t.byID)
}

// HasCapacity reports whether Insert would succeed without exceeding
// max_requests.
func (t *OrderedTags) HasCapacity() bool {
	return t.Len() < t.maxRequests
}

// Contains reports whether id is already a live tag. Callers must check
// this before Insert, per spec §3's tag-uniqueness invariant.
func (t *OrderedTags) Contains(id uint64) bool {
	_, ok := t.byID[id]
	return ok
}

// Insert adds tag to the registry. It is a fatal invariant violation
// (spec §7 "internal invariant violations... fatal assertions") to
// insert a duplicate id or to insert while at capacity; callers must
// check Contains and HasCapacity first.
func (t *OrderedTags) Insert(tag *model.AsyncTag) error {
	if t.Contains(tag.ID) {
		return errors.Errorf("tag id %d already registered", tag.ID)
	}
	if !t.HasCapacity() {
		return errors.Errorf("orderedtags at capacity (%d)", t.maxRequests)
	}

	elem := t.insertion.PushBack(tag)
	t.byID[tag.ID] = elem
	t.byAccount[accountKey{tag.Account, tag.Source}]++
	if !tag.Hash.IsZero() {
		t.byHash[hashKey{tag.Hash, tag.Source}]++
	}
	return nil
}

// Remove evicts the tag with the given id, if any, and returns it.
func (t *OrderedTags) Remove(id uint64) (*model.AsyncTag, bool) {
	elem, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	tag := elem.Value.(*model.AsyncTag)
	t.insertion.Remove(elem)
	delete(t.byID, id)

	ak := accountKey{tag.Account, tag.Source}
	if n := t.byAccount[ak] - 1; n <= 0 {
		delete(t.byAccount, ak)
	} else {
		t.byAccount[ak] = n
	}
	if !tag.Hash.IsZero() {
		hk := hashKey{tag.Hash, tag.Source}
		if n := t.byHash[hk] - 1; n <= 0 {
			delete(t.byHash, hk)
		} else {
			t.byHash[hk] = n
		}
	}
	return tag, true
}

// Front returns the oldest live tag by insertion order, without removing
// it, for timeout sweeping.
func (t *OrderedTags) Front() (*model.AsyncTag, bool) {
	elem := t.insertion.Front()
	if elem == nil {
		return nil, false
	}
	return elem.Value.(*model.AsyncTag), true
}

// PopFront removes and returns the oldest live tag.
func (t *OrderedTags) PopFront() (*model.AsyncTag, bool) {
	tag, ok := t.Front()
	if !ok {
		return nil, false
	}
	removed, _ := t.Remove(tag.ID)
	return removed, true
}

// CountByAccount returns how many live tags target account from source.
// Used as a duplicate-request filter (spec §4.9.3).
func (t *OrderedTags) CountByAccount(account model.Account, source model.QuerySource) int {
	return t.byAccount[accountKey{account, source}]
}

// CountByHash returns how many live tags target hash from source.
func (t *OrderedTags) CountByHash(hash model.BlockHash, source model.QuerySource) int {
	return t.byHash[hashKey{hash, source}]
}

// EvictExpired removes tags from the insertion-ordered front whose age
// exceeds requestTimeout, sequentially stopping at the first tag young
// enough to survive (spec §4.9.1 cleanup worker). It returns the evicted
// tags for stats accounting.
func (t *OrderedTags) EvictExpired(nowNanos int64, requestTimeoutNanos int64) []*model.AsyncTag {
	var evicted []*model.AsyncTag
	for {
		tag, ok := t.Front()
		if !ok {
			break
		}
		if nowNanos-tag.Timestamp < requestTimeoutNanos {
			break
		}
		t.PopFront()
		evicted = append(evicted, tag)
		log.Debugf("evicted timed-out tag %d (account %s, source %s)", tag.ID, tag.Account, tag.Source)
	}
	return evicted
}
