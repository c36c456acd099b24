package orderedtags

import (
	"testing"

	"github.com/kaspanet/latticeboot/bootstrap/model"
)

func mkTag(id uint64, account model.Account, source model.QuerySource, timestamp int64) *model.AsyncTag {
	return &model.AsyncTag{ID: id, Account: account, Source: source, Timestamp: timestamp}
}

func TestInsertAndRemove(t *testing.T) {
	tags := New(4)
	var acc model.Account
	acc[0] = 1
	tag := mkTag(1, acc, model.SourcePriority, 100)

	if err := tags.Insert(tag); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tags.Contains(1) {
		t.Fatal("expected tag 1 to be registered")
	}
	if got := tags.CountByAccount(acc, model.SourcePriority); got != 1 {
		t.Fatalf("expected count 1, got %d", got)
	}

	removed, ok := tags.Remove(1)
	if !ok || removed.ID != 1 {
		t.Fatal("expected to remove tag 1")
	}
	if tags.Contains(1) {
		t.Fatal("tag 1 should no longer be registered")
	}
	if got := tags.CountByAccount(acc, model.SourcePriority); got != 0 {
		t.Fatalf("expected count 0 after removal, got %d", got)
	}
}

func TestInsertDuplicateIDErrors(t *testing.T) {
	tags := New(4)
	tag := mkTag(1, model.Account{}, model.SourcePriority, 0)
	if err := tags.Insert(tag); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tags.Insert(tag); err == nil {
		t.Fatal("expected an error inserting a duplicate tag id")
	}
}

func TestInsertAtCapacityErrors(t *testing.T) {
	tags := New(1)
	if err := tags.Insert(mkTag(1, model.Account{}, model.SourcePriority, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tags.HasCapacity() {
		t.Fatal("expected no capacity remaining")
	}
	if err := tags.Insert(mkTag(2, model.Account{}, model.SourcePriority, 0)); err == nil {
		t.Fatal("expected an error inserting beyond capacity")
	}
}

func TestFrontOrdersByInsertion(t *testing.T) {
	tags := New(4)
	tags.Insert(mkTag(1, model.Account{}, model.SourcePriority, 10))
	tags.Insert(mkTag(2, model.Account{}, model.SourcePriority, 20))

	front, ok := tags.Front()
	if !ok || front.ID != 1 {
		t.Fatal("expected tag 1 to be the oldest")
	}

	popped, ok := tags.PopFront()
	if !ok || popped.ID != 1 {
		t.Fatal("expected to pop tag 1")
	}
	front, ok = tags.Front()
	if !ok || front.ID != 2 {
		t.Fatal("expected tag 2 to now be the oldest")
	}
}

func TestEvictExpired(t *testing.T) {
	tags := New(4)
	tags.Insert(mkTag(1, model.Account{}, model.SourcePriority, 0))
	tags.Insert(mkTag(2, model.Account{}, model.SourcePriority, 50))

	evicted := tags.EvictExpired(60, 30)
	if len(evicted) != 1 || evicted[0].ID != 1 {
		t.Fatalf("expected only tag 1 to have timed out, got %+v", evicted)
	}
	if tags.Len() != 1 {
		t.Fatalf("expected 1 remaining live tag, got %d", tags.Len())
	}
}

func TestCountByHashTracksSourceSeparately(t *testing.T) {
	tags := New(4)
	var hash model.BlockHash
	hash[0] = 7
	tags.Insert(&model.AsyncTag{ID: 1, Hash: hash, Source: model.SourceDependencies})

	if got := tags.CountByHash(hash, model.SourceDependencies); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := tags.CountByHash(hash, model.SourceFrontiers); got != 0 {
		t.Fatalf("expected 0 for an unrelated source, got %d", got)
	}
}
