package databasescan

import (
	"testing"

	"github.com/kaspanet/latticeboot/bootstrap/model"
)

func acct(b byte) model.Account {
	var a model.Account
	a[31] = b
	return a
}

// fakeAccountIter walks a fixed slice of accounts greater than or equal
// to its start cursor, in order.
type fakeAccountIter struct {
	accounts []model.Account
	pos      int
}

func (it *fakeAccountIter) Next() (model.Account, bool) {
	if it.pos >= len(it.accounts) {
		return model.Account{}, false
	}
	a := it.accounts[it.pos]
	it.pos++
	return a, true
}

type fakePendingIter struct {
	keys []model.PendingKey
	pos  int
}

func (it *fakePendingIter) Next() (model.PendingKey, bool) {
	if it.pos >= len(it.keys) {
		return model.PendingKey{}, false
	}
	k := it.keys[it.pos]
	it.pos++
	return k, true
}

type fakeLedger struct {
	accounts []model.Account
	pending  []model.PendingKey
}

func (f *fakeLedger) ReadTxn() model.Tx { return nil }

func (f *fakeLedger) Account(model.Tx, model.Account) (model.AccountInfo, bool) {
	return model.AccountInfo{}, false
}

func (f *fakeLedger) AccountIterRange(_ model.Tx, start model.Account) model.AccountIterator {
	var out []model.Account
	for _, a := range f.accounts {
		if !a.Less(start) {
			out = append(out, a)
		}
	}
	return &fakeAccountIter{accounts: out}
}

func (f *fakeLedger) PendingIterRange(_ model.Tx, start model.PendingKey) model.PendingIterator {
	var out []model.PendingKey
	for _, k := range f.pending {
		if !k.ReceivingAccount.Less(start.ReceivingAccount) {
			out = append(out, k)
		}
	}
	return &fakePendingIter{keys: out}
}

func (f *fakeLedger) ConfirmationHeight(model.Tx, model.Account) (model.ConfirmationHeight, bool) {
	return model.ConfirmationHeight{}, false
}

func (f *fakeLedger) BlockExistsOrPruned(model.Tx, model.BlockHash) bool { return false }

func (f *fakeLedger) AccountCount() uint64 { return uint64(len(f.accounts)) }

func (f *fakeLedger) IsEpochLink(model.BlockHash) bool { return false }

func TestNextFromAccounts(t *testing.T) {
	ledger := &fakeLedger{accounts: []model.Account{acct(1), acct(2), acct(3)}}
	scan := New(ledger)

	got := scan.Next(nil)
	if got != acct(1) {
		t.Fatalf("expected account 1 first, got %v", got)
	}
}

func TestNextAppliesFilter(t *testing.T) {
	ledger := &fakeLedger{accounts: []model.Account{acct(1), acct(2), acct(3)}}
	scan := New(ledger)

	got := scan.Next(func(a model.Account) bool { return a == acct(2) })
	if got != acct(2) {
		t.Fatalf("expected account 2 to satisfy the filter, got %v", got)
	}
}

func TestNextFallsBackToPendingWhenAccountsExhausted(t *testing.T) {
	ledger := &fakeLedger{pending: []model.PendingKey{{ReceivingAccount: acct(5)}}}
	scan := New(ledger)

	got := scan.Next(nil)
	if got != acct(5) {
		t.Fatalf("expected the pending cursor's receiving account, got %v", got)
	}
}

func TestWarmedUpRequiresBothCursorsToWrap(t *testing.T) {
	ledger := &fakeLedger{accounts: []model.Account{acct(1)}}
	scan := New(ledger)
	if scan.WarmedUp() {
		t.Fatal("a fresh scan should not be warmed up")
	}

	// A filter that accepts the first candidate returns immediately,
	// without exhausting either cursor's range.
	scan.Next(func(model.Account) bool { return true })
	if scan.WarmedUp() {
		t.Fatal("should not be warmed up before either cursor has exhausted its range")
	}

	// An always-rejecting filter exhausts both ranges in this call,
	// wrapping both cursors.
	scan.Next(func(model.Account) bool { return false })
	if !scan.WarmedUp() {
		t.Fatal("expected both cursors to have wrapped")
	}
}
