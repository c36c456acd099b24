// Package databasescan implements the round-robin local-table scan
// described in spec.md §4.2 (component C2): two cooperating cursors,
// one over accounts and one over pending entries, feeding the
// database-sweep worker candidate accounts of unknown age.
package databasescan

import "github.com/kaspanet/latticeboot/bootstrap/model"

// pendingStepLimit bounds how many sequential steps the pending cursor
// takes looking for a new receiving_account before falling back to a
// fresh range lookup (spec §4.2: "on log-structured stores sequential
// iteration is an order of magnitude faster than a fresh lookup").
const pendingStepLimit = 10

// DatabaseScan is the C2 cooperating-cursor scanner. Not safe for
// concurrent use; the orchestrator serializes access under its own lock.
type DatabaseScan struct {
	ledger model.Ledger

	accountCursor model.Account
	accountWraps  uint64

	pendingCursor model.PendingKey
	pendingWraps  uint64

	pendingTurn bool // Next consults the pending cursor first when set
}

// New creates a DatabaseScan reading from the given ledger collaborator.
func New(ledger model.Ledger) *DatabaseScan {
	return &DatabaseScan{ledger: ledger}
}

// WarmedUp reports whether both cursors have wrapped at least once.
func (d *DatabaseScan) WarmedUp() bool {
	return d.accountWraps > 0 && d.pendingWraps > 0
}

// Next returns the next candidate account satisfying filter, or the zero
// account if nothing qualifies in the current fill. It alternates
// between the account cursor and the pending cursor so neither table
// starves the other.
func (d *DatabaseScan) Next(filter func(model.Account) bool) model.Account {
	first, second := d.nextFromAccounts, d.nextFromPending
	if d.pendingTurn {
		first, second = second, first
	}
	d.pendingTurn = !d.pendingTurn

	if account, ok := first(filter); ok {
		return account
	}
	if account, ok := second(filter); ok {
		return account
	}
	return model.Account{}
}

func (d *DatabaseScan) nextFromAccounts(filter func(model.Account) bool) (model.Account, bool) {
	tx := d.ledger.ReadTxn()
	it := d.ledger.AccountIterRange(tx, d.accountCursor)

	for {
		account, ok := it.Next()
		if !ok {
			d.accountCursor = model.Account{}
			d.accountWraps++
			return model.Account{}, false
		}
		d.accountCursor = next32(account)
		if filter == nil || filter(account) {
			return account, true
		}
	}
}

func (d *DatabaseScan) nextFromPending(filter func(model.Account) bool) (model.Account, bool) {
	tx := d.ledger.ReadTxn()
	it := d.ledger.PendingIterRange(tx, d.pendingCursor)

	lastAccount := d.pendingCursor.ReceivingAccount
	steps := 0
	for {
		key, ok := it.Next()
		if !ok {
			d.pendingCursor = model.PendingKey{}
			d.pendingWraps++
			return model.Account{}, false
		}

		if key.ReceivingAccount != lastAccount {
			d.pendingCursor = key
			lastAccount = key.ReceivingAccount
			steps = 0
			if filter == nil || filter(key.ReceivingAccount) {
				return key.ReceivingAccount, true
			}
			continue
		}

		steps++
		if steps >= pendingStepLimit {
			// Sequential scanning hasn't turned up a new receiving
			// account; reseed the cursor just past the current one and
			// force a fresh range lookup on the next call.
			d.pendingCursor = model.PendingKey{ReceivingAccount: next32(lastAccount)}
			return model.Account{}, false
		}
	}
}

func next32(a model.Account) model.Account {
	for i := len(a) - 1; i >= 0; i-- {
		a[i]++
		if a[i] != 0 {
			break
		}
	}
	return a
}
