package bootstrap

// processFrontierJob implements the frontier post-processing decision of
// spec §4.9.5 for one posted job. It runs off the request-issuing
// critical path (see Start's frontier worker pool); ledger reads happen
// without holding b.mu, and the lock is taken only to apply the resulting
// priority_set calls.
func (b *BootstrapService) processFrontierJob(job frontierJob) {
	tx := b.ledger.ReadTxn()

	var toPrioritize []Account
	for _, frontier := range job.frontiers {
		if b.shouldPrioritizeFrontier(tx, frontier) {
			toPrioritize = append(toPrioritize, frontier.Account)
		}
	}
	if len(toPrioritize) == 0 {
		return
	}

	b.mu.Lock()
	cutoff := b.accounts.Cutoff()
	for _, account := range toPrioritize {
		b.accounts.PrioritySet(account, cutoff)
	}
	b.notify()
	b.mu.Unlock()
}

// shouldPrioritizeFrontier implements the five-way classification of
// spec §4.9.5:
//   - known locally, same head: up to date, skip.
//   - known locally, different head, claimed head already present
//     (possibly pruned): skip.
//   - known locally, different head, claimed head unknown locally:
//     outdated, prioritize.
//   - unknown locally, but referenced by a pending entry: prioritize.
//   - otherwise: drop.
func (b *BootstrapService) shouldPrioritizeFrontier(tx Tx, frontier Frontier) bool {
	info, hasInfo := b.ledger.Account(tx, frontier.Account)
	if hasInfo {
		if info.Head == frontier.Head {
			return false
		}
		return !b.ledger.BlockExistsOrPruned(tx, frontier.Head)
	}

	it := b.ledger.PendingIterRange(tx, PendingKey{ReceivingAccount: frontier.Account})
	key, ok := it.Next()
	return ok && key.ReceivingAccount == frontier.Account
}
