package bootstrap

// inspectBatch is registered with the block processor via
// OnBatchProcessed (spec §6, §4.9.6) and runs the feedback rules for each
// committed block in the batch.
func (b *BootstrapService) inspectBatch(batch []ProcessedBlock) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, pb := range batch {
		b.inspect(pb)
	}
	b.notify()
}

// inspect implements the per-block feedback rules of spec §4.9.6. The
// caller holds b.mu.
func (b *BootstrapService) inspect(pb ProcessedBlock) {
	switch pb.Status {
	case ProcessProgress:
		b.inspectProgress(pb)
	case ProcessGapSource:
		if pb.Source == ProcessSourceBootstrap {
			b.inspectGapSource(pb)
		}
	case ProcessGapPrevious:
		if pb.Source == ProcessSourceLive {
			b.inspectGapPreviousLive(pb)
		}
	}
}

// inspectProgress handles a block that extended the ledger: unblock its
// account on any dependency, raise its priority, and — for a send —
// discover the destination account too.
func (b *BootstrapService) inspectProgress(pb ProcessedBlock) {
	account := pb.Block.AccountField()
	b.accounts.Unblock(account, nil)
	b.accounts.PriorityUp(account)

	if !pb.Block.IsSend() {
		return
	}
	destination, ok := pb.Block.Destination()
	if !ok || destination.IsZero() {
		return
	}
	b.accounts.Unblock(destination, nil)
	b.accounts.PrioritySet(destination, b.accounts.Cutoff())
}

// inspectGapSource blocks the account on its missing source/link
// dependency, moving it from the priority set to the blocked map so the
// dependency-walker worker can chase the gap down. A link that is an
// epoch-transition sentinel rather than a real block reference is not a
// dependency at all (spec §1's epochs.is_epoch_link, glossary "Epoch
// link") and must not be chased.
func (b *BootstrapService) inspectGapSource(pb ProcessedBlock) {
	dependency := pb.Block.SourceOrLink()
	if dependency.IsZero() || b.ledger.IsEpochLink(dependency) {
		return
	}
	b.accounts.Block(pb.Block.AccountField(), dependency)
}

// inspectGapPreviousLive seeds a state block's account from realtime
// traffic whose previous block is missing, but only while both the
// priority set and blocked map have room — this keeps an unsolicited
// flood of gapped live blocks from displacing bootstrap's own priority
// candidates (spec §4.9.6).
func (b *BootstrapService) inspectGapPreviousLive(pb ProcessedBlock) {
	if b.accounts.IsHalfFull() || b.accounts.IsBlockedHalfFull() {
		return
	}
	account := pb.Block.AccountField()
	if account.IsZero() {
		return
	}
	b.accounts.PrioritySet(account, b.accounts.Cutoff())
}
