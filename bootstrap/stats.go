package bootstrap

// Stats accumulates the named counters described in SPEC_FULL.md's
// "Stats counters" supplement. All fields are read-only snapshots; the
// live counters live on BootstrapService and are only ever mutated under
// its lock.
type Stats struct {
	BlocksReceived     uint64
	InvalidResponses   uint64
	MissingTag         uint64
	NothingNew         uint64
	Timeouts           uint64
	ChannelDead        uint64
	FrontierOverflow   uint64
	ByPrioritySource   uint64
	ByDatabaseSource   uint64
	ByDependencySource uint64
	ByFrontierSource   uint64
}

func (s *Stats) recordSource(source QuerySource) {
	switch source {
	case SourcePriority:
		s.ByPrioritySource++
	case SourceDatabase:
		s.ByDatabaseSource++
	case SourceDependencies:
		s.ByDependencySource++
	case SourceFrontiers:
		s.ByFrontierSource++
	}
}

// Stats returns a point-in-time snapshot of the orchestrator's counters.
func (b *BootstrapService) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
