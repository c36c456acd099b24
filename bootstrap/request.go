package bootstrap

import (
	"time"
)

// minBlocksCount and the configured max_pull_count bound a priority
// request's size (spec §4.9.2 "clamp(priority, 2, MAX_BLOCKS)").
const minBlocksCount = 2

// databaseBlocksCount is the fixed count used by database-sweep requests
// (spec §4.9.1 "count is fixed at 2").
const databaseBlocksCount = 2

// realtimeMinVersion is passed to Transport.ListRealtimeChannels; this
// subsystem has no protocol-version floor of its own.
const realtimeMinVersion = 0

// pickChannel is the shared channel-wait gate every worker's predicate
// goes through (spec §4.5 "the priorities worker waits until space is
// available"): the in-flight tag table must have room and the overall
// rate limiter must allow another request before a live, eligible channel
// is even considered. The caller must hold b.mu.
func (b *BootstrapService) pickChannel() (ChannelID, bool) {
	if !b.tags.HasCapacity() {
		return 0, false
	}
	if !b.limiter.ShouldPassOverall(1) {
		return 0, false
	}

	candidates := b.transport.ListRealtimeChannels(realtimeMinVersion)
	if len(candidates) == 0 {
		return 0, false
	}
	return b.scoring.Channel(candidates, time.Now())
}

// buildBlocksRequest implements spec §4.9.2: choose the start field and
// query type for a BlocksByHash|Account request to account, given whatever
// AccountInfo the ledger holds for it. It reads the ledger collaborator,
// so the caller must NOT hold b.mu (design note §9, "no I/O under the
// lock"); optimistic is the OptimisticRequestPercentage coin flip, drawn
// by the caller while holding the lock since b.rng is not safe for
// concurrent use.
func (b *BootstrapService) buildBlocksRequest(account Account, optimistic bool) (QueryType, HashOrAccount) {
	tx := b.ledger.ReadTxn()
	info, hasInfo := b.ledger.Account(tx, account)
	if !hasInfo {
		return QueryBlocksByAccount, FromAccount(account)
	}

	if optimistic {
		return QueryBlocksByHash, FromHash(info.Head)
	}

	if ch, ok := b.ledger.ConfirmationHeight(tx, account); ok {
		return QueryBlocksByHash, FromHash(ch.Frontier)
	}
	return QueryBlocksByHash, FromHash(info.Head)
}

// blocksCount clamps the requested block count for a priority pull between
// minBlocksCount and cfg.MaxPullCount, keyed on the account's current
// priority score (spec §4.9.2).
func (b *BootstrapService) blocksCount(account Account) uint8 {
	priority, ok := b.accounts.PriorityOf(account)
	if !ok {
		priority = Priority(minBlocksCount)
	}
	count := int(priority)
	if count < minBlocksCount {
		count = minBlocksCount
	}
	if count > b.cfg.MaxPullCount {
		count = b.cfg.MaxPullCount
	}
	if count > 0xFF {
		count = 0xFF
	}
	return uint8(count)
}

// issueBlocksRequest builds and sends a BlocksByHash|Account pull for
// account on channelID from source, with the given block count. The
// caller must hold b.mu on entry and gets it back on return; the ledger
// read and the transport send both happen with the lock released, per
// design note §9's "no I/O under the lock".
func (b *BootstrapService) issueBlocksRequest(channelID ChannelID, account Account, source QuerySource, count uint8) {
	optimistic := int(b.rng.Int31n(100)) < b.cfg.OptimisticRequestPercentage

	b.mu.Unlock()
	queryType, start := b.buildBlocksRequest(account, optimistic)
	b.mu.Lock()

	tag := &AsyncTag{
		ID:        b.newTagID(),
		QueryType: queryType,
		Source:    source,
		Start:     start,
		Account:   account,
		Count:     count,
		Timestamp: nowNanos(),
		ChannelID: channelID,
	}
	if err := b.tags.Insert(tag); err != nil {
		log.Criticalf("%s", err)
		return
	}
	b.accounts.Timestamp(account, nowSec())
	b.stats.recordSource(source)

	startType := StartBlock
	if queryType == QueryBlocksByAccount {
		startType = StartAccount
	}
	req := &AscPullReq{ID: tag.ID, Payload: BlocksPayload{Start: start, Count: count, StartType: startType}}

	b.send(channelID, req)
}

// issueAccountInfoRequest builds and sends an AccountInfoByHash pull for a
// blocked dependency hash, per the dependency-walker worker (spec §4.9.1).
// The caller must hold b.mu on entry and gets it back on return.
func (b *BootstrapService) issueAccountInfoRequest(channelID ChannelID, hash BlockHash) {
	tag := &AsyncTag{
		ID:        b.newTagID(),
		QueryType: QueryAccountInfoByHash,
		Source:    SourceDependencies,
		Start:     FromHash(hash),
		Hash:      hash,
		Timestamp: nowNanos(),
		ChannelID: channelID,
	}
	if err := b.tags.Insert(tag); err != nil {
		log.Criticalf("%s", err)
		return
	}
	b.stats.recordSource(SourceDependencies)

	req := &AscPullReq{ID: tag.ID, Payload: AccountInfoPayload{Target: hash, TargetType: StartBlock}}
	b.send(channelID, req)
}

// issueFrontiersRequest builds and sends a Frontiers pull for a shard, per
// the frontier-sweep worker (spec §4.9.1). The caller must hold b.mu on
// entry and gets it back on return.
func (b *BootstrapService) issueFrontiersRequest(channelID ChannelID, start Account, shardIndex int) {
	tag := &AsyncTag{
		ID:        b.newTagID(),
		QueryType: QueryFrontiers,
		Source:    SourceFrontiers,
		Start:     FromAccount(start),
		Account:   start,
		Timestamp: nowNanos(),
		ChannelID: channelID,
	}
	b.frontierShards[tag.ID] = shardIndex

	if err := b.tags.Insert(tag); err != nil {
		delete(b.frontierShards, tag.ID)
		log.Criticalf("%s", err)
		return
	}
	b.stats.recordSource(SourceFrontiers)

	req := &AscPullReq{ID: tag.ID, Payload: FrontiersPayload{Start: start, MaxCount: frontiersMaxCount}}
	b.send(channelID, req)
}

// frontiersMaxCount is the page size requested per frontier pull.
const frontiersMaxCount = 1024

// send transmits req on channelID and records it against PeerScoring. The
// caller must hold b.mu on entry; send releases it for the duration of
// the transport call and reacquires it before returning, per design note
// §9's "no I/O under the lock". A dropped send is not rolled back; the
// tag simply ages out via the timeout sweep (spec §9's open question:
// drops are silent and rely on the timeout path, not retried here).
func (b *BootstrapService) send(channelID ChannelID, req *AscPullReq) {
	b.mu.Unlock()
	err := b.transport.TrySend(channelID, req, CanDrop, TrafficBootstrap)
	b.mu.Lock()

	if err != nil {
		return
	}
	b.scoring.RecordSent(channelID, time.Now())
}
