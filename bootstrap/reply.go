package bootstrap

import (
	"context"
	"time"

	"github.com/kaspanet/latticeboot/bootstrap/verifier"
)

// Process is the ingress entry point exposed to the transport (spec §6
// "process(ack, channel_id) — must be callable from any thread"). It
// implements the reply-processing contract of spec §4.9.4.
func (b *BootstrapService) Process(ack *AscPullAck, channelID ChannelID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tag, found := b.tags.Remove(ack.ID)
	if !found {
		b.stats.MissingTag++
		return
	}
	defer delete(b.frontierShards, tag.ID)

	if !variantMatches(tag.QueryType, ack.Type) {
		log.Debugf("%s", protocolErrorf("channel %d: tag %d expected a %s reply, got %s", channelID, tag.ID, tag.QueryType, ack.Type))
		b.stats.InvalidResponses++
		return
	}

	if latency := time.Duration(nowNanos() - tag.Timestamp); latency > b.cfg.RequestTimeout {
		log.Debugf("tag %d (%s) answered after %s, past request_timeout %s", tag.ID, tag.QueryType, latency, b.cfg.RequestTimeout)
	}

	var ok bool
	switch payload := ack.Payload.(type) {
	case BlocksAck:
		ok = b.handleBlocksAck(tag, payload, channelID)
	case AccountInfoAck:
		ok = b.handleAccountInfoAck(tag, payload)
	case FrontiersAck:
		ok = b.handleFrontiersAck(tag, payload)
	default:
		log.Debugf("%s", protocolErrorf("channel %d: tag %d reply carried an unrecognized payload type", channelID, tag.ID))
		b.stats.InvalidResponses++
		ok = false
	}

	if ok {
		b.scoring.ReceivedMessage(channelID)
	}
	b.notify()
}

// variantMatches rejects an ack whose payload kind doesn't correspond to
// the query type the tag was issued for (spec §4.9.4 step 2).
func variantMatches(qt QueryType, pt PullType) bool {
	switch qt {
	case QueryBlocksByHash, QueryBlocksByAccount:
		return pt == PullBlocks
	case QueryAccountInfoByHash:
		return pt == PullAccountInfo
	case QueryFrontiers:
		return pt == PullFrontiers
	default:
		return false
	}
}

// handleBlocksAck implements the Blocks branch of spec §4.9.4. The caller
// holds b.mu.
func (b *BootstrapService) handleBlocksAck(tag *AsyncTag, payload BlocksAck, channelID ChannelID) bool {
	switch verifier.VerifyBlocks(payload.Blocks, tag) {
	case verifier.BlocksOK:
		blocks := payload.Blocks
		if blocks[0].Hash() == BlockHash(tag.Start.Bytes()) {
			blocks = blocks[1:]
		}
		b.stats.BlocksReceived += uint64(len(blocks))
		b.submitBlocks(blocks, tag.Account, channelID)
		if tag.Source == SourceDatabase {
			b.throttle.Add(true)
		}
		return true

	case verifier.BlocksNothingNew:
		b.accounts.PriorityDown(tag.Account)
		if tag.Source == SourceDatabase {
			b.throttle.Add(false)
		}
		b.stats.NothingNew++
		return true

	default: // verifier.BlocksInvalid
		log.Debugf("%s", protocolErrorf("channel %d: tag %d blocks response failed verification", channelID, tag.ID))
		b.stats.InvalidResponses++
		return false
	}
}

// submitBlocks hands blocks to the block processor in order, attaching a
// completion callback to the last one that clears account's cooldown once
// the chain it belongs to can make further progress (spec §4.9.4).
func (b *BootstrapService) submitBlocks(blocks []Block, account Account, channelID ChannelID) {
	if len(blocks) == 0 {
		return
	}
	for _, blk := range blocks[:len(blocks)-1] {
		b.blockProcessor.Add(context.Background(), blk, ProcessSourceBootstrap, channelID)
	}

	last := blocks[len(blocks)-1]
	b.blockProcessor.AddWithCallback(context.Background(), last, ProcessSourceBootstrap, channelID, func(ProcessStatus) {
		b.mu.Lock()
		b.accounts.TimestampReset(account)
		b.notify()
		b.mu.Unlock()
	})
}

// handleAccountInfoAck implements the AccountInfo branch of spec §4.9.4.
// The caller holds b.mu.
func (b *BootstrapService) handleAccountInfoAck(tag *AsyncTag, payload AccountInfoAck) bool {
	if verifier.AccountInfoIsEmpty(payload.AccountID) {
		return true
	}
	b.accounts.DependencyUpdate(tag.Hash, payload.AccountID)
	b.accounts.PrioritySet(payload.AccountID, b.accounts.Cutoff())
	return true
}

// handleFrontiersAck implements the Frontiers branch of spec §4.9.4. The
// caller holds b.mu.
func (b *BootstrapService) handleFrontiersAck(tag *AsyncTag, payload FrontiersAck) bool {
	verdict := verifier.VerifyFrontiers(payload.Frontiers, tag)
	if verdict == verifier.FrontiersInvalid {
		log.Debugf("%s", protocolErrorf("tag %d frontiers response is not sorted ascending", tag.ID))
		b.stats.InvalidResponses++
		return false
	}

	shardIndex, hasShard := b.frontierShards[tag.ID]
	if hasShard {
		start := Account(tag.Start.Bytes())
		b.frontierScan.Process(shardIndex, start, payload.Frontiers)
		delete(b.frontierShards, tag.ID)
	}

	if verdict == verifier.FrontiersNothingNew || len(payload.Frontiers) == 0 {
		b.stats.NothingNew++
		return true
	}

	job := frontierJob{shardIndex: shardIndex, start: Account(tag.Start.Bytes()), frontiers: payload.Frontiers}
	select {
	case b.frontierJobs <- job:
	default:
		b.stats.FrontierOverflow++
	}
	return true
}
