package bootstrap

import (
	"context"
	"time"

	"github.com/kaspanet/latticeboot/bootstrap/throttle"
)

// priorityInFlightCap bounds concurrent priority-source requests per
// account (spec §4.9.3 "count_by_account(a, Priority) < 4").
const priorityInFlightCap = 4

// runPriorityWorker is worker 1 of spec §4.9.1: wait for processor
// capacity, a channel, and a due priority candidate, then issue a
// BlocksByHash|Account pull sized by the account's priority.
func (b *BootstrapService) runPriorityWorker(ctx context.Context) {
	for {
		b.mu.Lock()
		var channelID ChannelID
		var account Account

		ok := b.wait(func() bool {
			if ctx.Err() != nil {
				return true
			}
			if b.blockProcessor.QueueLen(ProcessSourceBootstrap) >= b.cfg.BlockProcessorThreshold {
				return false
			}
			ch, chOK := b.pickChannel()
			if !chOK {
				return false
			}
			a := b.accounts.NextPriority(nowSec(), 0, func(candidate Account) bool {
				return b.tags.CountByAccount(candidate, SourcePriority) < priorityInFlightCap
			})
			if a.IsZero() {
				return false
			}
			channelID, account = ch, a
			return true
		})
		if !ok || ctx.Err() != nil {
			b.mu.Unlock()
			return
		}

		b.issueBlocksRequest(channelID, account, SourcePriority, b.blocksCount(account))
		b.mu.Unlock()
	}
}

// runDatabaseWorker is worker 2 of spec §4.9.1: as runPriorityWorker, but
// the candidate comes from the round-robin database sweep, gated by the
// database rate limiter (weighted by the warmup ratio while throttled),
// and the request count is fixed.
func (b *BootstrapService) runDatabaseWorker(ctx context.Context) {
	for {
		b.mu.Lock()
		var channelID ChannelID
		var account Account

		ok := b.wait(func() bool {
			if ctx.Err() != nil {
				return true
			}
			if b.blockProcessor.QueueLen(ProcessSourceBootstrap) >= b.cfg.BlockProcessorThreshold {
				return false
			}
			if !b.shouldPassDatabase() {
				return false
			}
			ch, chOK := b.pickChannel()
			if !chOK {
				return false
			}
			a := b.dbScan.Next(func(candidate Account) bool {
				return b.tags.CountByAccount(candidate, SourceDatabase) == 0
			})
			if a.IsZero() {
				return false
			}
			channelID, account = ch, a
			return true
		})
		if !ok || ctx.Err() != nil {
			b.mu.Unlock()
			return
		}

		b.issueBlocksRequest(channelID, account, SourceDatabase, databaseBlocksCount)
		b.mu.Unlock()
	}
}

// shouldPassDatabase applies the database rate limiter, charging a larger
// weight while the network has looked unproductive (Throttle.Throttled)
// and the sweep hasn't completed a full pass yet, per spec §6's
// database_warmup_ratio. The caller must hold b.mu.
func (b *BootstrapService) shouldPassDatabase() bool {
	weight := 1
	if b.cfg.DatabaseWarmupRatio > 0 && b.throttle.Throttled() && !b.dbScan.WarmedUp() {
		weight = int(1.0 / b.cfg.DatabaseWarmupRatio)
		if weight < 1 {
			weight = 1
		}
	}
	return b.limiter.ShouldPassDatabase(weight)
}

// runDependencyWorker is worker 3 of spec §4.9.1: wait for a channel and a
// blocked dependency hash with no in-flight AccountInfo request, then
// issue one.
func (b *BootstrapService) runDependencyWorker(ctx context.Context) {
	for {
		b.mu.Lock()
		var channelID ChannelID
		var hash BlockHash

		ok := b.wait(func() bool {
			if ctx.Err() != nil {
				return true
			}
			ch, chOK := b.pickChannel()
			if !chOK {
				return false
			}
			h, found := b.accounts.NextBlocking(func(candidate BlockHash) bool {
				return b.tags.CountByHash(candidate, SourceDependencies) > 0
			})
			if !found {
				return false
			}
			channelID, hash = ch, h
			return true
		})
		if !ok || ctx.Err() != nil {
			b.mu.Unlock()
			return
		}

		b.issueAccountInfoRequest(channelID, hash)
		b.mu.Unlock()
	}
}

// runFrontierWorker is worker 4 of spec §4.9.1: wait for the priority set
// to have room, the frontier rate limiter, worker-pool capacity, and a
// channel, then sweep the next shard.
func (b *BootstrapService) runFrontierWorker(ctx context.Context) {
	for {
		b.mu.Lock()
		var channelID ChannelID
		var start Account
		var shardIndex int

		ok := b.wait(func() bool {
			if ctx.Err() != nil {
				return true
			}
			if b.accounts.IsHalfFull() {
				return false
			}
			if !b.limiter.ShouldPassFrontiers(1) {
				return false
			}
			if len(b.frontierJobs) >= cap(b.frontierJobs) {
				return false
			}
			ch, chOK := b.pickChannel()
			if !chOK {
				return false
			}
			s, idx := b.frontierScan.Next()
			channelID, start, shardIndex = ch, s, idx
			return true
		})
		if !ok || ctx.Err() != nil {
			b.mu.Unlock()
			return
		}

		b.issueFrontiersRequest(channelID, start, shardIndex)
		b.mu.Unlock()
	}
}

// dependencySyncInterval is how often the cleanup worker re-runs
// SyncDependencies, per spec §4.9.1 ("every 60 s run sync_dependencies").
const dependencySyncInterval = 60 * time.Second

// runCleanupWorker is worker 5 of spec §4.9.1: once per second, prune
// dead peer-scoring entries, resize the throttle, and evict timed-out
// tags, cooling down the channel each evicted tag was sent on since it
// failed to answer within request_timeout; every 60s additionally runs
// AccountSets.SyncDependencies.
func (b *BootstrapService) runCleanupWorker(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastSync := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
		}

		b.mu.Lock()
		if b.stopped {
			b.mu.Unlock()
			return
		}

		now := time.Now()
		candidates := b.transport.ListRealtimeChannels(realtimeMinVersion)
		b.stats.ChannelDead += uint64(b.scoring.Sync(candidates))
		b.scoring.Timeout(now)

		b.throttle.Resize(throttle.SizeFor(b.cfg.ThrottleCoefficient, b.ledger.AccountCount()))

		evicted := b.tags.EvictExpired(nowNanos(), int64(b.cfg.RequestTimeout))
		for _, tag := range evicted {
			b.stats.Timeouts++
			delete(b.frontierShards, tag.ID)
			b.scoring.Cooldown(tag.ChannelID, now)
		}

		if now.Sub(lastSync) >= dependencySyncInterval {
			b.accounts.SyncDependencies()
			lastSync = now
		}

		b.notify()
		b.mu.Unlock()
	}
}

// frontierPostProcessWorker drains posted frontier jobs (spec §4.9.5),
// running the per-account prioritization decision off the request-issuing
// critical path. A small fixed pool of these run concurrently; see
// Start().
func (b *BootstrapService) frontierPostProcessWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-b.frontierJobs:
			if !ok {
				return
			}
			b.processFrontierJob(job)
		}
	}
}
