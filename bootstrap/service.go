// Package bootstrap implements the ascending bootstrap subsystem
// described in spec.md: the orchestrator (component C9) that drives the
// four worker loops over C1-C8 to discover, prioritize, request, verify
// and ingest blocks from peers so the local ledger catches up to the
// network.
package bootstrap

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/kaspanet/latticeboot/bootstrap/accountsets"
	"github.com/kaspanet/latticeboot/bootstrap/databasescan"
	"github.com/kaspanet/latticeboot/bootstrap/frontierscan"
	"github.com/kaspanet/latticeboot/bootstrap/orderedtags"
	"github.com/kaspanet/latticeboot/bootstrap/peerscoring"
	"github.com/kaspanet/latticeboot/bootstrap/ratelimiter"
	"github.com/kaspanet/latticeboot/bootstrap/throttle"
)

// minWait is the starting interval of the exponential backoff used by
// wait(); it doubles up to cfg.ThrottleWait, per spec §4.9.7.
const minWait = 5 * time.Millisecond

// frontierJob is one posted frontier post-processing task (spec §4.9.5).
type frontierJob struct {
	shardIndex int
	start      Account
	frontiers  []Frontier
}

// BootstrapService is the C9 orchestrator.
type BootstrapService struct {
	cfg            *Config
	ledger         Ledger
	blockProcessor BlockProcessor
	transport      Transport

	mu      sync.Mutex
	cond    *sync.Cond
	stopped bool
	wg      sync.WaitGroup

	rng *rand.Rand

	accounts     *accountsets.AccountSets
	dbScan       *databasescan.DatabaseScan
	frontierScan *frontierscan.FrontierScan
	scoring      *peerscoring.PeerScoring
	tags         *orderedtags.OrderedTags
	throttle     *throttle.Throttle
	limiter      *ratelimiter.RateLimiter

	stats Stats

	// frontierShards maps a live Frontiers tag id back to the shard index
	// it was issued for, since AsyncTag itself carries no shard field.
	frontierShards map[uint64]int

	frontierJobs chan frontierJob
	poolStopOnce sync.Once
	stopCh       chan struct{}
}

// New constructs a BootstrapService. Invalid configuration is returned as
// an error rather than panicking, per spec §7.
func New(cfg *Config, ledger Ledger, blockProcessor BlockProcessor, transport Transport) (*BootstrapService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &BootstrapService{
		cfg:            cfg,
		ledger:         ledger,
		blockProcessor: blockProcessor,
		transport:      transport,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		accounts:       accountsets.New(cfg.AccountSets.PriorityCutoff, cfg.AccountSets.Capacity),
		dbScan:         databasescan.New(ledger),
		frontierScan:   frontierscan.New(cfg.FrontierScan.ShardCount),
		scoring:        peerscoring.New(cfg.ChannelLimit, cfg.RequestTimeout),
		tags:           orderedtags.New(cfg.MaxRequests),
		throttle:       throttle.New(throttle.SizeFor(cfg.ThrottleCoefficient, ledger.AccountCount()), 0.5),
		limiter:        ratelimiter.New(cfg.RateLimit, cfg.DatabaseRateLimit, cfg.FrontierRateLimit),
		frontierShards: make(map[uint64]int),
		frontierJobs:   make(chan frontierJob, cfg.FrontierScan.MaxPending),
		stopCh:         make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)

	blockProcessor.OnBatchProcessed(b.inspectBatch)

	return b, nil
}

// Start launches the five worker loops (spec §4.9.1) plus a small fixed
// pool of frontier post-processing workers (spec §9 "Background worker
// pool"). It is a no-op (no threads started) when cfg.Enable is false,
// matching spec §8's boundary behavior.
func (b *BootstrapService) Start(ctx context.Context) {
	if !b.cfg.Enable {
		return
	}

	const frontierPoolSize = 4
	for i := 0; i < frontierPoolSize; i++ {
		b.wg.Add(1)
		spawn(func() { defer b.wg.Done(); b.frontierPostProcessWorker(ctx) })
	}

	if b.cfg.EnableScan {
		b.wg.Add(1)
		spawn(func() { defer b.wg.Done(); b.runPriorityWorker(ctx) })
	}
	if b.cfg.EnableDatabaseScan {
		b.wg.Add(1)
		spawn(func() { defer b.wg.Done(); b.runDatabaseWorker(ctx) })
	}
	if b.cfg.EnableDependencyWalker {
		b.wg.Add(1)
		spawn(func() { defer b.wg.Done(); b.runDependencyWorker(ctx) })
	}
	if b.cfg.EnableFrontierScan {
		b.wg.Add(1)
		spawn(func() { defer b.wg.Done(); b.runFrontierWorker(ctx) })
	}

	b.wg.Add(1)
	spawn(func() { defer b.wg.Done(); b.runCleanupWorker(ctx) })
}

// Stop sets the stopped flag, wakes every waiter, closes the frontier job
// channel, and blocks until all loops have returned (spec §5
// "Cancellation and timeout").
func (b *BootstrapService) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.cond.Broadcast()
	b.mu.Unlock()

	close(b.stopCh)
	b.poolStopOnce.Do(func() { close(b.frontierJobs) })
	b.wg.Wait()
}

// wait blocks on the condition variable until predicate is true or the
// service is stopped, using exponential backoff from minWait up to
// cfg.ThrottleWait (spec §4.9.7). The caller must hold b.mu. Returns
// false if the service stopped before predicate became true.
func (b *BootstrapService) wait(predicate func() bool) bool {
	backoff := minWait
	for !predicate() {
		if b.stopped {
			return false
		}
		timer := time.AfterFunc(backoff, func() {
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		})
		b.cond.Wait()
		timer.Stop()
		if backoff < b.cfg.ThrottleWait {
			backoff *= 2
			if backoff > b.cfg.ThrottleWait {
				backoff = b.cfg.ThrottleWait
			}
		}
	}
	return !b.stopped
}

// notify wakes every waiter; call after any state change that could
// satisfy a wait() predicate.
func (b *BootstrapService) notify() {
	b.cond.Broadcast()
}

func nowSec() int64 {
	return time.Now().Unix()
}

func nowNanos() int64 {
	return time.Now().UnixNano()
}

// newTagID draws a fresh random id, rejecting any collision with a live
// tag (spec §5: "collisions are vanishingly rare and explicitly checked
// before insertion"). The caller must hold b.mu.
func (b *BootstrapService) newTagID() uint64 {
	for {
		id := b.rng.Uint64()
		if !b.tags.Contains(id) {
			return id
		}
	}
}
