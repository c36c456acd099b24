package bootstrap

import "time"

// Config enumerates every knob in spec.md §6 ("Configuration surface").
// Parsed once at startup via github.com/jessevdk/go-flags, matching the
// teacher's kasparov/kasparovd/config and cmd/*/config.go pattern.
type Config struct {
	Enable                  bool `long:"bootstrap-ascending" description:"Enable the ascending bootstrap subsystem"`
	EnableScan              bool `long:"bootstrap-priority-scan" description:"Enable the priority-heap worker"`
	EnableDatabaseScan      bool `long:"bootstrap-database-scan" description:"Enable the database-sweep worker"`
	EnableDependencyWalker  bool `long:"bootstrap-dependency-walker" description:"Enable the dependency-walker worker"`
	EnableFrontierScan      bool `long:"bootstrap-frontier-scan" description:"Enable the frontier-sweep worker"`

	ChannelLimit int `long:"bootstrap-channel-limit" description:"Per-channel in-flight request cap" default:"16"`

	RateLimit         float64 `long:"bootstrap-rate-limit" description:"Overall requests/sec" default:"64"`
	DatabaseRateLimit float64 `long:"bootstrap-database-rate-limit" description:"Database-sweep requests/sec" default:"16"`
	FrontierRateLimit float64 `long:"bootstrap-frontier-rate-limit" description:"Frontier-sweep requests/sec" default:"8"`

	DatabaseWarmupRatio float64 `long:"bootstrap-database-warmup-ratio" description:"Weight multiplier applied to the database limiter while throttled and not warmed up" default:"0.25"`

	MaxPullCount int `long:"bootstrap-max-pull-count" description:"Upper bound on blocks requested per pull" default:"128"`

	RequestTimeout time.Duration `long:"bootstrap-request-timeout" description:"Tag eviction age" default:"3s"`

	ThrottleCoefficient float64       `long:"bootstrap-throttle-coefficient" description:"Throttle sizing coefficient" default:"8"`
	ThrottleWait        time.Duration `long:"bootstrap-throttle-wait" description:"Wait-loop backoff ceiling" default:"5s"`

	BlockProcessorThreshold int `long:"bootstrap-block-processor-threshold" description:"Queue length above which the priority worker backs off" default:"1024"`

	MaxRequests int `long:"bootstrap-max-requests" description:"Global in-flight tag cap" default:"1024"`

	OptimisticRequestPercentage int `long:"bootstrap-optimistic-request-percentage" description:"0..100 chance of starting a pull from info.head instead of the confirmed frontier" default:"50"`

	AccountSets AccountSetsConfig `group:"account-sets"`

	FrontierScan FrontierScanConfig `group:"frontier-scan"`
}

// AccountSetsConfig groups the account_sets.* knobs from spec §6.
type AccountSetsConfig struct {
	PriorityCutoff Priority `long:"priority-cutoff" description:"Minimum priority at which an entry survives" default:"0.15"`
	Capacity       int      `long:"capacity" description:"Priority-set capacity bound" default:"4096"`
}

// FrontierScanConfig groups the frontier_scan.* knobs from spec §6.
type FrontierScanConfig struct {
	MaxPending int `long:"max-pending" description:"Bound on outstanding frontier post-processing jobs" default:"256"`
	ShardCount int `long:"shard-count" description:"Number of shards partitioning the account-number space" default:"64"`
}

// DefaultConfig returns a Config with every field at the default named in
// spec §6, all workers enabled.
func DefaultConfig() *Config {
	return &Config{
		Enable:                      true,
		EnableScan:                  true,
		EnableDatabaseScan:          true,
		EnableDependencyWalker:      true,
		EnableFrontierScan:          true,
		ChannelLimit:                16,
		RateLimit:                   64,
		DatabaseRateLimit:           16,
		FrontierRateLimit:           8,
		DatabaseWarmupRatio:         0.25,
		MaxPullCount:                128,
		RequestTimeout:              3 * time.Second,
		ThrottleCoefficient:         8,
		ThrottleWait:                5 * time.Second,
		BlockProcessorThreshold:     1024,
		MaxRequests:                 1024,
		OptimisticRequestPercentage: 50,
		AccountSets: AccountSetsConfig{
			PriorityCutoff: 0.15,
			Capacity:       4096,
		},
		FrontierScan: FrontierScanConfig{
			MaxPending: 256,
			ShardCount: 64,
		},
	}
}

// Validate reports a fatal configuration error per spec §7 ("Invalid
// configuration at construction — fatal, surfaced to the caller").
func (c *Config) Validate() error {
	switch {
	case c.MaxRequests <= 0:
		return errConfig("max_requests must be positive")
	case c.ChannelLimit <= 0:
		return errConfig("channel_limit must be positive")
	case c.MaxPullCount <= 0:
		return errConfig("max_pull_count must be positive")
	case c.OptimisticRequestPercentage < 0 || c.OptimisticRequestPercentage > 100:
		return errConfig("optimistic_request_percentage must be in 0..100")
	case c.FrontierScan.ShardCount <= 0:
		return errConfig("frontier_scan.shard_count must be positive")
	case c.FrontierScan.MaxPending <= 0:
		return errConfig("frontier_scan.max_pending must be positive")
	case c.AccountSets.Capacity <= 0:
		return errConfig("account_sets.capacity must be positive")
	}
	return nil
}
