// Package frontierscan implements the sharded sweep over the account-
// number space described in spec.md §4.3 (component C3). Each shard
// tracks its own cursor and last-advance time; next() rotates across
// shards in round-robin order.
package frontierscan

import (
	"time"

	"github.com/kaspanet/latticeboot/bootstrap/model"
)

// shard is one partition of the account-number space.
type shard struct {
	lowerBound  model.Account
	upperBound  model.Account // exclusive; meaningless when isLast
	isLast      bool          // this shard's range runs to the top of the space
	cursor      model.Account
	lastAdvance time.Time
}

// FrontierScan is the C3 sharded sweep. Not safe for concurrent use; the
// orchestrator serializes access under its own lock.
type FrontierScan struct {
	shards []shard
	next   int // round-robin cursor into shards
}

// New partitions the 256-bit account-number space into shardCount equal
// shards.
func New(shardCount int) *FrontierScan {
	if shardCount < 1 {
		shardCount = 1
	}
	fs := &FrontierScan{shards: make([]shard, shardCount)}

	step := spaceStep(shardCount)
	cursor := model.Account{}
	for i := 0; i < shardCount; i++ {
		fs.shards[i].lowerBound = cursor
		fs.shards[i].cursor = cursor
		if i == shardCount-1 {
			fs.shards[i].isLast = true // wraps at the top of the space
		} else {
			cursor = addToAccount(cursor, step)
			fs.shards[i].upperBound = cursor
		}
	}
	return fs
}

// spaceStep returns floor(2^256 / shardCount) represented as a 32-byte
// big-endian increment, computed byte-by-byte to avoid a big.Int
// dependency for what is, in practice, always a small integer divisor.
func spaceStep(shardCount int) [32]byte {
	var step [32]byte
	// 2^256 / shardCount, computed via repeated long division over the
	// 32-byte representation of 2^256 (i.e. a 1 followed by 32 zero
	// bytes, represented here as a carry of 1 fed into byte 0).
	remainder := 1
	for i := 0; i < 32; i++ {
		cur := remainder*256 + 0
		step[i] = byte(cur / shardCount)
		remainder = cur % shardCount
	}
	return step
}

func addToAccount(a model.Account, delta [32]byte) model.Account {
	var out model.Account
	carry := 0
	for i := 31; i >= 0; i-- {
		sum := int(a[i]) + int(delta[i]) + carry
		out[i] = byte(sum)
		carry = sum >> 8
	}
	return out
}

// ShardCount returns the number of shards.
func (fs *FrontierScan) ShardCount() int {
	return len(fs.shards)
}

// Next rotates across shards, returning the cursor due next and its
// shard index.
func (fs *FrontierScan) Next() (account model.Account, shardIndex int) {
	idx := fs.next
	fs.next = (fs.next + 1) % len(fs.shards)
	return fs.shards[idx].cursor, idx
}

// Process advances shardIndex's cursor to the last account returned + 1,
// wrapping within the shard's bounds, after a Frontiers response for a
// request that started at start.
func (fs *FrontierScan) Process(shardIndex int, start model.Account, frontiers []model.Frontier) {
	s := &fs.shards[shardIndex]
	if len(frontiers) == 0 {
		return
	}

	last := frontiers[len(frontiers)-1].Account
	nextCursor := incrementAccount(last)

	wrapped := nextCursor.IsZero() // overflowed past the top of the address space
	if s.isLast {
		if wrapped {
			nextCursor = s.lowerBound
		}
	} else if !nextCursor.Less(s.upperBound) {
		nextCursor = s.lowerBound
	}
	s.cursor = nextCursor
	s.lastAdvance = time.Now()
}

func incrementAccount(a model.Account) model.Account {
	for i := len(a) - 1; i >= 0; i-- {
		a[i]++
		if a[i] != 0 {
			break
		}
	}
	return a
}

// LastAdvance returns when shardIndex's cursor last moved.
func (fs *FrontierScan) LastAdvance(shardIndex int) time.Time {
	return fs.shards[shardIndex].lastAdvance
}
