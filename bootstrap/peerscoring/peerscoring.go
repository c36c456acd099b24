// Package peerscoring tracks per-channel outstanding requests,
// cooldowns, and reply counts, and chooses an eligible channel to send
// the next request on, per spec.md §4.4 (component C4).
package peerscoring

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kaspanet/latticeboot/bootstrap/model"
	"github.com/kaspanet/latticeboot/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.PEER)

// score is one channel's outstanding/cooldown/reply bookkeeping.
type score struct {
	outstanding  int
	replies      uint64
	cooldownTill time.Time
	lastUsed     time.Time
}

// PeerScoring is the C4 per-channel scorer. Not safe for concurrent use;
// the orchestrator serializes access under its own lock.
type PeerScoring struct {
	channelLimit int
	cooldown     time.Duration

	// scores is bounded by cache so a long-lived node doesn't retain
	// scoring entries for channels that disconnected ages ago without
	// ever going through Sync; evicted entries simply get re-created at
	// zero state the next time the channel is seen, which is harmless.
	scores *lru.Cache[model.ChannelID, *score]
}

// maxTrackedChannels bounds the scoring cache; grounded on the same
// bounded-index pattern erigon uses hashicorp/golang-lru/v2 for.
const maxTrackedChannels = 4096

// New creates a PeerScoring with the given per-channel in-flight cap and
// cooldown duration applied after a channel is judged unresponsive.
func New(channelLimit int, cooldown time.Duration) *PeerScoring {
	cache, err := lru.New[model.ChannelID, *score](maxTrackedChannels)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// maxTrackedChannels never is.
		panic(err)
	}
	return &PeerScoring{
		channelLimit: channelLimit,
		cooldown:     cooldown,
		scores:       cache,
	}
}

func (p *PeerScoring) get(id model.ChannelID) *score {
	if s, ok := p.scores.Get(id); ok {
		return s
	}
	s := &score{}
	p.scores.Add(id, s)
	return s
}

// Channel chooses an eligible channel from candidates: outstanding below
// the per-channel cap, cooldown expired, least-recently-used among those
// meeting the cap. Returns false if none qualify.
func (p *PeerScoring) Channel(candidates []model.Channel, now time.Time) (model.ChannelID, bool) {
	var best model.ChannelID
	var bestLast time.Time
	found := false

	for _, c := range candidates {
		s := p.get(c.ID)
		if s.outstanding >= p.channelLimit {
			continue
		}
		if now.Before(s.cooldownTill) {
			continue
		}
		if !found || s.lastUsed.Before(bestLast) {
			best = c.ID
			bestLast = s.lastUsed
			found = true
		}
	}

	return best, found
}

// RecordSent marks a request as having been sent on channelID, used
// immediately after a successful Transport.TrySend.
func (p *PeerScoring) RecordSent(channelID model.ChannelID, now time.Time) {
	s := p.get(channelID)
	s.outstanding++
	s.lastUsed = now
}

// ReceivedMessage increments replies and decays outstanding. The
// orchestrator calls it only for a reply that matched a live tag and was
// accepted by its handler (spec §4.4).
func (p *PeerScoring) ReceivedMessage(channelID model.ChannelID) {
	s := p.get(channelID)
	s.replies++
	if s.outstanding > 0 {
		s.outstanding--
	}
}

// Sync removes scoring entries whose channel is no longer in the live
// list, matching spec §4.4's sync(list_of_live_channels). It returns the
// number of entries removed, for the ChannelDead stat.
func (p *PeerScoring) Sync(live []model.Channel) int {
	liveSet := make(map[model.ChannelID]struct{}, len(live))
	for _, c := range live {
		liveSet[c.ID] = struct{}{}
	}

	removed := 0
	for _, id := range p.scores.Keys() {
		if _, ok := liveSet[id]; !ok {
			p.scores.Remove(id)
			log.Debugf("removed scoring entry for dead channel %d", id)
			removed++
		}
	}
	return removed
}

// Timeout decays stale cooldown state, run periodically by the cleanup
// worker.
func (p *PeerScoring) Timeout(now time.Time) {
	for _, id := range p.scores.Keys() {
		s, ok := p.scores.Peek(id)
		if !ok {
			continue
		}
		if !s.cooldownTill.IsZero() && now.After(s.cooldownTill) {
			s.cooldownTill = time.Time{}
		}
	}
}

// Cooldown puts channelID into cooldown until now+configured cooldown,
// called when a channel is judged unresponsive (e.g. repeated timeouts).
func (p *PeerScoring) Cooldown(channelID model.ChannelID, now time.Time) {
	s := p.get(channelID)
	s.cooldownTill = now.Add(p.cooldown)
}

// Outstanding returns channelID's current outstanding request count, for
// tests and stats.
func (p *PeerScoring) Outstanding(channelID model.ChannelID) int {
	return p.get(channelID).outstanding
}
