package model

import "context"

// Tx is an opaque read transaction handle returned by Ledger.ReadTxn. The
// bootstrap core never interprets it; it is only threaded back into the
// other Ledger methods.
type Tx interface{}

// ConfirmationHeight is a confirmed frontier and its height, as reported by
// the ledger collaborator.
type ConfirmationHeight struct {
	Frontier BlockHash
	Height   uint64
}

// Ledger is the narrow read-only view this subsystem needs from the
// storage engine. The engine itself is out of scope (spec §1); only this
// interface is consumed.
type Ledger interface {
	ReadTxn() Tx
	Account(tx Tx, account Account) (AccountInfo, bool)
	AccountIterRange(tx Tx, start Account) AccountIterator
	PendingIterRange(tx Tx, start PendingKey) PendingIterator
	ConfirmationHeight(tx Tx, account Account) (ConfirmationHeight, bool)
	BlockExistsOrPruned(tx Tx, hash BlockHash) bool
	AccountCount() uint64
	IsEpochLink(link BlockHash) bool
}

// AccountIterator ranges over accounts in key order.
type AccountIterator interface {
	Next() (Account, bool)
}

// PendingIterator ranges over pending entries in key order.
type PendingIterator interface {
	Next() (PendingKey, bool)
}

// Block is the narrow view of a block this subsystem needs: enough to walk
// a chain and to classify a block as a destination-carrying send. The
// actual block representation (a tagged variant over the five block
// kinds, per spec §9) belongs to the ledger collaborator.
type Block interface {
	Hash() BlockHash
	Previous() BlockHash
	AccountField() Account
	IsSend() bool
	Destination() (Account, bool)
	// SourceOrLink returns the send/epoch hash a receive-like block (a
	// Receive, Open, or state-kind block crediting an incoming send)
	// depends on, or the zero hash if this block carries none. This is
	// the dependency GapSource names as missing (spec §4.9.6, design
	// note §9's "source_or_link" accessor).
	SourceOrLink() BlockHash
}

// ProcessStatus is the outcome the block processor reports for a
// submitted block.
type ProcessStatus uint8

// ProcessSource records why a block was submitted to the processor.
type ProcessSource uint8

const (
	// ProcessProgress means the block extended the ledger.
	ProcessProgress ProcessStatus = iota + 1
	// ProcessGapSource means the block's source/link dependency is missing.
	ProcessGapSource
	// ProcessGapPrevious means the block's previous block is missing.
	ProcessGapPrevious
	// ProcessOther covers statuses with no bootstrap-level action.
	ProcessOther
)

const (
	// ProcessSourceBootstrap marks a block as coming from this subsystem.
	ProcessSourceBootstrap ProcessSource = iota + 1
	// ProcessSourceLive marks a block as coming from realtime broadcast.
	ProcessSourceLive
)

// ProcessedBlock pairs a submitted block with the processor's verdict.
type ProcessedBlock struct {
	Status ProcessStatus
	Source ProcessSource
	Block  Block
}

// CompletionCallback runs once the block processor has committed (or
// rejected) a submitted block.
type CompletionCallback func(status ProcessStatus)

// BlockProcessor is the narrow view of the asynchronous block validation
// pipeline this subsystem drives but does not implement (spec §1, §6).
type BlockProcessor interface {
	QueueLen(source ProcessSource) int
	Add(ctx context.Context, block Block, source ProcessSource, channelID ChannelID)
	AddWithCallback(ctx context.Context, block Block, source ProcessSource, channelID ChannelID, cb CompletionCallback)
	OnBatchProcessed(cb func(batch []ProcessedBlock))
}

// ChannelID identifies a transport channel (peer connection).
type ChannelID uint64

// DropPolicy controls whether Transport.TrySend may silently drop under
// back-pressure.
type DropPolicy uint8

const (
	// CanDrop allows TrySend to drop the message under back-pressure.
	CanDrop DropPolicy = iota
	// NoDrop requires delivery or an explicit error.
	NoDrop
)

// TrafficClass tags outgoing messages for the transport's own QoS.
type TrafficClass uint8

// TrafficBootstrap marks messages issued by this subsystem.
const TrafficBootstrap TrafficClass = 1

// Channel is a live transport connection to a peer.
type Channel struct {
	ID      ChannelID
	Version uint32
}

// Transport is the narrow view of the wire transport this subsystem
// drives but does not implement (spec §1, §6).
type Transport interface {
	ListRealtimeChannels(minVersion uint32) []Channel
	TrySend(channelID ChannelID, message WireMessage, drop DropPolicy, traffic TrafficClass) error
}
