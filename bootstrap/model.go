package bootstrap

// The declarations below alias the domain model shared with every C1-C8
// component package (bootstrap/model). They exist so the orchestrator can
// keep referring to Account, AsyncTag, Ledger and friends unqualified,
// while the component packages - which must not import this package, to
// avoid a cycle - import bootstrap/model directly.

import (
	"io"
	"math/rand"

	"github.com/kaspanet/latticeboot/bootstrap/model"
)

const HashSize = model.HashSize

type (
	Account           = model.Account
	BlockHash         = model.BlockHash
	HashOrAccountKind = model.HashOrAccountKind
	HashOrAccount     = model.HashOrAccount
	Priority          = model.Priority
	Frontier          = model.Frontier
	AccountInfo       = model.AccountInfo
	PendingKey        = model.PendingKey
	QueryType         = model.QueryType
	QuerySource       = model.QuerySource
	AsyncTag          = model.AsyncTag
)

const (
	KindAccount = model.KindAccount
	KindHash    = model.KindHash

	QueryBlocksByHash      = model.QueryBlocksByHash
	QueryBlocksByAccount   = model.QueryBlocksByAccount
	QueryAccountInfoByHash = model.QueryAccountInfoByHash
	QueryFrontiers         = model.QueryFrontiers

	SourcePriority     = model.SourcePriority
	SourceDatabase     = model.SourceDatabase
	SourceDependencies = model.SourceDependencies
	SourceFrontiers    = model.SourceFrontiers
)

var (
	FromAccount = model.FromAccount
	FromHash    = model.FromHash
)

func NewTagID(rng *rand.Rand) uint64 {
	return model.NewTagID(rng)
}

type (
	Tx                 = model.Tx
	ConfirmationHeight = model.ConfirmationHeight
	Ledger             = model.Ledger
	AccountIterator    = model.AccountIterator
	PendingIterator    = model.PendingIterator
	Block              = model.Block
	ProcessStatus      = model.ProcessStatus
	ProcessSource      = model.ProcessSource
	ProcessedBlock     = model.ProcessedBlock
	CompletionCallback = model.CompletionCallback
	BlockProcessor     = model.BlockProcessor
	ChannelID          = model.ChannelID
	DropPolicy         = model.DropPolicy
	TrafficClass       = model.TrafficClass
	Channel            = model.Channel
	Transport          = model.Transport
)

const (
	ProcessProgress    = model.ProcessProgress
	ProcessGapSource   = model.ProcessGapSource
	ProcessGapPrevious = model.ProcessGapPrevious
	ProcessOther       = model.ProcessOther

	ProcessSourceBootstrap = model.ProcessSourceBootstrap
	ProcessSourceLive      = model.ProcessSourceLive

	CanDrop = model.CanDrop
	NoDrop  = model.NoDrop

	TrafficBootstrap = model.TrafficBootstrap
)

type (
	PullType           = model.PullType
	StartType          = model.StartType
	WireMessage        = model.WireMessage
	AscPullReq         = model.AscPullReq
	PullPayload        = model.PullPayload
	BlocksPayload      = model.BlocksPayload
	AccountInfoPayload = model.AccountInfoPayload
	FrontiersPayload   = model.FrontiersPayload
	AckPayload         = model.AckPayload
	BlocksAck          = model.BlocksAck
	AccountInfoAck     = model.AccountInfoAck
	FrontiersAck       = model.FrontiersAck
	AscPullAck         = model.AscPullAck
)

const (
	PullBlocks      = model.PullBlocks
	PullAccountInfo = model.PullAccountInfo
	PullFrontiers   = model.PullFrontiers

	StartAccount = model.StartAccount
	StartBlock   = model.StartBlock
)

func DecodeAscPullReq(r io.Reader) (*AscPullReq, error) {
	return model.DecodeAscPullReq(r)
}
