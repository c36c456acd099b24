// Package verifier validates Blocks, AccountInfo, and Frontiers
// responses against the AsyncTag that was issued for them, per
// spec.md §4.8 (component C8).
package verifier

import "github.com/kaspanet/latticeboot/bootstrap/model"

// BlocksVerdict is the outcome of verifying a Blocks response.
type BlocksVerdict uint8

const (
	// BlocksOK means the chain verified cleanly.
	BlocksOK BlocksVerdict = iota
	// BlocksNothingNew means the peer had no new blocks to offer.
	BlocksNothingNew
	// BlocksInvalid means the response violated the protocol contract.
	BlocksInvalid
)

// VerifyBlocks implements spec §4.8's verify_blocks contract.
func VerifyBlocks(blocks []model.Block, tag *model.AsyncTag) BlocksVerdict {
	if len(blocks) == 0 {
		return BlocksNothingNew
	}
	if len(blocks) == 1 && blocks[0].Hash() == tag.Start.Bytes() {
		return BlocksNothingNew
	}
	if len(blocks) > int(tag.Count) {
		return BlocksInvalid
	}

	first := blocks[0]
	switch tag.QueryType {
	case model.QueryBlocksByHash:
		if first.Hash() != model.BlockHash(tag.Start.Bytes()) {
			return BlocksInvalid
		}
	case model.QueryBlocksByAccount:
		if first.AccountField() != model.Account(tag.Start.Bytes()) {
			return BlocksInvalid
		}
	default:
		return BlocksInvalid
	}

	for i := 1; i < len(blocks); i++ {
		if blocks[i].Previous() != blocks[i-1].Hash() {
			return BlocksInvalid
		}
	}

	return BlocksOK
}

// FrontiersVerdict is the outcome of verifying a Frontiers response.
type FrontiersVerdict uint8

const (
	// FrontiersOK means the page verified cleanly.
	FrontiersOK FrontiersVerdict = iota
	// FrontiersNothingNew means the page was empty.
	FrontiersNothingNew
	// FrontiersInvalid means the page violated the protocol contract.
	FrontiersInvalid
)

// VerifyFrontiers implements spec §4.8's verify_frontiers contract.
func VerifyFrontiers(frontiers []model.Frontier, tag *model.AsyncTag) FrontiersVerdict {
	if len(frontiers) == 0 {
		return FrontiersNothingNew
	}

	start := model.Account(tag.Start.Bytes())
	if frontiers[0].Account.Less(start) {
		return FrontiersInvalid
	}

	for i := 1; i < len(frontiers); i++ {
		if !frontiers[i-1].Account.Less(frontiers[i].Account) {
			return FrontiersInvalid
		}
	}

	return FrontiersOK
}

// AccountInfoIsEmpty reports whether an AccountInfo response carries no
// data. Per spec §4.8, a zero account means "empty but ok" rather than
// invalid.
func AccountInfoIsEmpty(account model.Account) bool {
	return account.IsZero()
}
