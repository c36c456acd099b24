package model

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// PullType tags the variant of an AscPullReq/AscPullAck payload on the
// wire. Blocks and AccountInfo mirror the upstream ledger protocol;
// Frontiers is added by this subsystem.
type PullType uint8

const (
	// PullBlocks requests a page of blocks.
	PullBlocks PullType = 0x01
	// PullAccountInfo requests an account's known state.
	PullAccountInfo PullType = 0x02
	// PullFrontiers requests a page of the frontier sweep.
	PullFrontiers PullType = 0x03
)

func (p PullType) String() string {
	switch p {
	case PullBlocks:
		return "blocks"
	case PullAccountInfo:
		return "account_info"
	case PullFrontiers:
		return "frontiers"
	default:
		return "unknown"
	}
}

// StartType tags whether a Blocks payload's start field is an account or a
// block hash.
type StartType uint8

const (
	// StartAccount means the request's start field is an Account.
	StartAccount StartType = 0
	// StartBlock means the request's start field is a BlockHash.
	StartBlock StartType = 1
)

// WireMessage is anything this subsystem hands to Transport.TrySend.
type WireMessage interface {
	PullType() PullType
	Encode(w io.Writer) error
}

// AscPullReq is framed as [u8 pull_type][u64 big-endian id][payload].
type AscPullReq struct {
	ID      uint64
	Payload PullPayload
}

// PullPayload is implemented by BlocksPayload, AccountInfoPayload and
// FrontiersPayload.
type PullPayload interface {
	WireMessage
	payloadMarker()
}

// PullType implements WireMessage by delegating to the payload.
func (r *AscPullReq) PullType() PullType { return r.Payload.PullType() }

// Encode writes the full AscPullReq frame: tag, id, then payload.
func (r *AscPullReq) Encode(w io.Writer) error {
	if err := writeByte(w, byte(r.Payload.PullType())); err != nil {
		return errors.Wrap(err, "writing pull_type")
	}
	if err := writeUint64(w, r.ID); err != nil {
		return errors.Wrap(err, "writing id")
	}
	return r.Payload.Encode(w)
}

// BlocksPayload is [32-byte start][u8 count][u8 start_type].
type BlocksPayload struct {
	Start     HashOrAccount
	Count     uint8
	StartType StartType
}

func (BlocksPayload) payloadMarker()     {}
func (BlocksPayload) PullType() PullType { return PullBlocks }

// Encode writes the Blocks payload body.
func (p BlocksPayload) Encode(w io.Writer) error {
	b := p.Start.Bytes()
	if _, err := w.Write(b[:]); err != nil {
		return errors.Wrap(err, "writing start")
	}
	if err := writeByte(w, p.Count); err != nil {
		return errors.Wrap(err, "writing count")
	}
	return writeByte(w, byte(p.StartType))
}

// AccountInfoPayload is [32-byte target][u8 target_type].
type AccountInfoPayload struct {
	Target     [HashSize]byte
	TargetType StartType
}

func (AccountInfoPayload) payloadMarker()     {}
func (AccountInfoPayload) PullType() PullType { return PullAccountInfo }

// Encode writes the AccountInfo payload body.
func (p AccountInfoPayload) Encode(w io.Writer) error {
	if _, err := w.Write(p.Target[:]); err != nil {
		return errors.Wrap(err, "writing target")
	}
	return writeByte(w, byte(p.TargetType))
}

// FrontiersPayload is [32-byte start][u16 big-endian max_count].
type FrontiersPayload struct {
	Start    Account
	MaxCount uint16
}

func (FrontiersPayload) payloadMarker()     {}
func (FrontiersPayload) PullType() PullType { return PullFrontiers }

// Encode writes the Frontiers payload body.
func (p FrontiersPayload) Encode(w io.Writer) error {
	if _, err := w.Write(p.Start[:]); err != nil {
		return errors.Wrap(err, "writing start")
	}
	return writeUint16(w, p.MaxCount)
}

// AckPayload is implemented by BlocksAck, AccountInfoAck and FrontiersAck.
type AckPayload interface {
	ackMarker()
}

// BlocksAck carries a list of serialized blocks in peer-provided order.
type BlocksAck struct {
	Blocks []Block
}

func (BlocksAck) ackMarker() {}

// AccountInfoAck mirrors the (account, head, block_count, epoch) tuple.
type AccountInfoAck struct {
	Account AccountInfo
	// AccountID is zero when the peer has nothing for the requested target.
	AccountID Account
}

func (AccountInfoAck) ackMarker() {}

// FrontiersAck carries frontier pairs in ascending account order.
type FrontiersAck struct {
	Frontiers []Frontier
}

func (FrontiersAck) ackMarker() {}

// AscPullAck is the decoded response to an AscPullReq.
type AscPullAck struct {
	ID      uint64
	Type    PullType
	Payload AckPayload
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// DecodeAscPullReq parses the bit-exact request frame described in spec §6.
func DecodeAscPullReq(r io.Reader) (*AscPullReq, error) {
	tag, err := readByte(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading pull_type")
	}
	id, err := readUint64(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading id")
	}
	req := &AscPullReq{ID: id}
	switch PullType(tag) {
	case PullBlocks:
		var buf [HashSize]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, errors.Wrap(err, "reading start")
		}
		count, err := readByte(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading count")
		}
		startType, err := readByte(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading start_type")
		}
		start := FromHash(BlockHash(buf))
		if StartType(startType) == StartAccount {
			start = FromAccount(Account(buf))
		}
		req.Payload = BlocksPayload{Start: start, Count: count, StartType: StartType(startType)}
	case PullAccountInfo:
		var target [HashSize]byte
		if _, err := io.ReadFull(r, target[:]); err != nil {
			return nil, errors.Wrap(err, "reading target")
		}
		targetType, err := readByte(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading target_type")
		}
		req.Payload = AccountInfoPayload{Target: target, TargetType: StartType(targetType)}
	case PullFrontiers:
		var start Account
		if _, err := io.ReadFull(r, start[:]); err != nil {
			return nil, errors.Wrap(err, "reading start")
		}
		maxCount, err := readUint16(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading max_count")
		}
		req.Payload = FrontiersPayload{Start: start, MaxCount: maxCount}
	default:
		return nil, errors.Errorf("unknown pull_type %d", tag)
	}
	return req, nil
}
