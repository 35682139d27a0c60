// Package transport implements the direct-stream overlay (§4.4): a
// source-routed message layer over libp2p duplex streams, with three
// delivery modes, ACK-driven route learning, deduplication, and
// redundancy-aware fanout.
package transport

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/orbas1/sharedlog/internal/logerr"
	"github.com/orbas1/sharedlog/internal/wire"
)

// Kind discriminates the tagged message union (§3 Message).
type Kind uint8

const (
	KindData Kind = iota
	KindAck
	KindHello
	KindGoodbye
)

// Mode is a delivery mode tag (§6 "Delivery modes").
type Mode uint8

const (
	ModeSilent Mode = iota
	ModeAcknowledged
	ModeSeek
)

func (m Mode) String() string {
	switch m {
	case ModeSilent:
		return "silent"
	case ModeAcknowledged:
		return "acknowledged"
	case ModeSeek:
		return "seek"
	default:
		return "unknown"
	}
}

// MsgID is the 32-byte random message identifier carried by every
// header.
type MsgID [32]byte

// NewMsgID generates a fresh random id.
func NewMsgID() MsgID {
	var id MsgID
	_, _ = rand.Read(id[:])
	return id
}

// Header is common to every transport message (§3, §6).
type Header struct {
	ID         MsgID
	Timestamp  uint64
	Expires    uint64
	Origin     string
	To         []string
	Signatures []HeaderSig
}

// HeaderSig pairs a signer's public key with its signature over the
// header (excluding To and Signatures) and body.
type HeaderSig struct {
	Key []byte
	Sig []byte
}

// PayloadKind tags the logical payload carried inside a DataMessage so
// the shared log can dispatch without a second decode pass.
type PayloadKind uint8

const (
	PayloadExchangeHeads PayloadKind = iota
	PayloadRequestIPrune
	PayloadResponseIPrune
	PayloadRole
)

// DataMessage is the primary content-carrying frame.
type DataMessage struct {
	Header      Header
	Mode        Mode
	Redundancy  uint8
	PayloadKind PayloadKind
	Payload     []byte
	TTL         uint8 // hop budget for Seek relays
}

// Ack acknowledges receipt/delivery of InReplyTo. SeenCounter is
// bumped by every relay that had already seen the message, so the
// origin can detect redundant delivery paths (§4.4, §9: the counter
// is zeroed before the signature covers the header and reapplied
// after, so relays can bump it without invalidating the signature).
type Ack struct {
	Header      Header
	InReplyTo   MsgID
	SeenCounter uint32
	SendTime    uint64 // echoed original send timestamp, for RTT
}

// Hello announces presence on a topic; Goodbye announces departure
// (role close, §4.5 terminal transition).
type Hello struct{ Header Header }
type Goodbye struct{ Header Header }

// --- wire codec -------------------------------------------------------

func writeHeader(w *wire.Writer, h Header, includeToAndSigs bool) {
	w.Blob(h.ID[:])
	w.U64(h.Timestamp)
	w.U64(h.Expires)
	w.String(h.Origin)
	if includeToAndSigs {
		targets := make([][]byte, len(h.To))
		for i, t := range h.To {
			targets[i] = []byte(t)
		}
		w.BlobSlice(targets)
		w.Varint(uint64(len(h.Signatures)))
		for _, s := range h.Signatures {
			w.Blob(s.Key)
			w.Blob(s.Sig)
		}
	}
}

// SignableBytes returns the bytes a signer signs: header fields
// excluding To and Signatures, followed by body. Excluding To means a
// relay splitting or narrowing a message's target list across hops
// never invalidates the origin's signature.
func SignableBytes(h Header, body []byte) []byte {
	w := wire.NewWriter(64 + len(body))
	writeHeader(w, h, false)
	w.Blob(body)
	return w.Bytes()
}

// dataMessageBody returns the fields of a DataMessage signed together
// with its header (§3 "signatures cover the header...and the body").
func dataMessageBody(m DataMessage) []byte {
	w := wire.NewWriter(16 + len(m.Payload))
	w.U8(uint8(m.Mode))
	w.U8(m.Redundancy)
	w.U8(uint8(m.PayloadKind))
	w.U8(m.TTL)
	w.Blob(m.Payload)
	return w.Bytes()
}

// ackBody returns the fields of an Ack signed together with its
// header. SeenCounter is written as zero so relays can bump it without
// invalidating the signature.
func ackBody(a Ack) []byte {
	w := wire.NewWriter(48)
	w.Blob(a.InReplyTo[:])
	w.U64(0)
	w.U64(a.SendTime)
	return w.Bytes()
}

func readHeader(r *wire.Reader) (Header, error) {
	var h Header
	id, err := r.Blob()
	if err != nil {
		return h, err
	}
	copy(h.ID[:], id)
	if h.Timestamp, err = r.U64(); err != nil {
		return h, err
	}
	if h.Expires, err = r.U64(); err != nil {
		return h, err
	}
	if h.Origin, err = r.String(); err != nil {
		return h, err
	}
	targets, err := r.BlobSlice()
	if err != nil {
		return h, err
	}
	for _, t := range targets {
		h.To = append(h.To, string(t))
	}
	nsig, err := r.Varint()
	if err != nil {
		return h, err
	}
	for i := uint64(0); i < nsig; i++ {
		key, err := r.Blob()
		if err != nil {
			return h, err
		}
		sig, err := r.Blob()
		if err != nil {
			return h, err
		}
		h.Signatures = append(h.Signatures, HeaderSig{Key: key, Sig: sig})
	}
	return h, nil
}

// EncodeDataMessage serializes a DataMessage with its KindData tag.
func EncodeDataMessage(m DataMessage) []byte {
	w := wire.NewWriter(128 + len(m.Payload))
	w.U8(uint8(KindData))
	writeHeader(w, m.Header, true)
	w.U8(uint8(m.Mode))
	w.U8(m.Redundancy)
	w.U8(uint8(m.PayloadKind))
	w.U8(m.TTL)
	w.Blob(m.Payload)
	return w.Bytes()
}

// EncodeAck serializes an Ack with its KindAck tag. SeenCounter is
// carried as set at encode time; ackBody writes it as zero, so the
// signature does not cover it.
func EncodeAck(a Ack) []byte {
	w := wire.NewWriter(128)
	w.U8(uint8(KindAck))
	writeHeader(w, a.Header, true)
	w.Blob(a.InReplyTo[:])
	w.U64(uint64(a.SeenCounter))
	w.U64(a.SendTime)
	return w.Bytes()
}

func EncodeHello(h Hello) []byte {
	w := wire.NewWriter(64)
	w.U8(uint8(KindHello))
	writeHeader(w, h.Header, true)
	return w.Bytes()
}

func EncodeGoodbye(g Goodbye) []byte {
	w := wire.NewWriter(64)
	w.U8(uint8(KindGoodbye))
	writeHeader(w, g.Header, true)
	return w.Bytes()
}

// Decode parses any tagged message frame, returning the concrete
// value as `any` (one of DataMessage, Ack, Hello, Goodbye).
func Decode(b []byte) (any, error) {
	r := wire.NewReader(b)
	tag, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("transport: %w: %v", logerr.ErrUndecodable, err)
	}
	switch Kind(tag) {
	case KindData:
		h, err := readHeader(r)
		if err != nil {
			return nil, fmt.Errorf("transport: %w: %v", logerr.ErrUndecodable, err)
		}
		mode, err := r.U8()
		if err != nil {
			return nil, fmt.Errorf("transport: %w: %v", logerr.ErrUndecodable, err)
		}
		redundancy, err := r.U8()
		if err != nil {
			return nil, fmt.Errorf("transport: %w: %v", logerr.ErrUndecodable, err)
		}
		pk, err := r.U8()
		if err != nil {
			return nil, fmt.Errorf("transport: %w: %v", logerr.ErrUndecodable, err)
		}
		ttl, err := r.U8()
		if err != nil {
			return nil, fmt.Errorf("transport: %w: %v", logerr.ErrUndecodable, err)
		}
		payload, err := r.Blob()
		if err != nil {
			return nil, fmt.Errorf("transport: %w: %v", logerr.ErrUndecodable, err)
		}
		return DataMessage{Header: h, Mode: Mode(mode), Redundancy: redundancy, PayloadKind: PayloadKind(pk), TTL: ttl, Payload: payload}, nil
	case KindAck:
		h, err := readHeader(r)
		if err != nil {
			return nil, fmt.Errorf("transport: %w: %v", logerr.ErrUndecodable, err)
		}
		inReplyTo, err := r.Blob()
		if err != nil {
			return nil, fmt.Errorf("transport: %w: %v", logerr.ErrUndecodable, err)
		}
		seen, err := r.U64()
		if err != nil {
			return nil, fmt.Errorf("transport: %w: %v", logerr.ErrUndecodable, err)
		}
		sendTime, err := r.U64()
		if err != nil {
			return nil, fmt.Errorf("transport: %w: %v", logerr.ErrUndecodable, err)
		}
		var a Ack
		a.Header = h
		copy(a.InReplyTo[:], inReplyTo)
		a.SeenCounter = uint32(seen)
		a.SendTime = sendTime
		return a, nil
	case KindHello:
		h, err := readHeader(r)
		if err != nil {
			return nil, fmt.Errorf("transport: %w: %v", logerr.ErrUndecodable, err)
		}
		return Hello{Header: h}, nil
	case KindGoodbye:
		h, err := readHeader(r)
		if err != nil {
			return nil, fmt.Errorf("transport: %w: %v", logerr.ErrUndecodable, err)
		}
		return Goodbye{Header: h}, nil
	default:
		return nil, fmt.Errorf("transport: %w: unknown kind %d", logerr.ErrUndecodable, tag)
	}
}

// MsgDiscriminator is the fixed string mixed into the dedup hash so
// different logical message families never collide in the seen-set
// even if their random ids did.
const MsgDiscriminator = "sharedlog/directstream/v1"

// DedupKey computes the SHA-256 of the discriminator plus the 32-byte
// id (§4.4 getMsgId).
func DedupKey(id MsgID) [32]byte {
	h := sha256.New()
	h.Write([]byte(MsgDiscriminator))
	h.Write(id[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func nowMillis() uint64 { return uint64(time.Now().UnixMilli()) }
