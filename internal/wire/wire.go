// Package wire implements §6.4's framed binary distributed protocol:
// [msg_type: 1 byte][length: 4 bytes big-endian][payload], with payload
// encoded as canonical CBOR for deterministic, schema-stable bytes --
// matching the cache package's own choice of fxamacker/cbor over the
// teacher's never-generated pb/ protobuf stubs (see DESIGN.md).
package wire

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/xerrors"
)

// MsgType enumerates the wire message kinds of §6.4.
type MsgType byte

const (
	MsgRegistration MsgType = iota + 1
	MsgHeartBeat
	MsgWorkRequest
	MsgActionRequest
	MsgActionResult
	MsgPeerAnnounce
	MsgStealRequest
	MsgStealResponse
)

func (t MsgType) String() string {
	switch t {
	case MsgRegistration:
		return "Registration"
	case MsgHeartBeat:
		return "HeartBeat"
	case MsgWorkRequest:
		return "WorkRequest"
	case MsgActionRequest:
		return "ActionRequest"
	case MsgActionResult:
		return "ActionResult"
	case MsgPeerAnnounce:
		return "PeerAnnounce"
	case MsgStealRequest:
		return "StealRequest"
	case MsgStealResponse:
		return "StealResponse"
	default:
		return "Unknown"
	}
}

// maxFrameLen guards against a corrupt or hostile length prefix causing an
// unbounded allocation; no single actual message type approaches this.
const maxFrameLen = 256 << 20

var encMode = func() cbor.EncMode {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// Encode marshals v as payload and renders the full frame
// [msg_type][length][payload].
func Encode(t MsgType, v interface{}) ([]byte, error) {
	payload, err := encMode.Marshal(v)
	if err != nil {
		return nil, xerrors.Errorf("wire: encode %v payload: %w", t, err)
	}
	buf := make([]byte, 5+len(payload))
	buf[0] = byte(t)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf, nil
}

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, t MsgType, v interface{}) error {
	buf, err := Encode(t, v)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Frame is one decoded message: its type and undecoded payload bytes. The
// caller decodes into the concrete struct matching Type.
type Frame struct {
	Type    MsgType
	Payload []byte
}

// ReadFrame reads and returns the next frame from r.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}
	t := MsgType(header[0])
	length := binary.BigEndian.Uint32(header[1:5])
	if length > maxFrameLen {
		return Frame{}, xerrors.Errorf("wire: frame length %d exceeds max %d", length, maxFrameLen)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, xerrors.Errorf("wire: read %v payload: %w", t, err)
	}
	return Frame{Type: t, Payload: payload}, nil
}

// Decode unmarshals f's payload into v.
func Decode(f Frame, v interface{}) error {
	if err := cbor.Unmarshal(f.Payload, v); err != nil {
		return xerrors.Errorf("wire: decode %v payload: %w", f.Type, err)
	}
	return nil
}
