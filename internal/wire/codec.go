package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/valyala/bytebufferpool"
)

// ErrUnknownTag is returned by Decode when the leading byte does not
// match any known message tag.
var ErrUnknownTag = errors.New("wire: unknown message tag")

// ErrNotClientMessage is returned by Decode when the tag is valid but
// names a server-to-client message; a client is never allowed to send
// one.
var ErrNotClientMessage = errors.New("wire: not a client-to-server message")

// ErrPlateTooLong names a str field longer than MaxPlateLen. Since
// MaxPlateLen is already the maximum a single length byte can encode,
// Decode never returns it, and the encoders truncate over-long strings
// rather than failing.
var ErrPlateTooLong = errors.New("wire: string exceeds 255 bytes")

var bufPool bytebufferpool.Pool

// Message is implemented by every client-to-server payload type.
type Message interface {
	isMessage()
}

func (Plate) isMessage()         {}
func (WantHeartbeat) isMessage() {}
func (IAmCamera) isMessage()     {}
func (IAmDispatcher) isMessage() {}

// Decode reads exactly one client-to-server message from r, blocking
// until the full message is available. It never returns a partially
// consumed message: on error, the stream position is undefined and
// the connection must be closed.
func Decode(r io.Reader) (Message, error) {
	var tagByte [1]byte
	if _, err := io.ReadFull(r, tagByte[:]); err != nil {
		return nil, err
	}
	tag := Tag(tagByte[0])

	switch tag {
	case TagPlate:
		return decodePlate(r)
	case TagWantHeartbeat:
		return decodeWantHeartbeat(r)
	case TagIAmCamera:
		return decodeIAmCamera(r)
	case TagIAmDispatcher:
		return decodeIAmDispatcher(r)
	case TagError, TagTicket, TagHeartbeat:
		return nil, fmt.Errorf("%w: 0x%02x (%s)", ErrNotClientMessage, byte(tag), tag)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, byte(tag))
	}
}

func readString(r io.Reader) (string, error) {
	var lenByte [1]byte
	if _, err := io.ReadFull(r, lenByte[:]); err != nil {
		return "", err
	}
	n := int(lenByte[0])
	if n == 0 {
		return "", nil
	}

	buf := bufPool.Get()
	defer bufPool.Put(buf)
	buf.Set(nil)
	if cap(buf.B) < n {
		buf.B = make([]byte, n)
	} else {
		buf.B = buf.B[:n]
	}
	if _, err := io.ReadFull(r, buf.B); err != nil {
		return "", err
	}
	return string(buf.B), nil
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func decodePlate(r io.Reader) (Message, error) {
	plate, err := readString(r)
	if err != nil {
		return nil, err
	}
	ts, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	return Plate{Plate: plate, Timestamp: ts}, nil
}

func decodeWantHeartbeat(r io.Reader) (Message, error) {
	interval, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	return WantHeartbeat{Interval: interval}, nil
}

func decodeIAmCamera(r io.Reader) (Message, error) {
	road, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	mile, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	limit, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	return IAmCamera{Road: road, Mile: mile, Limit: limit}, nil
}

func decodeIAmDispatcher(r io.Reader) (Message, error) {
	var numRoadsByte [1]byte
	if _, err := io.ReadFull(r, numRoadsByte[:]); err != nil {
		return nil, err
	}
	n := int(numRoadsByte[0])
	roads := make([]uint16, n)
	for i := range roads {
		road, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		roads[i] = road
	}
	return IAmDispatcher{Roads: roads}, nil
}

// EncodeError writes an Error message.
func EncodeError(w io.Writer, msg Error) error {
	if len(msg.Msg) > MaxPlateLen {
		msg.Msg = msg.Msg[:MaxPlateLen]
	}
	buf := bufPool.Get()
	defer bufPool.Put(buf)
	buf.Set(nil)
	buf.WriteByte(byte(TagError))
	writeString(buf, msg.Msg)
	_, err := w.Write(buf.B)
	return err
}

// EncodeTicket writes a Ticket message.
func EncodeTicket(w io.Writer, t Ticket) error {
	buf := bufPool.Get()
	defer bufPool.Put(buf)
	buf.Set(nil)
	buf.WriteByte(byte(TagTicket))
	writeString(buf, t.Plate)
	writeUint16(buf, t.Road)
	writeUint16(buf, t.Mile1)
	writeUint32(buf, t.Timestamp1)
	writeUint16(buf, t.Mile2)
	writeUint32(buf, t.Timestamp2)
	writeUint16(buf, t.Speed)
	_, err := w.Write(buf.B)
	return err
}

// EncodeHeartbeat writes a Heartbeat message (tag only, no payload).
func EncodeHeartbeat(w io.Writer) error {
	_, err := w.Write([]byte{byte(TagHeartbeat)})
	return err
}

func writeString(buf *bytebufferpool.ByteBuffer, s string) {
	if len(s) > MaxPlateLen {
		s = s[:MaxPlateLen]
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
}

func writeUint16(buf *bytebufferpool.ByteBuffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytebufferpool.ByteBuffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
