// Package codec encodes batches of telemetry payloads into self-delimiting
// binary frames for the collector stream, and decodes them on the far side.
//
// Frame layout (all integers big-endian):
//
//	u16 length of body
//	body:
//	  "SN" u8 version u8 flags(0) u32 seq
//	  u8 node-len, node bytes
//	  u8 count, count × entry
//	  u32 CRC-32 (IEEE) of every preceding body byte
//
// Entries start with a tag byte:
//
//	1 reading:  u8 kind, then u8 button u16 ms for button presses, else f32 value
//	2 fault:    u8 device, u8 class, u8 len, cause
//	3 critical: u8 len, cause
package codec

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"math"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"sensenode/types"
)

const (
	// MaxPayloads bounds the entries in one frame.
	MaxPayloads = 6
	// MaxFrameSize bounds an encoded body.
	MaxFrameSize = 2048

	version  = 1
	maxText  = 255
	tagRead  = 1
	tagFault = 2
	tagCrit  = 3
)

var (
	ErrTooMany     = errors.New("codec: too many payloads")
	ErrBadMagic    = errors.New("codec: bad magic")
	ErrBadVersion  = errors.New("codec: unsupported version")
	ErrChecksum    = errors.New("codec: checksum mismatch")
	ErrTruncated   = errors.New("codec: truncated frame")
	ErrFrameSize   = errors.New("codec: frame too large")
	ErrUnknownTag  = errors.New("codec: unknown entry tag")
	ErrBadPayload  = errors.New("codec: unsupported payload")
	errTrailingRaw = errors.New("codec: trailing bytes")
)

// Batch is one encoded unit: an ordered, bounded group of payloads.
type Batch struct {
	Node     string
	Seq      uint32
	Payloads []types.Payload
}

// Append encodes b as a length-prefixed frame appended to dst.
func Append(dst []byte, b Batch) ([]byte, error) {
	if len(b.Payloads) > MaxPayloads {
		return dst, ErrTooMany
	}
	start := len(dst)
	dst = append(dst, 0, 0) // length placeholder
	body := len(dst)

	dst = append(dst, 'S', 'N', version, 0)
	dst = binary.BigEndian.AppendUint32(dst, b.Seq)
	dst = appendText(dst, b.Node)
	dst = append(dst, byte(len(b.Payloads)))
	for _, p := range b.Payloads {
		var err error
		if dst, err = appendPayload(dst, p); err != nil {
			return dst[:start], err
		}
	}
	dst = binary.BigEndian.AppendUint32(dst, crc32.ChecksumIEEE(dst[body:]))

	n := len(dst) - body
	if n > MaxFrameSize {
		return dst[:start], ErrFrameSize
	}
	binary.BigEndian.PutUint16(dst[start:], uint16(n))
	return dst, nil
}

// Marshal encodes b into a fresh frame.
func Marshal(b Batch) ([]byte, error) { return Append(nil, b) }

func appendPayload(dst []byte, p types.Payload) ([]byte, error) {
	switch v := p.(type) {
	case types.Reading:
		dst = append(dst, tagRead, byte(v.Kind))
		if v.Kind == types.KindButtonPress {
			dst = append(dst, byte(v.Button))
			return binary.BigEndian.AppendUint16(dst, v.PressMs), nil
		}
		return binary.BigEndian.AppendUint32(dst, math.Float32bits(v.Value)), nil
	case types.Fault:
		dst = append(dst, tagFault, byte(v.Device), byte(v.Class))
		return appendText(dst, v.Cause), nil
	case types.Critical:
		dst = append(dst, tagCrit)
		return appendText(dst, v.Cause), nil
	default:
		return dst, errors.Wrapf(ErrBadPayload, "%T", p)
	}
}

func appendText(dst []byte, s string) []byte {
	if len(s) > maxText {
		n := maxText
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	dst = append(dst, byte(len(s)))
	return append(dst, s...)
}

// -----------------------------------------------------------------------------
// Decoding
// -----------------------------------------------------------------------------

// Decoder reads consecutive frames from a stream.
type Decoder struct {
	r   *bufio.Reader
	buf []byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads and decodes the next frame. io.EOF is returned only on a clean
// frame boundary.
func (d *Decoder) Decode() (Batch, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Batch{}, ErrTruncated
		}
		return Batch{}, err
	}
	n := int(binary.BigEndian.Uint16(hdr[:]))
	if n > MaxFrameSize {
		return Batch{}, ErrFrameSize
	}
	if cap(d.buf) < n {
		d.buf = make([]byte, n)
	}
	body := d.buf[:n]
	if _, err := io.ReadFull(d.r, body); err != nil {
		return Batch{}, ErrTruncated
	}
	return UnmarshalBody(body)
}

// Unmarshal decodes a single length-prefixed frame.
func Unmarshal(frame []byte) (Batch, error) {
	if len(frame) < 2 {
		return Batch{}, ErrTruncated
	}
	n := int(binary.BigEndian.Uint16(frame))
	if len(frame)-2 < n {
		return Batch{}, ErrTruncated
	}
	if len(frame)-2 > n {
		return Batch{}, errTrailingRaw
	}
	return UnmarshalBody(frame[2:])
}

// UnmarshalBody decodes a frame body (without the length prefix).
func UnmarshalBody(body []byte) (Batch, error) {
	if len(body) < 4+4+1+1+4 {
		return Batch{}, ErrTruncated
	}
	sum := binary.BigEndian.Uint32(body[len(body)-4:])
	body = body[:len(body)-4]
	if crc32.ChecksumIEEE(body) != sum {
		return Batch{}, ErrChecksum
	}
	if body[0] != 'S' || body[1] != 'N' {
		return Batch{}, ErrBadMagic
	}
	if body[2] != version {
		return Batch{}, ErrBadVersion
	}
	r := reader{b: body[4:]}
	var b Batch
	b.Seq = r.u32()
	b.Node = r.text()
	count := int(r.u8())
	if count > MaxPayloads {
		return Batch{}, ErrTooMany
	}
	b.Payloads = make([]types.Payload, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		p, err := r.payload()
		if err != nil {
			return Batch{}, err
		}
		b.Payloads = append(b.Payloads, p)
	}
	if r.err != nil {
		return Batch{}, r.err
	}
	if len(r.b) != 0 {
		return Batch{}, errTrailingRaw
	}
	return b, nil
}

type reader struct {
	b   []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = ErrTruncated
		return nil
	}
	p := r.b[:n]
	r.b = r.b[n:]
	return p
}

func (r *reader) u8() byte {
	if p := r.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if p := r.take(2); p != nil {
		return binary.BigEndian.Uint16(p)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if p := r.take(4); p != nil {
		return binary.BigEndian.Uint32(p)
	}
	return 0
}

func (r *reader) text() string {
	n := int(r.u8())
	return string(r.take(n))
}

func (r *reader) payload() (types.Payload, error) {
	switch tag := r.u8(); tag {
	case tagRead:
		k := types.Kind(r.u8())
		if k == types.KindButtonPress {
			btn := types.ButtonID(r.u8())
			return types.Press(btn, r.u16()), r.err
		}
		return types.R(k, math.Float32frombits(r.u32())), r.err
	case tagFault:
		f := types.Fault{Device: types.Device(r.u8()), Class: types.FaultClass(r.u8())}
		f.Cause = r.text()
		return f, r.err
	case tagCrit:
		return types.Critical{Cause: r.text()}, r.err
	default:
		if r.err != nil {
			return nil, r.err
		}
		return nil, errors.Wrapf(ErrUnknownTag, "tag %d", tag)
	}
}
