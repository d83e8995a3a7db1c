package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/danmuck/accord/internal/protocol"
)

const (
	Magic     uint16 = 0xACC0
	HeaderLen        = 4

	VersionV1      uint8 = 1
	VersionCompact uint8 = 2
)

var (
	ErrShortFrame     = errors.New("frame: short frame")
	ErrLayoutMismatch = errors.New("frame: layout mismatch")
	ErrUnknownLayout  = errors.New("frame: unknown layout")
)

// Frame is one telemetry sample as carried on the wire. Position is already
// relative to the producer's region origin.
type Frame struct {
	TimestampMS uint64  `json:"timestamp_ms"`
	Pitch       float32 `json:"pitch"`
	Yaw         float32 `json:"yaw"`
	Roll        float32 `json:"roll"`
	X           float32 `json:"x"`
	Y           float32 `json:"y"`
	Z           float32 `json:"z"`
}

// Header is the fixed wire header preceding every payload.
type Header struct {
	Magic    uint16
	Version  uint8
	Reserved uint8
}

// Layout is one fixed-size payload shape, selected by the header version.
type Layout struct {
	Name       string
	Version    uint8
	PayloadLen int
	put        func(b []byte, f Frame)
	get        func(b []byte) Frame
}

// Size is the full on-wire length: header plus payload.
func (l Layout) Size() int {
	return HeaderLen + l.PayloadLen
}

func (l Layout) String() string {
	return l.Name
}

// LayoutV1 carries the timestamp, full orientation and full position.
var LayoutV1 = Layout{
	Name:       "v1",
	Version:    VersionV1,
	PayloadLen: 32,
	put: func(b []byte, f Frame) {
		binary.LittleEndian.PutUint64(b[0:8], f.TimestampMS)
		putFloat(b[8:12], f.Pitch)
		putFloat(b[12:16], f.Yaw)
		putFloat(b[16:20], f.Roll)
		putFloat(b[20:24], f.X)
		putFloat(b[24:28], f.Y)
		putFloat(b[28:32], f.Z)
	},
	get: func(b []byte) Frame {
		return Frame{
			TimestampMS: binary.LittleEndian.Uint64(b[0:8]),
			Pitch:       getFloat(b[8:12]),
			Yaw:         getFloat(b[12:16]),
			Roll:        getFloat(b[16:20]),
			X:           getFloat(b[20:24]),
			Y:           getFloat(b[24:28]),
			Z:           getFloat(b[28:32]),
		}
	},
}

// LayoutCompact keeps heading and position only; pitch and roll decode as zero.
var LayoutCompact = Layout{
	Name:       "compact",
	Version:    VersionCompact,
	PayloadLen: 24,
	put: func(b []byte, f Frame) {
		binary.LittleEndian.PutUint64(b[0:8], f.TimestampMS)
		putFloat(b[8:12], f.Yaw)
		putFloat(b[12:16], f.X)
		putFloat(b[16:20], f.Y)
		putFloat(b[20:24], f.Z)
	},
	get: func(b []byte) Frame {
		return Frame{
			TimestampMS: binary.LittleEndian.Uint64(b[0:8]),
			Yaw:         getFloat(b[8:12]),
			X:           getFloat(b[12:16]),
			Y:           getFloat(b[16:20]),
			Z:           getFloat(b[20:24]),
		}
	},
}

var layouts = map[uint8]Layout{
	VersionV1:      LayoutV1,
	VersionCompact: LayoutCompact,
}

// LayoutForVersion resolves a header version to its payload layout.
func LayoutForVersion(version uint8) (Layout, error) {
	l, ok := layouts[version]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %d", protocol.ErrUnsupportedVersion, version)
	}
	return l, nil
}

// ParseLayout maps a configured layout name to its layout.
func ParseLayout(name string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "v1":
		return LayoutV1, nil
	case "compact", "v2":
		return LayoutCompact, nil
	default:
		return Layout{}, fmt.Errorf("%w: %q", ErrUnknownLayout, name)
	}
}

// Encode returns exactly l.Size() bytes.
func Encode(l Layout, f Frame) []byte {
	buf := make([]byte, l.Size())
	EncodeInto(buf, l, f)
	return buf
}

// EncodeInto writes f into buf, which must be at least l.Size() bytes.
func EncodeInto(buf []byte, l Layout, f Frame) {
	copy(buf[0:HeaderLen], EncodeHeader(Header{Magic: Magic, Version: l.Version}))
	l.put(buf[HeaderLen:l.Size()], f)
}

// Decode dispatches on the header version. b must be exactly one frame.
func Decode(b []byte) (Frame, Layout, error) {
	if len(b) < HeaderLen {
		return Frame{}, Layout{}, fmt.Errorf("%w: %d bytes", protocol.ErrInvalidLength, len(b))
	}
	h := DecodeHeader(b[:HeaderLen])
	if h.Magic != Magic {
		return Frame{}, Layout{}, fmt.Errorf("%w: 0x%04x", protocol.ErrInvalidMagic, h.Magic)
	}
	l, err := LayoutForVersion(h.Version)
	if err != nil {
		return Frame{}, Layout{}, err
	}
	if len(b) != l.Size() {
		return Frame{}, Layout{}, fmt.Errorf("%w: got=%d want=%d", protocol.ErrInvalidLength, len(b), l.Size())
	}
	return l.get(b[HeaderLen:]), l, nil
}

// ReadFrame reads exactly one l-sized frame, accumulating short reads. A clean
// close between frames returns io.EOF; a close mid-frame returns ErrShortFrame.
// The raw bytes are returned alongside the decoded frame for verbatim forwarding.
func ReadFrame(r io.Reader, l Layout) (Frame, []byte, error) {
	buf := make([]byte, l.Size())
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, nil, ErrShortFrame
		}
		return Frame{}, nil, err
	}
	f, got, err := Decode(buf)
	if err != nil {
		return Frame{}, nil, err
	}
	if got.Version != l.Version {
		return Frame{}, nil, fmt.Errorf("%w: got=%s want=%s", ErrLayoutMismatch, got, l)
	}
	return f, buf, nil
}

func WriteFrame(w io.Writer, l Layout, f Frame) error {
	_, err := w.Write(Encode(l, f))
	return err
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint16(buf[0:2], h.Magic)
	buf[2] = h.Version
	buf[3] = h.Reserved
	return buf
}

func DecodeHeader(b []byte) Header {
	return Header{
		Magic:    binary.LittleEndian.Uint16(b[0:2]),
		Version:  b[2],
		Reserved: b[3],
	}
}

func putFloat(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func getFloat(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
