package codec

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	// HeaderSize is the size of the length prefix.
	HeaderSize = 4

	// DefaultMaxFrameSize bounds the body of a single frame.
	DefaultMaxFrameSize = 1 << 20
)

// Marshal encodes env into a single frame. Bodies larger than
// DefaultMaxFrameSize are refused with ErrFrameTooLarge, since a peer using
// the default decoder would drop the connection on them.
func Marshal(env Envelope) ([]byte, error) {
	return MarshalLimit(env, DefaultMaxFrameSize)
}

// MarshalLimit encodes env into a single frame whose body is at most limit bytes.
func MarshalLimit(env Envelope, limit uint32) ([]byte, error) {
	if env.Type == "" {
		return nil, errors.Wrap(ErrMalformedEnvelope, "envelope type is empty")
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope failed")
	}
	if uint64(len(body)) > uint64(limit) {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%s body is %d bytes, limit %d", env.Type, len(body), limit)
	}
	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[HeaderSize:], body)
	return frame, nil
}

// Encode writes env to w as a single frame, within DefaultMaxFrameSize.
func Encode(w io.Writer, env Envelope) error {
	return EncodeLimit(w, env, DefaultMaxFrameSize)
}

// EncodeLimit writes env to w as a single frame whose body is at most limit
// bytes. Nothing is written when the frame is refused.
func EncodeLimit(w io.Writer, env Envelope, limit uint32) error {
	frame, err := MarshalLimit(env, limit)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return errors.Wrap(err, "write frame failed")
	}
	return nil
}

// Unmarshal decodes a frame body, without its length prefix, into an envelope.
func Unmarshal(body []byte) (Envelope, error) {
	if !utf8.Valid(body) {
		return Envelope{}, frameError(ErrMalformedEnvelope, "body is not valid utf-8")
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, frameError(ErrMalformedEnvelope, err.Error())
	}
	if env.Type == "" {
		return Envelope{}, frameError(ErrMalformedEnvelope, "envelope type is empty")
	}
	return env, nil
}

// DecoderCfg configures a Decoder.
type DecoderCfg func(*Decoder) error

// WithMaxFrameSize sets the largest frame body the decoder accepts.
func WithMaxFrameSize(n uint32) DecoderCfg {
	return func(d *Decoder) error {
		if n == 0 {
			return errors.New("max frame size must be positive")
		}
		d.maxFrameSize = n
		return nil
	}
}

// Decoder reads frames from a byte stream.
type Decoder struct {
	r            *bufio.Reader
	maxFrameSize uint32
	header       [HeaderSize]byte
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader, cfgs ...DecoderCfg) (*Decoder, error) {
	d := &Decoder{
		r:            bufio.NewReader(r),
		maxFrameSize: DefaultMaxFrameSize,
	}
	for _, cfg := range cfgs {
		if err := cfg(d); err != nil {
			return nil, errors.Wrap(err, "apply Decoder cfg failed")
		}
	}
	return d, nil
}

// Decode returns the next envelope in the stream.
//
// It returns io.EOF if the stream ends cleanly between frames and
// io.ErrUnexpectedEOF if it ends inside one. Oversized or undecodable frames
// are reported as *FrameError.
func (d *Decoder) Decode() (Envelope, error) {
	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		return Envelope{}, err
	}
	n := binary.BigEndian.Uint32(d.header[:])
	if n == 0 {
		return Envelope{}, &FrameError{Err: ErrEmptyFrame}
	}
	if n > d.maxFrameSize {
		return Envelope{}, frameError(ErrFrameTooLarge, "length prefix exceeds maximum")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(d.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return Envelope{}, io.ErrUnexpectedEOF
		}
		return Envelope{}, err
	}
	return Unmarshal(body)
}
