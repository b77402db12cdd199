package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// binaryMarker is the first byte of a binary frame (§4.4, §6): 0x00,
// then a little-endian u32 payload length, then msgpack bytes.
const binaryMarker = 0x00

// Reader peeks the frame-selector byte and decodes either a JSON line or
// a length-prefixed msgpack payload into an Envelope.
type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadEnvelope reads one frame and decodes it into an Envelope.
func (r *Reader) ReadEnvelope() (Envelope, error) {
	first, err := r.br.Peek(1)
	if err != nil {
		return Envelope{}, err
	}

	var env Envelope
	if first[0] == binaryMarker {
		r.br.Discard(1)
		var lenBuf [4]byte
		if _, err := io.ReadFull(r.br, lenBuf[:]); err != nil {
			return Envelope{}, err
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(r.br, payload); err != nil {
			return Envelope{}, err
		}
		if err := msgpack.Unmarshal(payload, &env); err != nil {
			return Envelope{}, fmt.Errorf("decode binary frame: %w", err)
		}
		return env, nil
	}

	line, err := r.br.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return Envelope{}, err
	}
	if jerr := json.Unmarshal(line, &env); jerr != nil {
		return Envelope{}, fmt.Errorf("decode json-line frame: %w", jerr)
	}
	return env, nil
}

// WriteJSONLine writes env as a single JSON object terminated by '\n'.
func WriteJSONLine(w io.Writer, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// WriteBinary writes env as a 0x00-marked, length-prefixed msgpack frame.
// The daemon uses it for Screen, ScreenDiff and Graphics frames; clients
// send Resize/Input as JSON lines.
func WriteBinary(w io.Writer, env Envelope) error {
	payload, err := msgpack.Marshal(env)
	if err != nil {
		return err
	}
	if len(payload) > 0xFFFFFFFF {
		return fmt.Errorf("binary frame payload too large: %d bytes", len(payload))
	}
	header := make([]byte, 5)
	header[0] = binaryMarker
	binary.LittleEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}
