// Package passthrough implements the stateless byte splitter that sits
// between a PTY reader and the terminal emulator: it lifts APC graphics
// frames and OSC 7 working-directory reports out of the stream so the
// emulator never has to understand them, grounded on the same manual
// byte-scanning technique virtualterminal.VT uses for its plain-history
// and OSC-color fallback parsers.
package passthrough

import (
	"bytes"
	"strconv"
	"strings"
)

const (
	esc = 0x1B
	bel = 0x07
	st  = 0x9C
)

type state int

const (
	stNormal state = iota
	stAfterEsc
	stApc
	stOsc
	stOscEsc
	stApcEsc
)

// Result holds one call's split output.
type Result struct {
	Normal    []byte
	APC       [][]byte
	OSC7Paths []string
}

// Split separates data into bytes destined for the emulator, complete APC
// frames, and decoded OSC 7 paths. It is stateless: an incomplete sequence
// at the end of data is dropped rather than carried to the next call,
// since the OS delivers PTY output in whole writes in practice (§4.2).
func Split(data []byte) Result {
	var r Result
	r.Normal = make([]byte, 0, len(data))

	st_ := stNormal
	var buf []byte // accumulates the body of the in-progress APC/OSC sequence
	seqStart := 0  // index of the ESC that opened the in-progress OSC sequence

	i := 0
	for i < len(data) {
		b := data[i]
		switch st_ {
		case stNormal:
			if b == esc {
				st_ = stAfterEsc
			} else {
				r.Normal = append(r.Normal, b)
			}
			i++
		case stAfterEsc:
			switch b {
			case '_':
				st_ = stApc
				buf = buf[:0]
			case ']':
				st_ = stOsc
				buf = buf[:0]
				seqStart = i - 1
			default:
				// Not a sequence P cares about: emit the ESC and this byte
				// as normal data and resume scanning from Normal.
				r.Normal = append(r.Normal, esc, b)
				st_ = stNormal
			}
			i++
		case stApc:
			switch b {
			case esc:
				st_ = stApcEsc
				i++
			case st:
				r.APC = append(r.APC, buildAPC(buf))
				st_ = stNormal
				i++
			default:
				buf = append(buf, b)
				i++
			}
		case stApcEsc:
			if b == '\\' {
				r.APC = append(r.APC, buildAPC(buf))
				st_ = stNormal
				i++
			} else {
				// Lone ESC inside the APC body: keep it as body content.
				buf = append(buf, esc)
				st_ = stApc
				// reprocess b in stApc
			}
		case stOsc:
			switch b {
			case bel:
				if p, ok := parseOSC7(buf); ok {
					r.OSC7Paths = append(r.OSC7Paths, p)
				} else {
					r.Normal = append(r.Normal, data[seqStart:i+1]...)
				}
				st_ = stNormal
				i++
			case st:
				// Non-OSC-7 sequences go on to the emulator (which parses OSC
				// 0/2 titles); the single-byte ST is written as ESC \ for it.
				if p, ok := parseOSC7(buf); ok {
					r.OSC7Paths = append(r.OSC7Paths, p)
				} else {
					r.Normal = append(append(r.Normal, data[seqStart:i]...), esc, '\\')
				}
				st_ = stNormal
				i++
			case esc:
				st_ = stOscEsc
				i++
			default:
				buf = append(buf, b)
				i++
			}
		case stOscEsc:
			if b == '\\' {
				if p, ok := parseOSC7(buf); ok {
					r.OSC7Paths = append(r.OSC7Paths, p)
				} else {
					r.Normal = append(r.Normal, data[seqStart:i+1]...)
				}
				st_ = stNormal
				i++
			} else {
				buf = append(buf, esc)
				st_ = stOsc
				// reprocess b in stOsc
			}
		}
	}

	// Trailing ESC with nothing after it is emitted as normal data; any
	// in-progress APC/OSC is discarded per the "incomplete tail dropped"
	// rule (§4.2).
	if st_ == stAfterEsc {
		r.Normal = append(r.Normal, esc)
	}

	return r
}

// buildAPC reconstructs the canonical ESC _ ... ESC \ frame from the
// captured body, canonicalizing a single-byte ST terminator to ESC \.
func buildAPC(body []byte) []byte {
	out := make([]byte, 0, len(body)+4)
	out = append(out, esc, '_')
	out = append(out, body...)
	out = append(out, esc, '\\')
	return out
}

// parseOSC7 recognizes "7;file://host/path" and the non-standard bare
// "7;/path" form, percent-decoding ASCII escapes in the path portion.
func parseOSC7(body []byte) (string, bool) {
	s := string(body)
	if !strings.HasPrefix(s, "7;") {
		return "", false
	}
	rest := s[2:]
	if strings.HasPrefix(rest, "file://") {
		rest = rest[len("file://"):]
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			rest = rest[idx:]
		} else {
			return "", false
		}
	}
	if !strings.HasPrefix(rest, "/") {
		return "", false
	}
	return percentDecode(rest), true
}

func percentDecode(s string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}
	var b bytes.Buffer
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(n))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
