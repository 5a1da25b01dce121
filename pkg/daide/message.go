package daide

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame types. Every frame is a 4-byte header (type, pad, 16-bit big-endian
// payload length) followed by the payload.
const (
	FrameInitial        byte = 0x00 // client hello: version + magic
	FrameRepresentation byte = 0x01 // server: province token table
	FrameDiplomacy      byte = 0x02 // token sequence, both directions
	FrameFinal          byte = 0x03 // orderly close, no payload
	FrameError          byte = 0x04 // 16-bit error code
)

// Initial-message constants.
const (
	Version = 1
	Magic   = 0xDA10
)

// Error codes carried by error frames.
const (
	ErrTimeout       uint16 = 0x01
	ErrNotInitial    uint16 = 0x02
	ErrUnexpected    uint16 = 0x03
	ErrVersion       uint16 = 0x04
	ErrDuplicateIM   uint16 = 0x05
	ErrShortHeader   uint16 = 0x08
	ErrBadType       uint16 = 0x0A
	ErrStillInitial  uint16 = 0x0B
	ErrOddLength     uint16 = 0x0C
)

const maxPayload = 0xFFFF

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, typ byte, payload []byte) error {
	if len(payload) > maxPayload {
		return fmt.Errorf("daide: payload of %d bytes exceeds frame limit", len(payload))
	}
	header := []byte{typ, 0, byte(len(payload) >> 8), byte(len(payload))}
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader) (typ byte, payload []byte, err error) {
	var header [4]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	typ = header[0]
	n := int(header[2])<<8 | int(header[3])
	if n == 0 {
		return typ, nil, nil
	}
	payload = make([]byte, n)
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return typ, payload, nil
}

// WriteInitial writes the client's opening frame.
func WriteInitial(w io.Writer) error {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:], Version)
	binary.BigEndian.PutUint16(payload[2:], Magic)
	return WriteFrame(w, FrameInitial, payload)
}

// CheckInitial validates an initial frame's payload.
func CheckInitial(payload []byte) error {
	if len(payload) != 4 {
		return fmt.Errorf("daide: initial frame payload is %d bytes, want 4", len(payload))
	}
	if v := binary.BigEndian.Uint16(payload[0:]); v != Version {
		return fmt.Errorf("daide: protocol version %d not supported", v)
	}
	if m := binary.BigEndian.Uint16(payload[2:]); m != Magic {
		return fmt.Errorf("daide: bad magic 0x%04X", m)
	}
	return nil
}

// WriteError writes an error frame.
func WriteError(w io.Writer, code uint16) error {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, code)
	return WriteFrame(w, FrameError, payload)
}

// TokensToBytes serializes a token sequence for a diplomacy frame.
func TokensToBytes(tokens []Token) []byte {
	out := make([]byte, 2*len(tokens))
	for i, t := range tokens {
		binary.BigEndian.PutUint16(out[2*i:], uint16(t))
	}
	return out
}

// BytesToTokens parses a diplomacy frame payload.
func BytesToTokens(payload []byte) ([]Token, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("daide: odd payload length %d", len(payload))
	}
	tokens := make([]Token, len(payload)/2)
	for i := range tokens {
		tokens[i] = Token(binary.BigEndian.Uint16(payload[2*i:]))
	}
	return tokens, nil
}

// WriteDiplomacy writes a token sequence as a diplomacy frame.
func WriteDiplomacy(w io.Writer, tokens []Token) error {
	return WriteFrame(w, FrameDiplomacy, TokensToBytes(tokens))
}

// node is one element of a parsed token sequence: either a bare token or a
// parenthesized group.
type node struct {
	tok   Token
	group []node // non-nil marks a group, possibly empty
}

// parseGroups structures a flat token sequence by its brackets.
func parseGroups(tokens []Token) ([]node, error) {
	nodes, rest, err := parseGroupsInner(tokens)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("daide: unbalanced closing bracket")
	}
	return nodes, nil
}

func parseGroupsInner(tokens []Token) ([]node, []Token, error) {
	var nodes []node
	for len(tokens) > 0 {
		switch tokens[0] {
		case BRA:
			inner, rest, err := parseGroupsInner(tokens[1:])
			if err != nil {
				return nil, nil, err
			}
			if len(rest) == 0 || rest[0] != KET {
				return nil, nil, fmt.Errorf("daide: missing closing bracket")
			}
			if inner == nil {
				inner = []node{}
			}
			nodes = append(nodes, node{group: inner})
			tokens = rest[1:]
		case KET:
			return nodes, tokens, nil
		default:
			nodes = append(nodes, node{tok: tokens[0]})
			tokens = tokens[1:]
		}
	}
	return nodes, nil, nil
}

// flatten renders nodes back into a token sequence.
func flatten(nodes []node) []Token {
	var out []Token
	for _, n := range nodes {
		if n.group != nil {
			out = append(out, BRA)
			out = append(out, flatten(n.group)...)
			out = append(out, KET)
		} else {
			out = append(out, n.tok)
		}
	}
	return out
}

// Node is the exported view of one parsed element: a bare token or a
// bracketed group.
type Node struct {
	Token Token
	Group []Node // non-nil marks a group, possibly empty
}

// IsGroup reports whether the node is a bracketed group.
func (n Node) IsGroup() bool { return n.Group != nil }

// First returns the node's token, or a group's first token. Zero for an
// empty group or a group starting with a subgroup.
func (n Node) First() Token {
	if n.Group == nil {
		return n.Token
	}
	if len(n.Group) > 0 && n.Group[0].Group == nil {
		return n.Group[0].Token
	}
	return 0
}

// Split structures a token sequence by its brackets.
func Split(tokens []Token) ([]Node, error) {
	nodes, err := parseGroups(tokens)
	if err != nil {
		return nil, err
	}
	return exportNodes(nodes), nil
}

func exportNodes(nodes []node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		if n.group != nil {
			out[i] = Node{Group: exportNodes(n.group)}
		} else {
			out[i] = Node{Token: n.tok}
		}
	}
	return out
}

// group wraps tokens in brackets.
func group(tokens ...Token) []Token {
	out := make([]Token, 0, len(tokens)+2)
	out = append(out, BRA)
	out = append(out, tokens...)
	out = append(out, KET)
	return out
}
