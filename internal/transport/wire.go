package transport

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen is the size of the UDP engine's fragment header.
//
//	+-----------+-----------+------------+-----------+-----------+---------+
//	|    GSI    | Data Port | Message ID | Frag Idx  | Frag Cnt  | Payload |
//	+-----------+-----------+------------+-----------+-----------+---------+
//	|    6B     |    2B     |     4B     |    2B     |    2B     |   var   |
const HeaderLen = 16

const (
	ipv4HeaderLen = 20
	ipv6HeaderLen = 40
)

// maxFragments bounds the fragment count field.
const maxFragments = 1<<16 - 1

type header struct {
	Session SessionID
	Port    uint16
	MsgID   uint32
	Index   uint16
	Count   uint16
}

func (h header) put(b []byte) {
	copy(b[0:6], h.Session[:])
	binary.BigEndian.PutUint16(b[6:8], h.Port)
	binary.BigEndian.PutUint32(b[8:12], h.MsgID)
	binary.BigEndian.PutUint16(b[12:14], h.Index)
	binary.BigEndian.PutUint16(b[14:16], h.Count)
}

// parseHeader splits a datagram into header and payload.
func parseHeader(b []byte) (header, []byte, error) {
	if len(b) < HeaderLen {
		return header{}, nil, fmt.Errorf("short datagram: %d bytes", len(b))
	}
	var h header
	copy(h.Session[:], b[0:6])
	h.Port = binary.BigEndian.Uint16(b[6:8])
	h.MsgID = binary.BigEndian.Uint32(b[8:12])
	h.Index = binary.BigEndian.Uint16(b[12:14])
	h.Count = binary.BigEndian.Uint16(b[14:16])
	if h.Count == 0 || h.Index >= h.Count {
		return header{}, nil, fmt.Errorf("bad fragment %d/%d", h.Index, h.Count)
	}
	return h, b[HeaderLen:], nil
}

// fragment slices p into pieces of at most size bytes. An empty p yields one
// empty fragment.
func fragment(p []byte, size int) ([][]byte, error) {
	if size < 1 {
		return nil, fmt.Errorf("fragment size %d leaves no room for payload", size)
	}
	if len(p) == 0 {
		return [][]byte{p}, nil
	}
	n := (len(p) + size - 1) / size
	if n > maxFragments {
		return nil, fmt.Errorf("message of %d bytes needs %d fragments, limit %d", len(p), n, maxFragments)
	}
	frags := make([][]byte, 0, n)
	for len(p) > size {
		frags = append(frags, p[:size])
		p = p[size:]
	}
	return append(frags, p), nil
}

// partial collects the fragments of one in-flight message from one source.
type partial struct {
	msgID    uint32
	segments [][]byte
	have     int
}

// reassembler tracks at most one in-flight message per source. A fragment of
// a newer message discards the older partial one; there is no repair.
type reassembler struct {
	inflight map[SessionID]*partial
}

func newReassembler() *reassembler {
	return &reassembler{inflight: make(map[SessionID]*partial)}
}

// add stores a copy of payload and returns the completed message, if any.
func (r *reassembler) add(h header, payload []byte) (Message, bool) {
	p := r.inflight[h.Session]
	if p == nil || p.msgID != h.MsgID || len(p.segments) != int(h.Count) {
		p = &partial{msgID: h.MsgID, segments: make([][]byte, h.Count)}
		r.inflight[h.Session] = p
	}
	if p.segments[h.Index] == nil {
		seg := make([]byte, len(payload))
		copy(seg, payload)
		p.segments[h.Index] = seg
		p.have++
	}
	if p.have < len(p.segments) {
		return Message{}, false
	}
	delete(r.inflight, h.Session)
	return Message{Segments: p.segments, Source: h.Session}, true
}
