// Package packet implements the TNG datagram wire format: a small fixed
// header carrying a message tag, a sequence tag and the payload length,
// followed by an ASCII payload.
package packet

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/telelumen/golum/common"
)

const (
	// HeaderSize is the fixed datagram header length in bytes
	HeaderSize = 10

	// TagCommand marks a CLI command encapsulated in a datagram
	TagCommand uint16 = 0xAEEC
)

// Header layout:
//
//	bytes 0-1  message tag (0xAEEC for commands)
//	bytes 2-3  sequence tag, big-endian, 1..65535, never 0
//	bytes 4-7  reserved, zero
//	bytes 8-9  payload length, big-endian
//
// The sequence tag allows correlation of replies to commands; the firmware
// echoes it back in responses.
type Packet struct {
	Tag     uint16
	Seq     uint16
	Payload []byte
}

var (
	seqMu   sync.Mutex
	lastSeq uint16
)

// NextSeq returns the next sequence tag.  Tags wrap from 65535 back to 1 and
// are never zero, so a zero tag always marks an unsequenced packet.
func NextSeq() uint16 {
	seqMu.Lock()
	defer seqMu.Unlock()
	lastSeq++
	if lastSeq == 0 {
		lastSeq = 1
	}
	return lastSeq
}

// New returns a command Packet for the supplied ASCII payload, stamped with
// a fresh sequence tag.
func New(payload string) *Packet {
	return &Packet{Tag: TagCommand, Seq: NextSeq(), Payload: []byte(payload)}
}

// Encode renders the packet into wire bytes.  Payloads longer than the
// datagram size bound are rejected rather than fragmented.
func (p *Packet) Encode() ([]byte, error) {
	if len(p.Payload) > common.MaxDatagramSize-HeaderSize {
		return nil, fmt.Errorf(`payload of %d bytes exceeds datagram bound`, len(p.Payload))
	}
	buf := make([]byte, HeaderSize+len(p.Payload))
	binary.BigEndian.PutUint16(buf[0:2], p.Tag)
	binary.BigEndian.PutUint16(buf[2:4], p.Seq)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(p.Payload)))
	copy(buf[HeaderSize:], p.Payload)
	return buf, nil
}

// Decode parses wire bytes into a Packet.  Truncated headers and length
// mismatches are errors; the reserved bytes are ignored for forward
// compatibility.
func Decode(buf []byte) (*Packet, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf(`datagram of %d bytes shorter than header`, len(buf))
	}
	p := &Packet{
		Tag: binary.BigEndian.Uint16(buf[0:2]),
		Seq: binary.BigEndian.Uint16(buf[2:4]),
	}
	plen := int(binary.BigEndian.Uint16(buf[8:10]))
	if plen > len(buf)-HeaderSize {
		return nil, fmt.Errorf(`datagram declares %d payload bytes, carries %d`, plen, len(buf)-HeaderSize)
	}
	p.Payload = make([]byte, plen)
	copy(p.Payload, buf[HeaderSize:HeaderSize+plen])
	return p, nil
}
