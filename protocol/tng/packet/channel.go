package packet

import (
	"fmt"
	"net"
	"time"

	"github.com/telelumen/golum/common"
)

// Channel is a connectionless request/response endpoint.  Each Channel owns
// one UDP socket and carries no shared mutable state, so scanning workers
// may each hold their own instance and run fully in parallel.
type Channel struct {
	conn *net.UDPConn
}

// NewChannel opens a datagram socket on an ephemeral local port.
func NewChannel() (*Channel, error) {
	conn, err := net.ListenUDP(`udp4`, &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf(`opening datagram socket: %w`, err)
	}
	return &Channel{conn: conn}, nil
}

// LocalAddr returns the bound local address
func (c *Channel) LocalAddr() *net.UDPAddr {
	return c.conn.LocalAddr().(*net.UDPAddr)
}

// SendTo transmits one packet to the supplied address, independent of any
// stream session.
func (c *Channel) SendTo(addr *net.UDPAddr, pkt *Packet) error {
	buf, err := pkt.Encode()
	if err != nil {
		return err
	}
	if _, err := c.conn.WriteToUDP(buf, addr); err != nil {
		return fmt.Errorf(`sending datagram to %v: %w`, addr, err)
	}
	return nil
}

// Receive waits up to timeout for one reply.  A quiet deadline returns
// common.ErrNoReply, which is an expected, non-fatal outcome used heavily by
// discovery.
func (c *Channel) Receive(timeout time.Duration) (*Packet, *net.UDPAddr, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, err
	}
	buf := make([]byte, common.MaxDatagramSize)
	n, addr, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, nil, common.ErrNoReply
		}
		return nil, nil, err
	}
	pkt, err := Decode(buf[:n])
	if err != nil {
		return nil, nil, err
	}
	return pkt, addr, nil
}

// Close releases the socket; subsequent receives fail.
func (c *Channel) Close() error {
	return c.conn.Close()
}
