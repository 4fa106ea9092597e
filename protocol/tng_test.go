package protocol_test

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/telelumen/golum/common"
	"github.com/telelumen/golum/mocks"
	"github.com/telelumen/golum/protocol"
	"github.com/telelumen/golum/protocol/tng/packet"
)

// probeResponder simulates the firmware's datagram endpoint: it answers
// serial-number probes with the configured serial, echoing the sequence tag
type probeResponder struct {
	conn   *net.UDPConn
	serial string
}

func newProbeResponder(serial string) *probeResponder {
	conn, err := net.ListenUDP(`udp4`, &net.UDPAddr{IP: net.ParseIP(`127.0.0.1`)})
	Expect(err).NotTo(HaveOccurred())
	r := &probeResponder{conn: conn, serial: serial}
	go r.serve()
	return r
}

func (r *probeResponder) port() int {
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

func (r *probeResponder) serve() {
	buf := make([]byte, common.MaxDatagramSize)
	for {
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		probe, err := packet.Decode(buf[:n])
		if err != nil || string(probe.Payload) != `NS` {
			continue
		}
		reply := &packet.Packet{Tag: probe.Tag, Seq: probe.Seq, Payload: []byte(r.serial + "\r\n00;")}
		out, err := reply.Encode()
		if err != nil {
			continue
		}
		r.conn.WriteToUDP(out, from)
	}
}

func (r *probeResponder) close() {
	r.conn.Close()
}

func discoveryConfig(responder *probeResponder) *common.Config {
	config := common.DefaultConfig()
	config.Subnets = []string{`127.0.0.`}
	config.ScanHostMin = 1
	config.ScanHostMax = 1
	config.DatagramPort = responder.port()
	config.ProbeTimeout = 200 * time.Millisecond
	config.DiscoveryTimeout = 2 * time.Second
	return config
}

var _ = Describe("TNG", func() {
	var (
		tng        *protocol.TNG
		mockClient *mocks.Client
		ctx        = context.Background()
	)

	AfterEach(func() {
		tng.Close()
	})

	Describe("Discover", func() {
		It("should report a probed device to the client", func() {
			responder := newProbeResponder(`84000123`)
			defer responder.close()

			mockClient = new(mocks.Client)
			mockClient.On(`AddDevice`, mock.Anything).Return(nil)

			tng = protocol.NewTNG(discoveryConfig(responder))
			tng.SetClient(mockClient)
			Expect(tng.Discover(ctx)).To(Succeed())

			mockClient.AssertNumberOfCalls(GinkgoT(), `AddDevice`, 1)
			dev := mockClient.Calls[0].Arguments.Get(0).(common.Device)
			Expect(dev.Serial()).To(Equal(`84000123`))
			Expect(dev.Address()).To(Equal(`127.0.0.1`))
		})

		It("should count a device once across repeated passes", func() {
			responder := newProbeResponder(`84000123`)
			defer responder.close()

			mockClient = new(mocks.Client)
			mockClient.On(`AddDevice`, mock.Anything).Return(nil)

			tng = protocol.NewTNG(discoveryConfig(responder))
			tng.SetClient(mockClient)
			Expect(tng.Discover(ctx)).To(Succeed())
			Expect(tng.Discover(ctx)).To(Succeed())

			mockClient.AssertNumberOfCalls(GinkgoT(), `AddDevice`, 1)
		})

		It("should finish a quiet subnet within its budget", func() {
			responder := newProbeResponder(`84000123`)
			responder.close()

			mockClient = new(mocks.Client)
			config := discoveryConfig(responder)
			tng = protocol.NewTNG(config)
			tng.SetClient(mockClient)

			start := time.Now()
			Expect(tng.Discover(ctx)).To(Succeed())
			Expect(time.Since(start)).To(BeNumerically(`<`, config.DiscoveryTimeout))
			mockClient.AssertNotCalled(GinkgoT(), `AddDevice`, mock.Anything)
		})

		It("should stop scanning when the context is cancelled", func() {
			responder := newProbeResponder(`84000123`)
			defer responder.close()

			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			tng = protocol.NewTNG(discoveryConfig(responder))
			Expect(tng.Discover(cancelled)).To(MatchError(context.Canceled))
		})

		It("should fail when no candidate subnets are configured", func() {
			responder := newProbeResponder(`84000123`)
			defer responder.close()

			config := discoveryConfig(responder)
			config.Subnets = nil
			tng = protocol.NewTNG(config)

			Expect(tng.Discover(ctx)).To(MatchError(ContainSubstring(`no candidate subnets`)))
		})

		It("should refuse discovery after close", func() {
			responder := newProbeResponder(`84000123`)
			defer responder.close()

			tng = protocol.NewTNG(discoveryConfig(responder))
			Expect(tng.Close()).To(Succeed())
			Expect(tng.Discover(ctx)).To(MatchError(common.ErrClosed))
		})
	})

	Describe("ConnectToAddress", func() {
		It("should create and connect a device for a direct address", func() {
			listener, err := net.Listen(`tcp`, `127.0.0.1:0`)
			Expect(err).NotTo(HaveOccurred())
			defer listener.Close()
			go serveIdentity(listener)

			responder := newProbeResponder(`84000123`)
			defer responder.close()
			config := discoveryConfig(responder)
			config.CommandPort = listener.Addr().(*net.TCPAddr).Port
			config.CommandTimeout = time.Second

			mockClient = new(mocks.Client)
			mockClient.On(`AddDevice`, mock.Anything).Return(nil)
			tng = protocol.NewTNG(config)
			tng.SetClient(mockClient)

			dev, err := tng.ConnectToAddress(ctx, `127.0.0.1`)
			Expect(err).NotTo(HaveOccurred())
			Expect(dev.State()).To(Equal(common.Connected))
			Expect(dev.Serial()).To(Equal(`TL-000123`))
			mockClient.AssertNumberOfCalls(GinkgoT(), `AddDevice`, 1)
		})
	})
})

// serveIdentity answers the identity command set of a full-featured device
func serveIdentity(listener net.Listener) {
	replies := map[string]string{
		`VER`:      "3.1.4\r\n00;",
		`NS`:       "84000123\r\n00;",
		`ID`:       "Octa: 24 channel\r\n00;",
		`GETSERNO`: "TL-000123\r\n00;",
		`GETIP`:    "192.168.2.50 00:11:22:33:44:55\r\n00;",
	}
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			reader := bufio.NewReader(conn)
			for {
				command, err := reader.ReadString('\r')
				if err != nil {
					return
				}
				command = strings.TrimSpace(strings.TrimSuffix(command, "\r"))
				reply, ok := replies[command]
				if !ok {
					reply = `99;`
				}
				if _, err := conn.Write([]byte(reply)); err != nil {
					return
				}
			}
		}()
	}
}
