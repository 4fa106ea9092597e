package device_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/telelumen/golum/common"
	"github.com/telelumen/golum/protocol/tng/device"
)

func testConfig(fake *fakeLuminaire) *common.Config {
	config := common.DefaultConfig()
	config.CommandPort = fake.port()
	config.ConnectTimeout = time.Second
	config.CommandTimeout = 200 * time.Millisecond
	config.CommandRetries = 3
	config.RetryDelay = 10 * time.Millisecond
	config.BlockRetries = 3
	return config
}

var _ = Describe("Luminaire", func() {
	var (
		fake *fakeLuminaire
		lum  *device.Luminaire
		ctx  = context.Background()
	)

	BeforeEach(func() {
		fake = newFakeLuminaire()
	})

	AfterEach(func() {
		if lum != nil {
			lum.Close()
			lum = nil
		}
		fake.close()
	})

	Describe("Connect", func() {
		It("should populate identity from a full-featured device", func() {
			fake.identify()
			lum = device.New(`127.0.0.1`, ``, testConfig(fake))

			Expect(lum.Connect(ctx)).To(Succeed())
			Expect(lum.State()).To(Equal(common.Connected))
			Expect(lum.FirmwareVersion()).To(Equal(`3.1.4`))
			Expect(lum.ElectronicSerial()).To(Equal(`84000123`))
			Expect(lum.Serial()).To(Equal(`TL-000123`))
			Expect(lum.Type()).To(Equal(common.TypeOcta))
			Expect(lum.MAC()).To(Equal(`00:11:22:33:44:55`))
		})

		It("should recognize a legacy device by its telemetry dump", func() {
			fake.identifyLegacy()
			lum = device.New(`127.0.0.1`, ``, testConfig(fake))

			Expect(lum.Connect(ctx)).To(Succeed())
			Expect(lum.Type()).To(Equal(common.TypeLightReplicator))
			Expect(lum.Type().Capability()).To(Equal(common.Legacy))
			// Legacy devices have no separate luminaire serial
			Expect(lum.Serial()).To(Equal(`LR000456`))
			Expect(fake.countPrefix(`GETSERNO`)).To(BeZero())
		})

		It("should reject a device whose serial contradicts discovery", func() {
			fake.identify()
			lum = device.New(`127.0.0.1`, `84999999`, testConfig(fake))

			err := lum.Connect(ctx)
			Expect(err).To(HaveOccurred())
			Expect(lum.State()).To(Equal(common.ConnectionError))
		})

		It("should refuse a second live session", func() {
			fake.identify()
			lum = device.New(`127.0.0.1`, ``, testConfig(fake))

			Expect(lum.Connect(ctx)).To(Succeed())
			Expect(lum.Connect(ctx)).To(MatchError(common.ErrAlreadyConnected))
		})

		It("should allow reconnecting after a disconnect", func() {
			fake.identify()
			lum = device.New(`127.0.0.1`, ``, testConfig(fake))

			Expect(lum.Connect(ctx)).To(Succeed())
			Expect(lum.Disconnect()).To(Succeed())
			Expect(lum.State()).To(Equal(common.Disconnected))
			Expect(lum.Connect(ctx)).To(Succeed())
		})

		It("should publish connection state transitions", func() {
			fake.identify()
			lum = device.New(`127.0.0.1`, ``, testConfig(fake))
			sub, err := lum.NewSubscription()
			Expect(err).NotTo(HaveOccurred())

			states := make(chan common.ConnectionState, 8)
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for event := range sub.Events() {
					if update, ok := event.(common.EventUpdateConnectionState); ok {
						states <- update.State
						if update.State == common.Connected {
							return
						}
					}
				}
			}()

			Expect(lum.Connect(ctx)).To(Succeed())
			wg.Wait()
			Expect(<-states).To(Equal(common.Connecting))
			Expect(<-states).To(Equal(common.Connected))
		})
	})

	Describe("command execution", func() {
		BeforeEach(func() {
			fake.identify()
			lum = device.New(`127.0.0.1`, ``, testConfig(fake))
			Expect(lum.Connect(ctx)).To(Succeed())
		})

		It("should fail commands without a session", func() {
			Expect(lum.Disconnect()).To(Succeed())
			_, err := lum.Temperature()
			Expect(err).To(MatchError(common.ErrNotConnected))
		})

		It("should surface a non-zero status as a command error without retrying", func() {
			fake.on(`TEMPC`, func(string) string { return `17;` })

			_, err := lum.Temperature()
			var cmdErr *common.CommandError
			Expect(err).To(BeAssignableToTypeOf(cmdErr))
			Expect(err.(*common.CommandError).Status).To(Equal(17))
			Expect(fake.countPrefix(`TEMPC`)).To(Equal(1))
			Expect(lum.LastStatus()).To(Equal(17))
			// The session survives a command failure
			Expect(lum.State()).To(Equal(common.Connected))
		})

		It("should retry an idempotent command after a quiet response", func() {
			quiet := true
			fake.on(`UPTIME`, func(string) string {
				if quiet {
					quiet = false
					return ``
				}
				return "4 days\r\n00;"
			})

			uptime, err := lum.Uptime()
			Expect(err).NotTo(HaveOccurred())
			Expect(uptime).To(Equal(`4 days`))
			Expect(fake.countPrefix(`UPTIME`)).To(Equal(2))
		})

		It("should tear the session down after exhausting the retry budget", func() {
			fake.on(`UPTIME`, func(string) string { return `` })

			_, err := lum.Uptime()
			Expect(err).To(MatchError(common.ErrResponseTimeout))
			Expect(fake.countPrefix(`UPTIME`)).To(Equal(3))
			Expect(lum.State()).To(Equal(common.ConnectionError))

			// Subsequent use fails fast rather than hanging
			start := time.Now()
			_, err = lum.Uptime()
			Expect(err).To(MatchError(common.ErrNotConnected))
			Expect(time.Since(start)).To(BeNumerically(`<`, 50*time.Millisecond))
		})

		It("should serialize concurrent commands over the single session", func() {
			fake.reply(`UPTIME`, `4 days`)
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := lum.Uptime()
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()
			Expect(fake.countPrefix(`UPTIME`)).To(Equal(8))
		})
	})

	Describe("telemetry and storage queries", func() {
		BeforeEach(func() {
			fake.identify()
			lum = device.New(`127.0.0.1`, ``, testConfig(fake))
			Expect(lum.Connect(ctx)).To(Succeed())
		})

		It("should parse the temperature reply", func() {
			fake.reply(`TEMPC`, `Temp(C): 41.3`)
			Expect(lum.Temperature()).To(Equal(41.3))
		})

		It("should parse the channel map reply", func() {
			fake.reply(`MAP-GET`, `Channel map: 0,1,2,3`)
			Expect(lum.ChannelMap()).To(Equal(`0,1,2,3`))
		})

		It("should parse the directory listing", func() {
			fake.reply(`DIR`, "Directory of /\r\nsunrise.tlum\r\ndemo.tlum\r\n120 blocks used\r\n1909 blocks free")
			Expect(lum.Directory()).To(Equal([]string{`sunrise.tlum`, `demo.tlum`}))
		})

		It("should parse the used block count from the directory footer", func() {
			fake.reply(`DIR`, "Directory of /\r\nsunrise.tlum\r\n120 blocks used")
			Expect(lum.UsedBlocks()).To(Equal(120))
		})

		It("should parse the stored file checksum", func() {
			fake.reply(`LRC`, `LRC:DEADBEEF`)
			Expect(lum.FileLRC(`sunrise.tlum`)).To(Equal(uint32(0xDEADBEEF)))
			Expect(fake.received()).To(ContainElement(`LRC sunrise.tlum`))
		})
	})

	Describe("playback", func() {
		BeforeEach(func() {
			fake.identify()
			fake.reply(`PLAY`, ``)
			fake.reply(`PAUSE`, ``)
			fake.reply(`RESUME`, ``)
			fake.reply(`STOP`, ``)
			lum = device.New(`127.0.0.1`, ``, testConfig(fake))
			Expect(lum.Connect(ctx)).To(Succeed())
		})

		It("should name the script in the play command", func() {
			Expect(lum.Play(`sunrise.tlum`, false)).To(Succeed())
			Expect(fake.received()).To(ContainElement(`PLAY sunrise.tlum`))
		})

		It("should defer playback when asked to start paused", func() {
			Expect(lum.Play(`sunrise.tlum`, true)).To(Succeed())
			Expect(fake.received()).To(ContainElement(`PLAYPAUSED sunrise.tlum`))
		})

		It("should resume the current script with a bare play", func() {
			Expect(lum.Play(``, false)).To(Succeed())
			Expect(fake.received()).To(ContainElement(`PLAY`))
		})

		It("should drive the pause, resume and stop commands", func() {
			Expect(lum.Pause()).To(Succeed())
			Expect(lum.Resume()).To(Succeed())
			Expect(lum.Stop()).To(Succeed())
			Expect(fake.received()).To(ContainElement(`PAUSE`))
			Expect(fake.received()).To(ContainElement(`RESUME`))
			Expect(fake.received()).To(ContainElement(`STOP`))
		})
	})

	Describe("legacy dialect", func() {
		BeforeEach(func() {
			fake.identifyLegacy()
			lum = device.New(`127.0.0.1`, ``, testConfig(fake))
			Expect(lum.Connect(ctx)).To(Succeed())
		})

		It("should refuse unsupported telemetry", func() {
			_, err := lum.Temperature()
			Expect(err).To(MatchError(common.ErrUnsupported))
			_, err = lum.Uptime()
			Expect(err).To(MatchError(common.ErrUnsupported))
			_, err = lum.FileLRC(`any`)
			Expect(err).To(MatchError(common.ErrUnsupported))
		})

		It("should use the legacy channel map command", func() {
			fake.reply(`MR`, `Channel map: 7,8,9`)
			Expect(lum.ChannelMap()).To(Equal(`7,8,9`))
			Expect(fake.received()).To(ContainElement(`MR`))
		})

		It("should parse backquoted directory entries", func() {
			fake.reply(`DIR`, "pattern1`120\r\npattern2`64")
			Expect(lum.Directory()).To(Equal([]string{`pattern1`, `pattern2`}))
		})

		It("should use the legacy dark command", func() {
			fake.reply(`B`, ``)
			Expect(lum.Dark()).To(Succeed())
			Expect(fake.received()).To(ContainElement(`B`))
		})

		It("should map playback onto the legacy command set", func() {
			fake.reply(`SETPAT=`, ``)
			fake.reply(`Q5`, ``)
			fake.reply(`Q2`, ``)
			fake.reply(`Q8`, ``)
			fake.reply(`B`, ``)

			Expect(lum.Play(`pattern1`, false)).To(Succeed())
			Expect(lum.Pause()).To(Succeed())
			Expect(lum.Resume()).To(Succeed())
			Expect(lum.Stop()).To(Succeed())

			Expect(fake.received()).To(ContainElement(`SETPAT=pattern1`))
			Expect(fake.received()).To(ContainElement(`Q5`))
			Expect(fake.received()).To(ContainElement(`Q2`))
			Expect(fake.received()).To(ContainElement(`Q8`))
			// Legacy stop darkens the channels afterwards
			Expect(fake.received()).To(ContainElement(`B`))
		})

		It("should refuse deferred playback", func() {
			Expect(lum.Play(`pattern1`, true)).To(MatchError(common.ErrUnsupported))
		})
	})

	Describe("Reset", func() {
		It("should send the reset without awaiting a reply and drop the session", func() {
			fake.identify()
			lum = device.New(`127.0.0.1`, ``, testConfig(fake))
			Expect(lum.Connect(ctx)).To(Succeed())

			Expect(lum.Reset()).To(Succeed())
			Expect(lum.State()).To(Equal(common.Disconnected))
			Eventually(func() []string { return fake.received() }).Should(ContainElement(`RESET`))
		})
	})
})
