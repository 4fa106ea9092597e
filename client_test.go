package golum_test

import (
	"context"
	"errors"
	"time"

	. "github.com/telelumen/golum"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/format"

	"github.com/telelumen/golum/common"
	"github.com/telelumen/golum/mocks"
	"github.com/stretchr/testify/mock"
)

func init() {
	format.UseStringerRepresentation = false
}

var _ = Describe("Golum", func() {
	var (
		client             *Client
		clientSubscription *common.Subscription
		timeout            = 200 * time.Millisecond

		mockProtocol *mocks.Protocol
		mockDevice   *mocks.Device

		deviceSerial        = `84000123`
		deviceUnknownSerial = `84999999`
		deviceAddress       = `192.168.2.50`
	)

	It("should start discovery through the protocol on NewClient", func() {
		var err error
		mockProtocol = new(mocks.Protocol)
		mockProtocol.On(`SetClient`, mock.Anything).Return()
		mockProtocol.On(`Discover`, mock.Anything).Return(nil)

		client, err = NewClient(mockProtocol)
		Expect(client).To(BeAssignableToTypeOf(new(Client)))
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() int {
			count := 0
			for _, call := range mockProtocol.Calls {
				if call.Method == `Discover` {
					count++
				}
			}
			return count
		}).Should(BeNumerically(`>=`, 1))
	})

	Describe("Client", func() {
		BeforeEach(func() {
			mockProtocol = new(mocks.Protocol)
			mockProtocol.On(`SetClient`, mock.Anything).Return()
			mockProtocol.On(`Discover`, mock.Anything).Return(nil)
			client, _ = NewClient(mockProtocol)
			client.SetTimeout(timeout)
			client.SetRetryInterval(10 * time.Millisecond)
			clientSubscription, _ = client.NewSubscription()

			mockDevice = new(mocks.Device)
		})

		AfterEach(func() {
			mockProtocol.On(`Close`).Return(nil)
			_ = client.Close()
		})

		It("should update the timeout", func() {
			t := 5 * time.Second
			client.SetTimeout(t)
			Expect(client.GetTimeout()).To(Equal(&t))
		})

		It("should update the retry interval", func() {
			interval := 5 * time.Millisecond
			client.SetRetryInterval(interval)
			Expect(client.GetRetryInterval()).To(Equal(&interval))
		})

		It("should set the retry to half the timeout if it's >= the timeout", func() {
			timeout := 10 * time.Second
			halfTimeout := timeout / 2
			client.SetTimeout(timeout)
			interval := 10 * time.Second
			client.SetRetryInterval(interval)
			Expect(client.GetRetryInterval()).To(Equal(&halfTimeout))
		})

		It("should update the discovery interval", func() {
			interval := 5 * time.Second
			Expect(client.SetDiscoveryInterval(interval)).To(Succeed())
			Expect(client.GetDiscoveryInterval()).To(Equal(interval))
		})

		It("should update the discovery interval when it's non-zero", func() {
			interval := 5 * time.Second
			Expect(client.SetDiscoveryInterval(interval)).To(Succeed())
			interval = 10 * time.Second
			Expect(client.SetDiscoveryInterval(interval)).To(Succeed())
		})

		It("should perform discovery on the interval", func() {
			Expect(client.SetDiscoveryInterval(50 * time.Millisecond)).To(Succeed())
			Eventually(func() int {
				count := 0
				for _, call := range mockProtocol.Calls {
					if call.Method == `Discover` {
						count++
					}
				}
				return count
			}, time.Second).Should(BeNumerically(`>=`, 3))
		})

		It("should return an error from GetDevices when it knows no devices", func() {
			devices, err := client.GetDevices()
			Expect(len(devices)).To(Equal(0))
			Expect(err).To(Equal(common.ErrNotFound))
		})

		It("should know an added device", func() {
			mockDevice.On(`Serial`).Return(deviceSerial)
			Expect(client.AddDevice(mockDevice)).To(Succeed())

			devices, err := client.GetDevices()
			Expect(err).NotTo(HaveOccurred())
			Expect(devices).To(HaveLen(1))
		})

		It("should reject a duplicate device", func() {
			mockDevice.On(`Serial`).Return(deviceSerial)
			Expect(client.AddDevice(mockDevice)).To(Succeed())
			Expect(client.AddDevice(mockDevice)).To(Equal(common.ErrDuplicate))
		})

		It("should find a device by serial", func() {
			mockDevice.On(`Serial`).Return(deviceSerial)
			Expect(client.AddDevice(mockDevice)).To(Succeed())

			dev, err := client.GetDeviceBySerial(deviceSerial)
			Expect(err).NotTo(HaveOccurred())
			Expect(dev.Serial()).To(Equal(deviceSerial))
		})

		It("should time out looking for an unknown serial", func() {
			mockDevice.On(`Serial`).Return(deviceSerial)
			Expect(client.AddDevice(mockDevice)).To(Succeed())

			start := time.Now()
			_, err := client.GetDeviceBySerial(deviceUnknownSerial)
			Expect(err).To(Equal(common.ErrNotFound))
			Expect(time.Since(start)).To(BeNumerically(`>=`, timeout))
		})

		It("should wait for discovery to deliver a late device", func() {
			mockDevice.On(`Serial`).Return(deviceSerial)
			go func() {
				time.Sleep(50 * time.Millisecond)
				_ = client.AddDevice(mockDevice)
			}()

			dev, err := client.GetDeviceBySerial(deviceSerial)
			Expect(err).NotTo(HaveOccurred())
			Expect(dev.Serial()).To(Equal(deviceSerial))
		})

		It("should find a device by address", func() {
			mockDevice.On(`Serial`).Return(deviceSerial)
			mockDevice.On(`Address`).Return(deviceAddress)
			Expect(client.AddDevice(mockDevice)).To(Succeed())

			dev, err := client.GetDeviceByAddress(deviceAddress)
			Expect(err).NotTo(HaveOccurred())
			Expect(dev.Serial()).To(Equal(deviceSerial))
		})

		It("should forget a removed device", func() {
			mockDevice.On(`Serial`).Return(deviceSerial)
			Expect(client.AddDevice(mockDevice)).To(Succeed())
			Expect(client.RemoveDeviceBySerial(deviceSerial)).To(Succeed())
			_, err := client.GetDeviceBySerial(deviceSerial)
			Expect(err).To(Equal(common.ErrNotFound))
		})

		It("should error removing an unknown device", func() {
			Expect(client.RemoveDeviceBySerial(deviceUnknownSerial)).To(Equal(common.ErrNotFound))
		})

		It("should publish an EventNewDevice on adding a device", func() {
			mockDevice.On(`Serial`).Return(deviceSerial)

			ch := make(chan interface{})
			go func() {
				ch <- <-clientSubscription.Events()
			}()
			Expect(client.AddDevice(mockDevice)).To(Succeed())
			event := <-ch
			Expect(event).To(BeAssignableToTypeOf(common.EventNewDevice{}))
			Expect(event.(common.EventNewDevice).Device.Serial()).To(Equal(deviceSerial))
		})

		It("should publish an EventExpiredDevice on removing a device", func() {
			mockDevice.On(`Serial`).Return(deviceSerial)
			Expect(client.AddDevice(mockDevice)).To(Succeed())

			ch := make(chan interface{})
			go func() {
				for event := range clientSubscription.Events() {
					if _, ok := event.(common.EventExpiredDevice); ok {
						ch <- event
						return
					}
				}
			}()
			Expect(client.RemoveDeviceBySerial(deviceSerial)).To(Succeed())
			Expect(<-ch).To(BeAssignableToTypeOf(common.EventExpiredDevice{}))
		})

		It("should pass direct connections through to the protocol", func() {
			mockProtocol.On(`ConnectToAddress`, mock.Anything, deviceAddress).Return(nil, errors.New(`dial failure`))
			_, err := client.ConnectToAddress(context.Background(), deviceAddress)
			Expect(err).To(MatchError(`dial failure`))
		})

		It("should close successfully", func() {
			mockProtocol.On(`Close`).Return(nil)
			Expect(client.Close()).To(Succeed())
		})

		It("should return an error on failed close", func() {
			mockProtocol.On(`Close`).Return(errors.New(`close failure`))
			Expect(client.Close()).NotTo(Succeed())
		})

		It("should return an error on double-close", func() {
			mockProtocol.On(`Close`).Return(nil)
			Expect(client.Close()).To(Succeed())
			Expect(client.Close()).To(Equal(common.ErrClosed))
		})
	})
})
