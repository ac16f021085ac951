package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ctxswitch/config"
)

var _ = Describe("DeviceConfig", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("should have valid defaults", func() {
		c := config.DefaultDeviceConfig()

		Expect(c.Validate()).To(Succeed())
		Expect(c.GMEMSize).To(Equal(uint32(256 * 1024)))
		Expect(c.SupportsBinBase()).To(BeTrue())
	})

	It("should not support bin base on a220", func() {
		c := config.DefaultDeviceConfig()
		c.Model = config.ModelA220

		Expect(c.SupportsBinBase()).To(BeFalse())
	})

	It("should round trip through a file", func() {
		path := filepath.Join(dir, "device.json")
		c := config.DefaultDeviceConfig()
		c.GMEMSize = 128 * 1024
		c.Model = config.ModelA220

		Expect(c.SaveConfig(path)).To(Succeed())

		loaded, err := config.LoadConfig(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(c))
	})

	It("should keep defaults for missing fields", func() {
		path := filepath.Join(dir, "partial.json")
		Expect(os.WriteFile(path, []byte(`{"gmem_size": 65536}`), 0644)).To(Succeed())

		loaded, err := config.LoadConfig(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.GMEMSize).To(Equal(uint32(65536)))
		Expect(loaded.RingSize).To(Equal(config.DefaultDeviceConfig().RingSize))
	})

	It("should report missing and malformed files", func() {
		_, err := config.LoadConfig(filepath.Join(dir, "nope.json"))
		Expect(err).To(HaveOccurred())

		path := filepath.Join(dir, "bad.json")
		Expect(os.WriteFile(path, []byte(`{`), 0644)).To(Succeed())
		_, err = config.LoadConfig(path)
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("validation failures",
		func(mutate func(c *config.DeviceConfig)) {
			c := config.DefaultDeviceConfig()
			mutate(c)
			Expect(c.Validate()).NotTo(Succeed())
		},
		Entry("unknown model", func(c *config.DeviceConfig) { c.Model = "a330" }),
		Entry("zero gmem", func(c *config.DeviceConfig) { c.GMEMSize = 0 }),
		Entry("gmem too large", func(c *config.DeviceConfig) { c.GMEMSize = 0xFFFFFFFF }),
		Entry("odd ring", func(c *config.DeviceConfig) { c.RingSize = 6 }),
		Entry("zero memory", func(c *config.DeviceConfig) { c.MemSize = 0 }),
		Entry("unaligned base", func(c *config.DeviceConfig) { c.MemBase = 0x100 }),
		Entry("window overflow", func(c *config.DeviceConfig) {
			c.MemBase = 0xFFFF0000
			c.MemSize = 0x20000
		}),
	)

	Describe("LoadEnv", func() {
		It("should apply dotenv overrides", func() {
			path := filepath.Join(dir, ".env")
			Expect(os.WriteFile(path,
				[]byte("CTXSWITCH_MODEL=a220\nCTXSWITCH_GMEM_SIZE=0x20000\n"), 0644)).
				To(Succeed())

			c := config.DefaultDeviceConfig()
			Expect(c.LoadEnv(path)).To(Succeed())

			Expect(c.Model).To(Equal(config.ModelA220))
			Expect(c.GMEMSize).To(Equal(uint32(0x20000)))
		})

		It("should prefer the process environment", func() {
			path := filepath.Join(dir, ".env")
			Expect(os.WriteFile(path, []byte("CTXSWITCH_RING_SIZE=4096\n"), 0644)).
				To(Succeed())
			GinkgoT().Setenv(config.EnvRingSize, "8192")

			c := config.DefaultDeviceConfig()
			Expect(c.LoadEnv(path)).To(Succeed())

			Expect(c.RingSize).To(Equal(uint32(8192)))
		})

		It("should reject malformed numbers", func() {
			GinkgoT().Setenv(config.EnvMemSize, "lots")

			c := config.DefaultDeviceConfig()
			Expect(c.LoadEnv()).NotTo(Succeed())
		})
	})
})
