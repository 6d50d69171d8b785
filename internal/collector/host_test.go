package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func writeProcStat(dir string, user, system, idle, iowait int) {
	content := fmt.Sprintf(`cpu  %d 0 %d %d %d 0 0 0 0 0
cpu0 %d 0 %d %d %d 0 0 0 0 0
ctxt 100
btime 1700000000
processes 10
procs_running 1
procs_blocked 0
`, user, system, idle, iowait, user, system, idle, iowait)
	Expect(os.WriteFile(filepath.Join(dir, "stat"), []byte(content), 0o644)).To(Succeed())
}

func writeMeminfo(dir string, totalKB, availableKB int) {
	content := fmt.Sprintf("MemTotal:       %d kB\nMemFree:        %d kB\nMemAvailable:   %d kB\n",
		totalKB, availableKB, availableKB)
	Expect(os.WriteFile(filepath.Join(dir, "meminfo"), []byte(content), 0o644)).To(Succeed())
}

var _ = Describe("HostSource", func() {
	var (
		dir string
		src *HostSource
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		writeProcStat(dir, 100, 100, 800, 0)
		writeMeminfo(dir, 1000, 250)

		var err error
		src, err = NewHostSource(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should report memory utilization from MemTotal and MemAvailable", func() {
		reading, err := src.Collect(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(reading.MemoryPercent).To(HaveValue(BeNumerically("~", 75.0, 1e-9)))
	})

	It("should leave cpu unavailable until a baseline exists", func() {
		reading, err := src.Collect(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(reading.CPUPercent).To(BeNil())
	})

	It("should compute cpu utilization from the delta since Prime", func() {
		Expect(src.Prime(ctx)).To(Succeed())
		writeProcStat(dir, 400, 200, 1300, 100)

		reading, err := src.Collect(ctx)
		Expect(err).NotTo(HaveOccurred())
		// busy: (400+200)-(100+100) = 400, total: 2000-1000 = 1000
		Expect(reading.CPUPercent).To(HaveValue(BeNumerically("~", 40.0, 1e-9)))
	})

	It("should use the previous tick as the next baseline", func() {
		Expect(src.Prime(ctx)).To(Succeed())
		writeProcStat(dir, 400, 200, 1300, 100)
		_, err := src.Collect(ctx)
		Expect(err).NotTo(HaveOccurred())

		writeProcStat(dir, 400, 200, 2300, 100)
		reading, err := src.Collect(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(reading.CPUPercent).To(HaveValue(BeNumerically("~", 0.0, 1e-9)))
	})

	It("should keep the cpu reading when meminfo cannot be read", func() {
		Expect(src.Prime(ctx)).To(Succeed())
		writeProcStat(dir, 200, 100, 900, 0)
		Expect(os.Remove(filepath.Join(dir, "meminfo"))).To(Succeed())

		reading, err := src.Collect(ctx)
		Expect(err).To(HaveOccurred())
		Expect(reading.MemoryPercent).To(BeNil())
		Expect(reading.CPUPercent).To(HaveValue(BeNumerically("~", 50.0, 1e-9)))
	})
})
