/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package e2e

import (
	"encoding/csv"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	stressv1alpha1 "github.com/llm-d/llm-d-stress-controller/api/v1alpha1"
	"github.com/llm-d/llm-d-stress-controller/internal/sink"
	"github.com/llm-d/llm-d-stress-controller/test/utils"
)

// sessionArgs returns a short session against the synthetic worker. CPU and
// memory thresholds are disabled in effect so the outcome only depends on FPS.
func sessionArgs(outputDir string, extra ...string) []string {
	args := []string{
		"--model", "synthetic.onnx",
		"--source", "file:///dev/zero",
		"--worker-command", workerBin + " --model {model} --source {source} --duration {duration} --fps 20 --work 100 --report-interval 100ms",
		"--batch-duration", "2s",
		"--sample-interval", "500ms",
		"--warmup", "500ms",
		"--grace-period", "2s",
		"--cpu-threshold", "100",
		"--mem-threshold", "100",
		"--accelerator", "none",
		"--output-dir", outputDir,
	}
	return append(args, extra...)
}

func readCSV(path string) [][]string {
	f, err := os.Open(path)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	Expect(err).NotTo(HaveOccurred())
	return rows
}

var _ = Describe("stressctl", Ordered, func() {
	It("should ramp up to the configured maximum when every batch passes", func() {
		out := GinkgoT().TempDir()
		cmd := exec.Command(stressctlBin, sessionArgs(out, "--fps-threshold", "5", "--max-instances", "3")...)
		output, err := utils.Run(cmd)
		Expect(err).NotTo(HaveOccurred())
		Expect(output).To(ContainSubstring("maxSustainableInstances=3 totalBatchesRun=3 terminationReason=reached-max-instances"))

		By("checking the batch table")
		rows := readCSV(filepath.Join(out, sink.BatchesFile))
		Expect(rows).To(HaveLen(4))
		for i, row := range rows[1:] {
			Expect(row[0]).To(Equal([]string{"1", "2", "3"}[i]))
			Expect(row[6]).To(Equal("pass"))
		}

		By("checking the instance table")
		Expect(readCSV(filepath.Join(out, sink.InstancesFile))).To(HaveLen(1 + 1 + 2 + 3))

		By("checking the run report")
		run, err := sink.ReadReport(filepath.Join(out, sink.ReportFile))
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Status.MaxSustainableInstances).To(BeEquivalentTo(3))
		Expect(run.Status.TotalBatchesRun).To(BeEquivalentTo(3))
		Expect(run.Status.Batches).To(HaveLen(3))
		Expect(run.IsConverged()).To(BeTrue())
		Expect(run.GetCondition(stressv1alpha1.TypeConverged).Reason).To(Equal(stressv1alpha1.ReasonReachedMaxInstances))

		By("checking the per-instance logs")
		logs, err := filepath.Glob(filepath.Join(out, "logs", "batch_*.log"))
		Expect(err).NotTo(HaveOccurred())
		Expect(logs).To(HaveLen(6))
	})

	It("should stop at the first batch below the throughput threshold", func() {
		out := GinkgoT().TempDir()
		cmd := exec.Command(stressctlBin, sessionArgs(out, "--fps-threshold", "1000", "--max-instances", "4")...)
		output, err := utils.Run(cmd)
		Expect(err).NotTo(HaveOccurred())
		Expect(output).To(ContainSubstring("maxSustainableInstances=0 totalBatchesRun=1 terminationReason=threshold-exceeded"))

		rows := readCSV(filepath.Join(out, sink.BatchesFile))
		Expect(rows).To(HaveLen(2))
		Expect(rows[1][6]).To(Equal("fail"))
		Expect(rows[1][8]).To(ContainSubstring("fps"))
	})

	It("should fail a batch with a crashed instance when instance failures count", func() {
		out := GinkgoT().TempDir()
		args := sessionArgs(out, "--fps-threshold", "5", "--max-instances", "2", "--fail-on-instance-failure")
		for i, a := range args {
			if a == "--worker-command" {
				args[i+1] += " --crash-after 1s"
			}
		}
		output, err := utils.Run(exec.Command(stressctlBin, args...))
		Expect(err).NotTo(HaveOccurred())
		Expect(output).To(ContainSubstring("totalBatchesRun=1 terminationReason=threshold-exceeded"))

		rows := readCSV(filepath.Join(out, sink.InstancesFile))
		Expect(rows).To(HaveLen(2))
		Expect(rows[1][2]).To(Equal("crashed"))
	})

	It("should reject an invalid configuration with a usage exit code", func() {
		out := GinkgoT().TempDir()
		cmd := exec.Command(stressctlBin, sessionArgs(out, "--cpu-threshold", "150")...)
		_, err := utils.Run(cmd)
		Expect(err).To(HaveOccurred())
		Expect(utils.ExitCode(err)).To(Equal(2))
	})

	It("should record an externally cancelled session", func() {
		out := GinkgoT().TempDir()
		cmd := exec.Command(stressctlBin, sessionArgs(out, "--fps-threshold", "5", "--max-instances", "10")...)
		Expect(cmd.Start()).To(Succeed())

		Eventually(func() bool {
			rows, err := os.ReadFile(filepath.Join(out, sink.BatchesFile))
			return err == nil && len(rows) > 0 && countLines(rows) >= 2
		}, 30*time.Second, 200*time.Millisecond).Should(BeTrue())
		Expect(cmd.Process.Signal(syscall.SIGTERM)).To(Succeed())
		_ = cmd.Wait()

		run, err := sink.ReadReport(filepath.Join(out, sink.ReportFile))
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Status.TerminationReason).To(Equal("externally-cancelled"))
		Expect(run.Status.TotalBatchesRun).To(BeNumerically(">=", 1))
	})
})

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
