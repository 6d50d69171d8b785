package worker

import (
	"bufio"
	"io"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = DescribeTable("ParseProgress",
	func(line string, want int64, ok bool) {
		got, gotOK := ParseProgress(line)
		Expect(gotOK).To(Equal(ok))
		if ok {
			Expect(got).To(Equal(want))
		}
	},
	Entry("key=value", "frames=1200", int64(1200), true),
	Entry("surrounding whitespace", "  frames= 42 \n", int64(42), true),
	Entry("json", `{"frames": 1300, "fps": 12.5}`, int64(1300), true),
	Entry("json without frames", `{"fps": 12.5}`, int64(0), false),
	Entry("negative", "frames=-1", int64(0), false),
	Entry("garbage value", "frames=lots", int64(0), false),
	Entry("unrelated line", "loading model yolo.onnx", int64(0), false),
	Entry("formatted", FormatProgress(77), int64(77), true),
)

var _ = Describe("consumeProgress", func() {
	It("should keep the counter monotonic and copy every line", func() {
		t := newTracker(0, nil)
		var log strings.Builder
		input := "starting\nframes=100\nframes=50\n{\"frames\":300}\nbye\n"

		Expect(consumeProgress(strings.NewReader(input), t, &log)).To(Succeed())
		Expect(t.FrameCount()).To(Equal(int64(300)))
		Expect(log.String()).To(Equal(input))
	})

	It("should keep draining the output after an oversized line", func() {
		t := newTracker(0, nil)
		r, w := io.Pipe()
		written := make(chan error, 1)
		go func() {
			defer func() { _ = w.Close() }()
			if _, err := io.WriteString(w, FormatProgress(10)+"\n"); err != nil {
				written <- err
				return
			}
			if _, err := io.WriteString(w, strings.Repeat("x", maxProgressLine+1)+"\n"); err != nil {
				written <- err
				return
			}
			_, err := io.WriteString(w, strings.Repeat(FormatProgress(20)+"\n", 10000))
			written <- err
		}()

		Expect(consumeProgress(r, t, nil)).To(MatchError(bufio.ErrTooLong))
		Eventually(written, 5*time.Second).Should(Receive(BeNil()))
		Expect(t.FrameCount()).To(Equal(int64(10)))
	})
})

var _ = Describe("ExpandCommand", func() {
	It("should substitute every placeholder", func() {
		spec := WorkloadSpec{
			RunID:     "abc",
			BatchSize: 3,
			Index:     2,
			Model:     "/models/yolo.engine",
			Source:    "rtsp://cam/1",
			Duration:  210500 * time.Millisecond,
		}
		got := ExpandCommand([]string{
			"worker", "--model", "{model}", "--source={source}", "--duration", "{duration}",
			"--log-file", "batch_{batch}_{index}.csv", "--run", "{run_id}",
		}, spec)
		Expect(got).To(Equal([]string{
			"worker", "--model", "/models/yolo.engine", "--source=rtsp://cam/1", "--duration", "211",
			"--log-file", "batch_3_2.csv", "--run", "abc",
		}))
		Expect(InstanceLogName(spec)).To(Equal("batch_3_2.log"))
	})
})
