package worker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const framesPrefix = "frames="

// ParseProgress extracts the cumulative frame count from a progress line.
func ParseProgress(line string) (int64, bool) {
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, framesPrefix); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	if strings.HasPrefix(line, "{") {
		var p struct {
			Frames *int64 `json:"frames"`
		}
		if err := json.Unmarshal([]byte(line), &p); err != nil || p.Frames == nil || *p.Frames < 0 {
			return 0, false
		}
		return *p.Frames, true
	}
	return 0, false
}

// FormatProgress renders a progress line understood by ParseProgress.
func FormatProgress(frames int64) string {
	return fmt.Sprintf("%s%d", framesPrefix, frames)
}

// maxProgressLine bounds a single output line. Longer lines end progress
// parsing; the rest of the output is discarded.
const maxProgressLine = 1024 * 1024

// consumeProgress reads r until EOF, feeding progress lines to t. Every line
// is copied to logw when it is not nil. After a read error r is still drained
// so the workload never blocks on a full pipe.
func consumeProgress(r io.Reader, t *tracker, logw io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxProgressLine)
	for scanner.Scan() {
		line := scanner.Text()
		if n, ok := ParseProgress(line); ok {
			t.observeFrames(n)
		}
		if logw != nil {
			_, _ = io.WriteString(logw, line+"\n")
		}
	}
	err := scanner.Err()
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}

// ExpandCommand substitutes the instance placeholders in a command template.
func ExpandCommand(template []string, spec WorkloadSpec) []string {
	r := strings.NewReplacer(
		"{model}", spec.Model,
		"{source}", spec.Source,
		"{duration}", strconv.FormatInt(int64(math.Ceil(spec.Duration.Seconds())), 10),
		"{index}", strconv.Itoa(spec.Index),
		"{batch}", strconv.Itoa(spec.BatchSize),
		"{run_id}", spec.RunID,
	)
	out := make([]string, len(template))
	for i, arg := range template {
		out[i] = r.Replace(arg)
	}
	return out
}

// InstanceLogName is the log file name of an instance.
func InstanceLogName(spec WorkloadSpec) string {
	return fmt.Sprintf("batch_%d_%d.log", spec.BatchSize, spec.Index)
}

// instanceEnv exposes the instance identity to the workload.
func instanceEnv(spec WorkloadSpec) map[string]string {
	return map[string]string{
		"STRESS_RUN_ID":         spec.RunID,
		"STRESS_BATCH_SIZE":     strconv.Itoa(spec.BatchSize),
		"STRESS_INSTANCE_INDEX": strconv.Itoa(spec.Index),
	}
}
