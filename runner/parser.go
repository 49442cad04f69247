package runner

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// Go test2json action constants for JSON test output
// See https://cs.opensource.google/go/go/+/master:src/cmd/test2json/main.go;l=34-60
const (
	ActionStart  = "start"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

// SuiteStatus is the coarse outcome of one suite execution.
type SuiteStatus string

const (
	SuiteStatusPass SuiteStatus = "pass"
	SuiteStatusFail SuiteStatus = "fail"
	SuiteStatusSkip SuiteStatus = "skip"
)

// TestEvent represents a test event from go test -json output
type TestEvent struct {
	Time    time.Time
	Action  string
	Package string
	Test    string
	Elapsed float64
	Output  string
}

// SuiteResult captures the outcome of one non-parallel suite execution.
type SuiteResult struct {
	Status   SuiteStatus
	Passed   int
	Failed   int
	Skipped  int
	Duration time.Duration
	Output   []string // verbatim output lines, in emission order
}

// outputParser parses `go test -json` streams into SuiteResults.
type outputParser struct{}

// newOutputParser creates a new output parser
func newOutputParser() *outputParser {
	return &outputParser{}
}

// Parse consumes a test2json stream. Lines that are not valid events (e.g.
// build errors printed by the toolchain) are kept as plain output and force a
// failed suite when nothing else ran.
func (p *outputParser) Parse(r io.Reader) *SuiteResult {
	result := &SuiteResult{Status: SuiteStatusPass}
	sawEvent := false
	packageFailed := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)
	for scanner.Scan() {
		line := scanner.Bytes()

		var event TestEvent
		if err := json.Unmarshal(line, &event); err != nil {
			result.Output = append(result.Output, string(line))
			continue
		}
		sawEvent = true

		switch event.Action {
		case ActionOutput:
			result.Output = append(result.Output, strings.TrimSuffix(event.Output, "\n"))
		case ActionPass:
			if event.Test != "" {
				result.Passed++
			}
		case ActionFail:
			if event.Test != "" {
				result.Failed++
			} else {
				packageFailed = true
			}
		case ActionSkip:
			if event.Test != "" {
				result.Skipped++
			}
		}
	}

	switch {
	case !sawEvent, packageFailed, result.Failed > 0:
		result.Status = SuiteStatusFail
	case result.Passed == 0 && result.Skipped > 0:
		result.Status = SuiteStatusSkip
	default:
		result.Status = SuiteStatusPass
	}
	return result
}
