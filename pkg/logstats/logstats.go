// Package logstats extracts phase durations from raw build logs. One
// statistics row is persisted per submission, and only for Java builds: the
// log markers the extractor relies on only appear in the Java build agents'
// output.
package logstats

import (
	"log/slog"
	"strings"
	"time"

	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/result"
)

// Markers the extractor scans for. These are literal fragments of the build
// agent's log output.
const (
	markerAgentStart    = "started building on agent"
	markerBuildExec     = "Executing build"
	markerBuildFinished = "Finished building"
	markerSCAStart      = "Starting task 'Static Code Analysis'"
	markerSCAFinished   = "Finished task 'Static Code Analysis'"
)

// PartDuration is the start/end pair of one build phase. Either side may be
// nil when the corresponding marker was missing from the log.
type PartDuration struct {
	Start *time.Time
	End   *time.Time
}

// Duration returns the phase length, or 0 when a side is missing.
func (p PartDuration) Duration() time.Duration {
	if p.Start == nil || p.End == nil {
		return 0
	}
	return p.End.Sub(*p.Start)
}

// Complete reports whether both markers were found.
func (p PartDuration) Complete() bool {
	return p.Start != nil && p.End != nil
}

// Statistics is one extracted row of build timing data.
type Statistics struct {
	SubmissionID   int64
	AgentSetup     PartDuration
	Test           PartDuration
	StaticAnalysis PartDuration
	Total          PartDuration
}

// Store persists statistics rows. The relational implementation lives
// upstream, tests and the local profile use the in-memory store.
type Store interface {
	Save(stats Statistics) error
}

// Extract scans the log lines for the phase markers and assembles the
// statistics row for a submission. The bool result reports whether a row
// should be persisted: non-Java builds and empty logs produce nothing.
func Extract(submissionID int64, language ci.Language, logs []result.LogLine) (Statistics, bool) {
	if len(logs) == 0 || language != ci.Java {
		slog.Debug("No build log statistics extracted", "submission", submissionID, "language", language)
		return Statistics{}, false
	}

	jobStarted := &logs[0].Time
	jobFinished := timestampFor(logs, markerBuildFinished)
	if jobFinished == nil {
		jobFinished = &logs[len(logs)-1].Time
	}
	agentReady := timestampFor(logs, markerAgentStart)
	testsStarted := timestampFor(logs, markerBuildExec)

	stats := Statistics{
		SubmissionID:   submissionID,
		AgentSetup:     PartDuration{Start: jobStarted, End: agentReady},
		Test:           PartDuration{Start: testsStarted, End: timestampFor(logs, markerSCAStart)},
		StaticAnalysis: PartDuration{Start: timestampFor(logs, markerSCAStart), End: timestampFor(logs, markerSCAFinished)},
		Total:          PartDuration{Start: jobStarted, End: jobFinished},
	}
	if stats.Test.End == nil {
		stats.Test.End = jobFinished
	}
	return stats, true
}

// ExtractAndStore runs Extract and persists the row when one was produced.
func ExtractAndStore(store Store, submissionID int64, language ci.Language, logs []result.LogLine) error {
	stats, ok := Extract(submissionID, language, logs)
	if !ok {
		return nil
	}
	return store.Save(stats)
}

// timestampFor returns the time of the first log line containing the marker.
func timestampFor(logs []result.LogLine, marker string) *time.Time {
	for i := range logs {
		if strings.Contains(logs[i].Text, marker) {
			return &logs[i].Time
		}
	}
	return nil
}
