// Package result holds the canonical build result model shared by every CI
// backend and the normalizer that produces it from a backend's completion
// payload.
package result

import "time"

// Feedback is one test case outcome mapped into the canonical model. A
// failing test carries its error messages in Detail.
type Feedback struct {
	Name     string
	Detail   string
	Positive bool
}

// StaticAnalysisFinding is one reported code issue.
type StaticAnalysisFinding struct {
	Tool     string
	Category string
	Message  string
	FilePath string
	Line     int
	Priority string
}

// FileCoverage is the covered-line report for one source file of a single
// test case.
type FileCoverage struct {
	FilePath     string
	CoveredLines []LineRange
}

// LineRange is a consecutive block of covered lines.
type LineRange struct {
	Start int
	Count int
}

// TestCoverage maps one executed test case to the code it covered. Test case
// identity is resolved downstream, the test cases may not exist in storage
// yet when a result is normalized.
type TestCoverage struct {
	TestName string
	Files    []FileCoverage
}

// CoverageReport is the testwise coverage attachment of a build.
type CoverageReport struct {
	Tests []TestCoverage
}

// BuildResult is the canonical, backend-independent outcome of one build.
// It is constructed once per webhook delivery, immutable afterwards, and
// consumed exactly once by the grading collaborator.
type BuildResult struct {
	Successful          bool
	CommitHash          string
	Branch              string
	TriggerReason       string
	CompletedAt         time.Time
	Feedback            []Feedback
	StaticAnalysis      []StaticAnalysisFinding
	Coverage            *CoverageReport
	TestCaseCount       int
	PassedTestCaseCount int
	CodeIssueCount      int
	// HasFeedback is true iff at least one feedback entry is negative. The
	// notification policy downstream uses it to suppress all-green pushes.
	HasFeedback bool
	LogLines    []LogLine
}

// LogLine is one raw build log entry with the timestamp the backend
// attached to it.
type LogLine struct {
	Time time.Time
	Text string
}
