package result

import "time"

// NativeBuild is the backend's own view of a finished build after the
// provider has parsed its wire payload. It is the input to Normalize and the
// only result shape providers have to produce.
type NativeBuild struct {
	Reason        string
	Successful    bool
	CommitHash    string
	Branch        string
	CompletedAt   time.Time
	Jobs          []NativeJob
	Findings      []StaticAnalysisFinding
	Coverage      *CoverageReport
	Logs          []LogLine
}

// NativeJob is one job of the build with its reported test cases.
type NativeJob struct {
	Name  string
	Tests []NativeTest
}

// NativeTest is one executed test case as the backend reported it.
type NativeTest struct {
	Name       string
	Successful bool
	Errors     []string
}
