package result

import (
	"log/slog"
	"strings"
)

// FirstBuildMarker appears in the human-readable trigger reason of the build
// some backends run automatically right after a plan is created. Matching
// the literal substring is a documented heuristic: the backends do not
// guarantee stable machine-readable reason codes.
const FirstBuildMarker = "First build for this plan"

// Options selects which optional parts of a payload make it into the
// canonical result. Both flags come from the exercise configuration.
type Options struct {
	StaticCodeAnalysis bool
	TestwiseCoverage   bool
}

// Normalize converts a parsed backend build into the canonical result.
//
// It returns nil for the auto-triggered first build of a freshly created
// plan: that build is not a response to a real commit and must not reach the
// grading collaborator. Normalize holds no state and is safe to call
// concurrently for different deliveries.
func Normalize(native *NativeBuild, opts Options) *BuildResult {
	if native == nil {
		return nil
	}
	if strings.Contains(native.Reason, FirstBuildMarker) {
		slog.Debug("Ignoring automatically triggered first build", "reason", native.Reason)
		return nil
	}

	res := &BuildResult{
		Successful:    native.Successful,
		CommitHash:    native.CommitHash,
		Branch:        native.Branch,
		TriggerReason: native.Reason,
		CompletedAt:   native.CompletedAt,
		LogLines:      native.Logs,
	}

	for _, job := range native.Jobs {
		for _, test := range job.Tests {
			res.TestCaseCount++
			if test.Successful {
				res.PassedTestCaseCount++
			}
			res.Feedback = append(res.Feedback, Feedback{
				Name:     test.Name,
				Positive: test.Successful,
				Detail:   strings.Join(test.Errors, "\n"),
			})
		}
	}

	if opts.StaticCodeAnalysis && len(native.Findings) > 0 {
		res.StaticAnalysis = native.Findings
		res.CodeIssueCount = len(native.Findings)
	}
	if opts.TestwiseCoverage && native.Coverage != nil {
		res.Coverage = native.Coverage
	}

	for _, fb := range res.Feedback {
		if !fb.Positive {
			res.HasFeedback = true
			break
		}
	}
	return res
}
