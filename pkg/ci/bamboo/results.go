package bamboo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/edulab/cibridge/pkg/result"
)

// notificationPayload is the wire shape the plan notification pushes when a
// build finishes. Only the slice the normalizer needs is decoded, unknown
// fields are ignored.
type notificationPayload struct {
	Build struct {
		Reason           string `json:"reason"`
		Successful       bool   `json:"successful"`
		BuildCompletedAt string `json:"buildCompletedDate"`
		Vcs              []struct {
			RepositoryName string `json:"repositoryName"`
			ID             string `json:"id"`
			Branch         string `json:"branchName"`
		} `json:"vcs"`
		Jobs []struct {
			ID    int64 `json:"id"`
			Tests struct {
				Failed     []notificationTest `json:"failedTests"`
				Successful []notificationTest `json:"successfulTests"`
			} `json:"testSummary"`
			StaticAssessment []struct {
				Tool   string                `json:"tool"`
				Issues []notificationFinding `json:"issues"`
			} `json:"staticCodeAnalysisReports"`
			Coverage []notificationCoverage `json:"testwiseCoverageReport"`
			Logs     []struct {
				Date string `json:"date"`
				Log  string `json:"log"`
			} `json:"logs"`
		} `json:"jobs"`
	} `json:"build"`
}

type notificationTest struct {
	Name    string   `json:"name"`
	Errors  []string `json:"errors"`
	Methods []string `json:"testMethods"`
}

type notificationFinding struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	FilePath string `json:"filePath"`
	Line     int    `json:"startLine"`
	Priority string `json:"priority"`
}

type notificationCoverage struct {
	TestName string `json:"testName"`
	Files    []struct {
		FilePath     string `json:"filePath"`
		CoveredLines []struct {
			Start int `json:"startLine"`
			Count int `json:"lineCount"`
		} `json:"coveredLines"`
	} `json:"coveredFiles"`
}

// ParseResult decodes the plan notification payload into the native build
// shape. The commit hash and branch are taken from the assignment
// repository's VCS entry, the test repository triggering a solution build
// carries no commit relevant to grading.
func (s *Service) ParseResult(payload []byte) (*result.NativeBuild, error) {
	var note notificationPayload
	if err := json.Unmarshal(payload, &note); err != nil {
		return nil, fmt.Errorf("failed to decode build notification: %w", err)
	}

	native := &result.NativeBuild{
		Reason:     note.Build.Reason,
		Successful: note.Build.Successful,
	}
	if note.Build.BuildCompletedAt != "" {
		completed, err := time.Parse(time.RFC3339, note.Build.BuildCompletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse build completion date %q: %w", note.Build.BuildCompletedAt, err)
		}
		native.CompletedAt = completed
	}
	for _, vcs := range note.Build.Vcs {
		if vcs.RepositoryName == assignmentRepoName {
			native.CommitHash = vcs.ID
			native.Branch = vcs.Branch
			break
		}
	}

	for _, job := range note.Build.Jobs {
		nativeJob := result.NativeJob{Name: fmt.Sprintf("%d", job.ID)}
		for _, test := range job.Tests.Successful {
			nativeJob.Tests = append(nativeJob.Tests, result.NativeTest{Name: test.Name, Successful: true})
		}
		for _, test := range job.Tests.Failed {
			nativeJob.Tests = append(nativeJob.Tests, result.NativeTest{Name: test.Name, Errors: test.Errors})
		}
		native.Jobs = append(native.Jobs, nativeJob)

		for _, report := range job.StaticAssessment {
			for _, issue := range report.Issues {
				native.Findings = append(native.Findings, result.StaticAnalysisFinding{
					Tool:     report.Tool,
					Category: issue.Category,
					Message:  issue.Message,
					FilePath: issue.FilePath,
					Line:     issue.Line,
					Priority: issue.Priority,
				})
			}
		}
		if len(job.Coverage) > 0 {
			native.Coverage = coverageReport(job.Coverage)
		}
		for _, line := range job.Logs {
			entry := result.LogLine{Text: line.Log}
			if ts, err := time.Parse(time.RFC3339, line.Date); err == nil {
				entry.Time = ts
			}
			native.Logs = append(native.Logs, entry)
		}
	}
	return native, nil
}

func coverageReport(entries []notificationCoverage) *result.CoverageReport {
	report := &result.CoverageReport{}
	for _, entry := range entries {
		test := result.TestCoverage{TestName: entry.TestName}
		for _, file := range entry.Files {
			coverage := result.FileCoverage{FilePath: file.FilePath}
			for _, block := range file.CoveredLines {
				coverage.CoveredLines = append(coverage.CoveredLines, result.LineRange{Start: block.Start, Count: block.Count})
			}
			test.Files = append(test.Files, coverage)
		}
		report.Tests = append(report.Tests, test)
	}
	return report
}
