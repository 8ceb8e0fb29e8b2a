package jenkins

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/result"
)

// testResultsPayload is the wire shape the pipeline's result step pushes
// when a build finishes.
type testResultsPayload struct {
	FullName string `json:"fullName"`
	RunDate  string `json:"runDate"`
	Commits  []struct {
		RepositorySlug string `json:"repositorySlug"`
		Hash           string `json:"hash"`
		Branch         string `json:"branchName"`
	} `json:"commits"`
	Results []struct {
		Name      string `json:"name"`
		TestCases []struct {
			Name     string   `json:"name"`
			Failures []string `json:"failures"`
			Errors   []string `json:"errors"`
		} `json:"testCases"`
	} `json:"results"`
	StaticAssessment []struct {
		Tool   string `json:"tool"`
		Issues []struct {
			Category string `json:"category"`
			Message  string `json:"message"`
			FilePath string `json:"filePath"`
			Line     int    `json:"startLine"`
			Priority string `json:"priority"`
		} `json:"issues"`
	} `json:"staticCodeAnalysisReports"`
	Logs []string `json:"logs"`
}

// ParseResult decodes the result-step payload into the native build shape. A
// build is successful when no reported test case carries a failure or error.
func (s *Service) ParseResult(payload []byte) (*result.NativeBuild, error) {
	var results testResultsPayload
	if err := json.Unmarshal(payload, &results); err != nil {
		return nil, fmt.Errorf("failed to decode test results: %w", err)
	}

	native := &result.NativeBuild{Successful: true}
	if results.RunDate != "" {
		completed, err := time.Parse(time.RFC3339, results.RunDate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse run date %q: %w", results.RunDate, err)
		}
		native.CompletedAt = completed
	}
	for _, commit := range results.Commits {
		if commit.RepositorySlug != "" && commit.RepositorySlug != "tests" {
			native.CommitHash = commit.Hash
			native.Branch = commit.Branch
			break
		}
	}

	for _, suite := range results.Results {
		job := result.NativeJob{Name: suite.Name}
		for _, test := range suite.TestCases {
			messages := append(append([]string{}, test.Failures...), test.Errors...)
			ok := len(messages) == 0
			if !ok {
				native.Successful = false
			}
			job.Tests = append(job.Tests, result.NativeTest{Name: test.Name, Successful: ok, Errors: messages})
		}
		native.Jobs = append(native.Jobs, job)
	}

	for _, report := range s.scaReports(results) {
		native.Findings = append(native.Findings, report)
	}
	for _, line := range results.Logs {
		native.Logs = append(native.Logs, result.LogLine{Time: native.CompletedAt, Text: line})
	}
	return native, nil
}

func (s *Service) scaReports(results testResultsPayload) []result.StaticAnalysisFinding {
	var findings []result.StaticAnalysisFinding
	for _, report := range results.StaticAssessment {
		for _, issue := range report.Issues {
			findings = append(findings, result.StaticAnalysisFinding{
				Tool:     report.Tool,
				Category: issue.Category,
				Message:  issue.Message,
				FilePath: issue.FilePath,
				Line:     issue.Line,
				Priority: issue.Priority,
			})
		}
	}
	return findings
}

// defaultFeatures is the capability matrix of the Jenkins backend. Sequential
// runs and testwise coverage are not offered, the pipeline model runs all
// stages in one job.
func defaultFeatures() ci.FeatureMatrix {
	return ci.FeatureMatrix{
		ci.Java: {
			Language:              ci.Java,
			StaticCodeAnalysis:    true,
			AuxiliaryRepositories: true,
			PlagiarismCheck:       true,
			PackageNameRequired:   true,
			ProjectTypes:          []ci.ProjectType{ci.ProjectTypeMaven, ci.ProjectTypeGradle},
		},
		ci.Kotlin: {
			Language:              ci.Kotlin,
			AuxiliaryRepositories: true,
			PlagiarismCheck:       true,
			PackageNameRequired:   true,
		},
		ci.Python: {
			Language:              ci.Python,
			AuxiliaryRepositories: true,
			PlagiarismCheck:       true,
		},
		ci.C: {
			Language:              ci.C,
			StaticCodeAnalysis:    true,
			AuxiliaryRepositories: true,
			PlagiarismCheck:       true,
			ProjectTypes:          []ci.ProjectType{ci.ProjectTypeGCC, ci.ProjectTypeFACT},
		},
		ci.Empty: {
			Language: ci.Empty,
		},
	}
}
