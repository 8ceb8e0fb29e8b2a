package gitlabci

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/edulab/cibridge/pkg/result"
)

// pipelinePayload is the wire shape the result job pushes when a pipeline
// finishes. It mirrors the test report the runner uploads plus the raw job
// logs, the log lines feed the build statistics extraction downstream.
type pipelinePayload struct {
	Status     string `json:"status"`
	CommitHash string `json:"commitHash"`
	Branch     string `json:"branch"`
	FinishedAt string `json:"finishedAt"`
	TestSuites []struct {
		Name      string `json:"name"`
		TestCases []struct {
			Name     string   `json:"name"`
			Status   string   `json:"status"`
			Messages []string `json:"messages"`
		} `json:"testCases"`
	} `json:"testSuites"`
	Logs []struct {
		Time string `json:"time"`
		Text string `json:"text"`
	} `json:"logs"`
}

// ParseResult decodes the pipeline payload into the native build shape.
func (s *Service) ParseResult(payload []byte) (*result.NativeBuild, error) {
	var pipeline pipelinePayload
	if err := json.Unmarshal(payload, &pipeline); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline result: %w", err)
	}

	native := &result.NativeBuild{
		Successful: pipeline.Status == "success",
		CommitHash: pipeline.CommitHash,
		Branch:     pipeline.Branch,
	}
	if pipeline.FinishedAt != "" {
		finished, err := time.Parse(time.RFC3339, pipeline.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse pipeline finish time %q: %w", pipeline.FinishedAt, err)
		}
		native.CompletedAt = finished
	}

	for _, suite := range pipeline.TestSuites {
		job := result.NativeJob{Name: suite.Name}
		for _, test := range suite.TestCases {
			job.Tests = append(job.Tests, result.NativeTest{
				Name:       test.Name,
				Successful: test.Status == "success",
				Errors:     test.Messages,
			})
		}
		native.Jobs = append(native.Jobs, job)
	}
	for _, line := range pipeline.Logs {
		entry := result.LogLine{Text: line.Text}
		if ts, err := time.Parse(time.RFC3339, line.Time); err == nil {
			entry.Time = ts
		}
		native.Logs = append(native.Logs, entry)
	}
	return native, nil
}
