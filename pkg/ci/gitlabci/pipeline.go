package gitlabci

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edulab/cibridge/pkg/buildscript"
)

// PipelineFileName is the path the generated pipeline definition is
// committed to in the participant's repository.
const PipelineFileName = ".gitlab-ci.yml"

const (
	stageBuild   = "build"
	stageCleanup = "cleanup"
)

// pipelineJob is one job of the generated definition.
type pipelineJob struct {
	Stage     string            `yaml:"stage"`
	Image     string            `yaml:"image,omitempty"`
	Script    []string          `yaml:"script"`
	Variables map[string]string `yaml:"variables,omitempty"`
	Artifacts *jobArtifacts     `yaml:"artifacts,omitempty"`
	When      string            `yaml:"when,omitempty"`
	AllowFail bool              `yaml:"allow_failure,omitempty"`
}

type jobArtifacts struct {
	Paths   []string    `yaml:"paths,omitempty"`
	Reports *jobReports `yaml:"reports,omitempty"`
	When    string      `yaml:"when,omitempty"`
}

type jobReports struct {
	JUnit string `yaml:"junit,omitempty"`
}

// RenderPipeline turns the assembled task pipeline into a pipeline
// definition document. Default tasks become one job each in declaration
// order, final tasks run in the cleanup stage with when:always so a failing
// build cannot skip them.
func RenderPipeline(pipeline *buildscript.Pipeline, image string) ([]byte, error) {
	doc := yaml.Node{Kind: yaml.DocumentNode}
	root := &yaml.Node{Kind: yaml.MappingNode}
	doc.Content = []*yaml.Node{root}

	appendEntry := func(key string, value any) error {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(value); err != nil {
			return fmt.Errorf("failed to encode pipeline section %s: %w", key, err)
		}
		root.Content = append(root.Content, keyNode, valueNode)
		return nil
	}

	stages := []string{stageBuild}
	if len(pipeline.FinalTasks()) > 0 {
		stages = append(stages, stageCleanup)
	}
	if err := appendEntry("stages", stages); err != nil {
		return nil, err
	}

	for _, task := range pipeline.DefaultTasks() {
		job := pipelineJob{
			Stage:  stageBuild,
			Image:  image,
			Script: strings.Split(strings.TrimSpace(task.Script), "\n"),
		}
		if pipeline.ResultGlob != "" {
			job.Artifacts = &jobArtifacts{
				Reports: &jobReports{JUnit: pipeline.ResultGlob},
				When:    "always",
			}
		}
		if err := appendEntry(jobName(task.Description), job); err != nil {
			return nil, err
		}
	}
	for _, task := range pipeline.FinalTasks() {
		job := pipelineJob{
			Stage:     stageCleanup,
			Image:     image,
			Script:    strings.Split(strings.TrimSpace(task.Script), "\n"),
			When:      "always",
			AllowFail: true,
		}
		if err := appendEntry(jobName(task.Description), job); err != nil {
			return nil, err
		}
	}

	return yaml.Marshal(&doc)
}

// jobName converts a task description into a pipeline job key.
func jobName(description string) string {
	name := strings.ToLower(description)
	name = strings.ReplaceAll(name, " ", "-")
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
