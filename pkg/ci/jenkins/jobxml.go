package jenkins

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/edulab/cibridge/pkg/buildscript"
)

// folderConfig is the config.xml of a project folder. The authorization
// matrix lives on the folder so every job below it inherits the grants.
type folderConfig struct {
	XMLName     xml.Name         `xml:"com.cloudbees.hudson.plugins.folder.Folder"`
	Description string           `xml:"description"`
	Properties  folderProperties `xml:"properties"`
}

type folderProperties struct {
	Authorization *authorizationMatrix `xml:"com.cloudbees.hudson.plugins.folder.properties.AuthorizationMatrixProperty,omitempty"`
}

type authorizationMatrix struct {
	InheritanceStrategy inheritanceStrategy `xml:"inheritanceStrategy"`
	Permissions         []string            `xml:"permission"`
}

type inheritanceStrategy struct {
	Class string `xml:"class,attr"`
}

const nonInheriting = "org.jenkinsci.plugins.matrixauth.inheritance.NonInheritingStrategy"

// jobConfig is the config.xml of one pipeline job. The build script is
// embedded inline, there is no Jenkinsfile checked into any repository.
type jobConfig struct {
	XMLName     xml.Name      `xml:"flow-definition"`
	Plugin      string        `xml:"plugin,attr"`
	Description string        `xml:"description"`
	KeepDeps    bool          `xml:"keepDependencies"`
	Properties  jobProperties `xml:"properties"`
	Definition  jobDefinition `xml:"definition"`
	Disabled    bool          `xml:"disabled"`
}

type jobProperties struct {
	Triggers *triggerProperty `xml:"org.jenkinsci.plugins.workflow.job.properties.PipelineTriggersJobProperty,omitempty"`
}

type triggerProperty struct {
	Triggers struct {
		SCMTrigger *scmTrigger `xml:"hudson.triggers.SCMTrigger,omitempty"`
	} `xml:"triggers"`
}

type scmTrigger struct {
	Spec string `xml:"spec"`
}

type jobDefinition struct {
	Class   string `xml:"class,attr"`
	Plugin  string `xml:"plugin,attr"`
	Script  string `xml:"script"`
	Sandbox bool   `xml:"sandbox"`
}

// repoCheckout is one repository the generated pipeline clones before the
// build tasks run.
type repoCheckout struct {
	Name   string
	URL    string
	Branch string
}

// buildFolderConfig renders the folder document with the given authorization
// matrix entries. Pass nil to render a folder without explicit grants.
func buildFolderConfig(description string, permissions []string) ([]byte, error) {
	cfg := folderConfig{Description: description}
	if len(permissions) > 0 {
		cfg.Properties.Authorization = &authorizationMatrix{
			InheritanceStrategy: inheritanceStrategy{Class: nonInheriting},
			Permissions:         permissions,
		}
	}
	return marshalConfig(cfg)
}

// buildJobConfig renders the config.xml of a pipeline job from the assembled
// build script.
func buildJobConfig(description string, checkouts []repoCheckout, pipeline *buildscript.Pipeline, credentialsID, notificationURL string) ([]byte, error) {
	cfg := jobConfig{
		Plugin:      "workflow-job",
		Description: description,
		Definition: jobDefinition{
			Class:   "org.jenkinsci.plugins.workflow.cps.CpsFlowDefinition",
			Plugin:  "workflow-cps",
			Script:  renderPipelineScript(checkouts, pipeline, credentialsID, notificationURL),
			Sandbox: true,
		},
		// New jobs stay disabled until the plan is configured for its
		// participant.
		Disabled: true,
	}
	cfg.Properties.Triggers = &triggerProperty{}
	cfg.Properties.Triggers.Triggers.SCMTrigger = &scmTrigger{Spec: ""}
	return marshalConfig(cfg)
}

func marshalConfig(cfg any) ([]byte, error) {
	raw, err := xml.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode job config: %w", err)
	}
	return append([]byte(xml.Header), raw...), nil
}

// renderPipelineScript turns the assembled task list into a declarative
// pipeline. Default tasks become stages in order, final tasks run in the
// post block so a failing test stage cannot skip them.
func renderPipelineScript(checkouts []repoCheckout, pipeline *buildscript.Pipeline, credentialsID, notificationURL string) string {
	var b strings.Builder
	b.WriteString("pipeline {\n    agent any\n    stages {\n")

	b.WriteString("        stage('Checkout') {\n            steps {\n")
	for _, co := range checkouts {
		fmt.Fprintf(&b, "                dir('%s') {\n", co.Name)
		fmt.Fprintf(&b, "                    git branch: '%s', credentialsId: '%s', url: '%s'\n", co.Branch, credentialsID, co.URL)
		b.WriteString("                }\n")
	}
	b.WriteString("            }\n        }\n")

	for _, task := range pipeline.DefaultTasks() {
		fmt.Fprintf(&b, "        stage('%s') {\n            steps {\n", escapeGroovy(task.Description))
		fmt.Fprintf(&b, "                sh '''%s'''\n", task.Script)
		b.WriteString("            }\n        }\n")
	}
	b.WriteString("    }\n    post {\n        always {\n")
	for _, task := range pipeline.FinalTasks() {
		fmt.Fprintf(&b, "            sh '''%s'''\n", task.Script)
	}
	if pipeline.ResultGlob != "" {
		fmt.Fprintf(&b, "            junit allowEmptyResults: true, testResults: '%s'\n", pipeline.ResultGlob)
	}
	fmt.Fprintf(&b, "            sendTestResults credentialsId: '%s', notificationUrl: '%s'\n", credentialsID, notificationURL)
	b.WriteString("        }\n    }\n}\n")
	return b.String()
}

func escapeGroovy(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
