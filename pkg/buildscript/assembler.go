// Package buildscript assembles the ordered task pipeline of a build plan
// from shell script templates. Templates live below
// templates/<language>/[<projectType>/]{regularRuns|sequentialRuns|staticCodeAnalysisRuns}
// and are named <N>_<description>.sh: N fixes the execution order, the
// remainder is humanized into the task description.
package buildscript

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/edulab/cibridge/pkg/ci"
)

//go:embed templates
var templateFS embed.FS

const (
	regularRuns            = "regularRuns"
	sequentialRuns         = "sequentialRuns"
	staticCodeAnalysisRuns = "staticCodeAnalysisRuns"

	// fastlaneRequirement is the named agent capability Xcode builds need.
	fastlaneRequirement = "system.builder.fastlane.fastlane"
)

// Options selects which template set is assembled and which tokens are
// substituted into the script bodies.
type Options struct {
	Language           ci.Language
	ProjectType        ci.ProjectType
	PackageName        string
	SequentialRuns     bool
	StaticCodeAnalysis bool
	TestwiseCoverage   bool
	Replacements       map[string]string
}

// Assembler builds task pipelines from a template filesystem. The zero
// source is the embedded template set, an override directory from the
// configuration takes precedence when present.
type Assembler struct {
	fsys fs.FS
	root string
}

// NewAssembler returns an assembler reading the embedded templates.
func NewAssembler() *Assembler {
	return &Assembler{fsys: templateFS, root: "templates"}
}

// NewAssemblerFromDir returns an assembler reading templates from an
// on-disk directory instead of the embedded set.
func NewAssemblerFromDir(dir string) *Assembler {
	return &Assembler{fsys: os.DirFS(dir), root: "."}
}

// Assemble produces the pipeline for the given options. A language without a
// registered template set is a fatal setup error, not a silent no-op.
func (a *Assembler) Assemble(opts Options) (*Pipeline, error) {
	replacements := map[string]string{}
	for k, v := range opts.Replacements {
		replacements[k] = v
	}

	switch opts.Language {
	case ci.Java, ci.Kotlin:
		return a.assembleJavaKotlin(opts, replacements)
	case ci.Python:
		return a.assembleDefault(opts, "", "test-reports/*results.xml", replacements)
	case ci.C:
		return a.assembleC(opts, replacements)
	case ci.Swift:
		return a.assembleSwift(opts, replacements)
	case ci.Haskell:
		return a.assembleDefault(opts, "", "**/test-reports/*.xml", replacements)
	case ci.Empty:
		return &Pipeline{Tasks: []Task{{Description: "Print tool versions", Script: "mvn --version"}}}, nil
	default:
		return nil, ci.NewTemplateError(opts.Language, nil)
	}
}

func (a *Assembler) assembleJavaKotlin(opts Options, replacements map[string]string) (*Pipeline, error) {
	pipeline := &Pipeline{ResultGlob: javaResultGlob(opts.ProjectType)}

	runKind := regularRuns
	if opts.SequentialRuns {
		// Structural tests first, behavioral tests second, instead of one
		// combined test task.
		runKind = sequentialRuns
	}
	tasks, err := a.readScriptTasks(opts.Language, "", runKind, replacements)
	if err != nil {
		return nil, err
	}
	pipeline.Tasks = tasks

	if opts.StaticCodeAnalysis {
		scaTasks, err := a.readScriptTasks(opts.Language, "", staticCodeAnalysisRuns, replacements)
		if err != nil {
			return nil, err
		}
		for _, t := range scaTasks {
			t.Final = true
			pipeline.Tasks = append(pipeline.Tasks, t)
		}
		pipeline.Artifacts = append(pipeline.Artifacts, scaArtifacts(opts.Language)...)
	}

	if opts.TestwiseCoverage && !opts.SequentialRuns {
		pipeline.Artifacts = append(pipeline.Artifacts, Artifact{
			Name:        "testwiseCoverageReport",
			Location:    coverageReportLocation(opts.ProjectType),
			CopyPattern: "tiaTests.json",
		})
	}
	return pipeline, nil
}

func (a *Assembler) assembleC(opts Options, replacements map[string]string) (*Pipeline, error) {
	subdir := strings.ToLower(string(opts.ProjectType))
	pipeline := &Pipeline{ResultGlob: "test-reports/*results.xml"}

	tasks, err := a.readScriptTasks(opts.Language, subdir, regularRuns, replacements)
	if err != nil {
		return nil, err
	}
	pipeline.Tasks = tasks

	if opts.StaticCodeAnalysis {
		scaTasks, err := a.readScriptTasks(opts.Language, "", staticCodeAnalysisRuns, replacements)
		if err != nil {
			return nil, err
		}
		for _, t := range scaTasks {
			t.Final = true
			pipeline.Tasks = append(pipeline.Tasks, t)
		}
		pipeline.Artifacts = append(pipeline.Artifacts, scaArtifacts(opts.Language)...)
	}

	// The checkout directories are removed after every run. The results
	// directory stays so the report parser can still read it.
	pipeline.Tasks = append(pipeline.Tasks, Task{
		Description: "cleanup",
		Script:      "sudo rm -rf tests/\nsudo rm -rf assignment/",
		Final:       true,
	})
	return pipeline, nil
}

func (a *Assembler) assembleSwift(opts Options, replacements map[string]string) (*Pipeline, error) {
	isXcode := opts.ProjectType == ci.ProjectTypeXcode
	subdir := ""
	pipeline := &Pipeline{ResultGlob: "**/tests.xml"}
	replacements["${packageName}"] = opts.PackageName
	if isXcode {
		subdir = "xcode"
		pipeline.ResultGlob = "**/report.junit"
		delete(replacements, "${packageName}")
		replacements["${appName}"] = opts.PackageName
		pipeline.Requirements = append(pipeline.Requirements, fastlaneRequirement)
	}

	tasks, err := a.readScriptTasks(opts.Language, subdir, regularRuns, replacements)
	if err != nil {
		return nil, err
	}
	pipeline.Tasks = tasks

	if opts.StaticCodeAnalysis {
		scaTasks, err := a.readScriptTasks(opts.Language, subdir, staticCodeAnalysisRuns, replacements)
		if err != nil {
			return nil, err
		}
		for _, t := range scaTasks {
			t.Final = true
			pipeline.Tasks = append(pipeline.Tasks, t)
		}
		pipeline.Artifacts = append(pipeline.Artifacts, scaArtifacts(opts.Language)...)
	}
	return pipeline, nil
}

func (a *Assembler) assembleDefault(opts Options, subdir, resultGlob string, replacements map[string]string) (*Pipeline, error) {
	runKind := regularRuns
	if opts.SequentialRuns {
		runKind = sequentialRuns
	}
	tasks, err := a.readScriptTasks(opts.Language, subdir, runKind, replacements)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Tasks: tasks, ResultGlob: resultGlob}, nil
}

// readScriptTasks lists the *.sh templates of one run directory, sorted by
// their numeric filename prefix, and turns each into a task. The order is
// fixed by the prefix, not by the filesystem listing.
func (a *Assembler) readScriptTasks(language ci.Language, subdir, runKind string, replacements map[string]string) ([]Task, error) {
	dir := path.Join(a.root, strings.ToLower(string(language)))
	if subdir != "" {
		dir = path.Join(dir, subdir)
	}
	dir = path.Join(dir, runKind)

	entries, err := fs.ReadDir(a.fsys, dir)
	if err != nil {
		return nil, ci.NewTemplateError(language, fmt.Errorf("reading %s: %w", dir, err))
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sh") {
			names = append(names, entry.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := scriptPosition(names[i]), scriptPosition(names[j])
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})

	tasks := make([]Task, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(a.fsys, path.Join(dir, name))
		if err != nil {
			return nil, ci.NewTemplateError(language, fmt.Errorf("reading %s: %w", name, err))
		}
		script := string(body)
		for token, value := range replacements {
			script = strings.ReplaceAll(script, token, value)
		}
		tasks = append(tasks, Task{Description: describeScript(name), Script: script})
	}
	slog.Debug("Assembled script tasks", "language", language, "dir", dir, "count", len(tasks))
	return tasks, nil
}

// scriptPosition parses the numeric order prefix of a template filename.
func scriptPosition(name string) int {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return 0
	}
	return n
}

// describeScript humanizes a template filename:
// 1_some_description.sh -> "some description".
func describeScript(name string) string {
	base := strings.TrimSuffix(name, ".sh")
	parts := strings.Split(base, "_")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.Join(parts, " ")
}

func javaResultGlob(projectType ci.ProjectType) string {
	if projectType.IsMaven() {
		return "**/surefire-reports/*.xml"
	}
	return "**/test-results/test/*.xml"
}

func coverageReportLocation(projectType ci.ProjectType) string {
	if projectType.IsMaven() {
		return "target/tia/reports"
	}
	return "build/reports/testwise-coverage/tiaTests"
}

func scaArtifacts(language ci.Language) []Artifact {
	switch language {
	case ci.Java:
		return []Artifact{
			{Name: "spotbugs", Location: "target", CopyPattern: "spotbugsXml.xml"},
			{Name: "checkstyle", Location: "target", CopyPattern: "checkstyle-result.xml"},
			{Name: "pmd", Location: "target", CopyPattern: "pmd.xml"},
		}
	case ci.Kotlin:
		return []Artifact{{Name: "detekt", Location: "target", CopyPattern: "detekt.xml"}}
	case ci.C:
		return []Artifact{{Name: "gcc", Location: "target", CopyPattern: "gcc.xml"}}
	case ci.Swift:
		return []Artifact{{Name: "swiftlint", Location: "target", CopyPattern: "swiftlint-result.xml"}}
	default:
		return nil
	}
}
