package ci

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Java    Language = "JAVA"
	Kotlin  Language = "KOTLIN"
	Python  Language = "PYTHON"
	C       Language = "C"
	Swift   Language = "SWIFT"
	Haskell Language = "HASKELL"
	Empty   Language = "EMPTY"
)

// Language is a programming language an exercise can be set up with.
type Language string

// String is used both by fmt.Print and by Cobra in help text
func (l *Language) String() string {
	return string(*l)
}

// Set must have pointer receiver so it doesn't change the value of a copy
func (l *Language) Set(v string) error {
	switch Language(strings.ToUpper(v)) {
	case Java, Kotlin, Python, C, Swift, Haskell, Empty:
		*l = Language(strings.ToUpper(v))
		return nil
	default:
		return errors.New(`must be one of java, kotlin, python, c, swift, haskell, empty`)
	}
}

// Type is only used in help text
func (l *Language) Type() string {
	return "Language"
}

const (
	ProjectTypeMaven  ProjectType = "MAVEN"
	ProjectTypeGradle ProjectType = "GRADLE"
	ProjectTypeXcode  ProjectType = "XCODE"
	ProjectTypePlain  ProjectType = "PLAIN"
	ProjectTypeGCC    ProjectType = "GCC"
	ProjectTypeFACT   ProjectType = "FACT"
)

// ProjectType refines the build tooling within a language. It may be empty
// for languages that only support one layout.
type ProjectType string

// IsMaven reports whether the project builds with Maven. An empty project
// type counts as Maven for Java exercises created before project types
// existed.
func (p ProjectType) IsMaven() bool {
	return p == "" || p == ProjectTypeMaven || p == ProjectTypeFACT
}

// Variant names for the two plans every exercise owns. Student plans use the
// participant identifier as variant.
const (
	TemplateVariant = "TEMPLATE"
	SolutionVariant = "SOLUTION"
)

// PlanID identifies a build plan on a CI backend. The plan key is always
// derived from the project key and a variant, never persisted from
// backend-generated values that cannot be recomputed.
type PlanID struct {
	ProjectKey string
	PlanKey    string
}

// DerivePlanID computes the deterministic plan identifier for a project and
// variant, e.g. ("TESTCOURSE1", "SOLUTION") -> "TESTCOURSE1-SOLUTION".
func DerivePlanID(projectKey, variant string) PlanID {
	return PlanID{
		ProjectKey: projectKey,
		PlanKey:    projectKey + "-" + CleanPlanName(variant),
	}
}

// CleanPlanName strips every character a backend would reject from a plan
// name and upper-cases the remainder.
func CleanPlanName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (id PlanID) String() string {
	return id.PlanKey
}

// Variant returns the part of the plan key after the project prefix, or the
// whole key if the plan key was not derived from this project key.
func (id PlanID) Variant() string {
	return strings.TrimPrefix(id.PlanKey, id.ProjectKey+"-")
}

// CourseGroups carries the user group names of the course an exercise belongs
// to. Editor and TeachingAssistant may be empty, not every course defines
// these roles.
type CourseGroups struct {
	Instructor        string
	Editor            string
	TeachingAssistant string
}

// AuxiliaryRepository is an additional repository checked out into the build
// next to the assignment and test repositories.
type AuxiliaryRepository struct {
	Name              string
	Slug              string
	CheckoutDirectory string
}

// Exercise is the slice of a programming exercise the CI layer needs. The
// full domain object lives upstream, only identifiers and build-relevant
// flags cross this boundary.
type Exercise struct {
	ID                      int64
	Title                   string
	ProjectKey              string
	ProjectName             string
	PackageName             string
	Language                Language
	ProjectType             ProjectType
	Branch                  string
	SequentialTestRuns      bool
	StaticCodeAnalysis      bool
	TestwiseCoverage        bool
	CheckoutSolution        bool
	PublishBuildPlanURL     bool
	AllowOfflineIDE         bool
	Groups                  CourseGroups
	AuxiliaryRepositories   []AuxiliaryRepository
	TemplateRepositorySlug  string
	SolutionRepositorySlug  string
	TestRepositorySlug      string
}

// TemplatePlanID returns the identifier of the exercise's template plan.
func (e *Exercise) TemplatePlanID() PlanID {
	return DerivePlanID(e.ProjectKey, TemplateVariant)
}

// SolutionPlanID returns the identifier of the exercise's solution plan.
func (e *Exercise) SolutionPlanID() PlanID {
	return DerivePlanID(e.ProjectKey, SolutionVariant)
}

// Participation is one student's (or team's) copy of an exercise. BuildPlanID
// is empty until a plan has been copied for the participant.
type Participation struct {
	ID             int64
	Exercise       *Exercise
	BuildPlanID    string
	RepositorySlug string
	RepositoryURL  string
	Branch         string
	IsExamExercise bool
	Participants   []string
}

// PlanProjectKey extracts the project key prefix from a derived plan key.
func PlanProjectKey(planKey string) string {
	if idx := strings.Index(planKey, "-"); idx > 0 {
		return planKey[:idx]
	}
	return planKey
}

// Validate checks the fields every backend needs before a plan can be
// published.
func (e *Exercise) Validate() error {
	if e.ProjectKey == "" {
		return fmt.Errorf("exercise %d has no project key", e.ID)
	}
	if e.Language == "" {
		return fmt.Errorf("exercise %d has no programming language", e.ID)
	}
	return nil
}
