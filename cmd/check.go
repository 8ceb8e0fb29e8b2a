package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/consistency"
)

var checkArgs struct {
	Backend      string
	ExerciseID   int64
	TemplateSlug string
	SolutionSlug string
	TestSlug     string
	JSONOutput   bool
}

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <projectKey>",
	Short: "Check an exercise for missing remote artifacts",
	Long: `Probe the version-control system and the CI backend for the
repositories and build plans an exercise is expected to have. Every missing
artifact is reported, the check never stops at the first finding.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkArgs.Backend, "backend", "b", "", "The CI backend to probe")
	checkCmd.Flags().Int64Var(&checkArgs.ExerciseID, "exercise-id", 0, "The exercise identifier used in the report")
	checkCmd.Flags().StringVar(&checkArgs.TemplateSlug, "template-slug", "", "Slug of the template repository")
	checkCmd.Flags().StringVar(&checkArgs.SolutionSlug, "solution-slug", "", "Slug of the solution repository")
	checkCmd.Flags().StringVar(&checkArgs.TestSlug, "test-slug", "", "Slug of the test repository")
	checkCmd.Flags().BoolVar(&checkArgs.JSONOutput, "json", false, "Output findings as JSON")
	_ = checkCmd.MarkFlagRequired("backend")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	w, err := buildWiring(nil)
	if err != nil {
		return err
	}
	backend, err := w.registry.Get(checkArgs.Backend)
	if err != nil {
		return err
	}

	projectKey := args[0]
	exercise := &ci.Exercise{
		ID:                     checkArgs.ExerciseID,
		ProjectKey:             projectKey,
		TemplateRepositorySlug: slugOrDefault(checkArgs.TemplateSlug, projectKey, "exercise"),
		SolutionRepositorySlug: slugOrDefault(checkArgs.SolutionSlug, projectKey, "solution"),
		TestRepositorySlug:     slugOrDefault(checkArgs.TestSlug, projectKey, "tests"),
	}

	checker := consistency.NewChecker(backend, w.repos)
	findings := checker.Check(cmd.Context(), exercise)

	if checkArgs.JSONOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(findings); err != nil {
			return err
		}
	} else if len(findings) == 0 {
		fmt.Println("No inconsistencies found.")
	} else {
		for _, finding := range findings {
			fmt.Printf("%s\n", finding.Type)
		}
	}
	if len(findings) > 0 {
		return fmt.Errorf("%d inconsistencies found", len(findings))
	}
	return nil
}

func slugOrDefault(slug, projectKey, suffix string) string {
	if slug != "" {
		return slug
	}
	return fmt.Sprintf("%s-%s", strings.ToLower(projectKey), suffix)
}
