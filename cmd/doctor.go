package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edulab/cibridge/pkg/health"
)

var doctorArgs struct {
	JSONOutput bool
	Parallel   bool
	NoColor    bool
}

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Aliases: []string{"health"},
	Short:   "Run environment diagnostics",
	Long: `Probe every configured CI backend and the version-control
collaborator and report what is reachable. The command exits non-zero when a
critical check fails.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorArgs.JSONOutput, "json", false, "Output results as JSON")
	doctorCmd.Flags().BoolVar(&doctorArgs.Parallel, "parallel", true, "Run checks in parallel")
	doctorCmd.Flags().BoolVar(&doctorArgs.NoColor, "no-color", false, "Disable colored output")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w, err := buildWiring(nil)
	if err != nil {
		return err
	}

	doctor := health.NewDoctor(health.Options{
		Verbose:  RootArgs.Verbose,
		Parallel: doctorArgs.Parallel,
	}, w.registry, w.repos)
	results := doctor.RunChecks(cmd.Context())

	formatter := health.NewResultFormatter(os.Stdout, RootArgs.Verbose, doctorArgs.JSONOutput, !doctorArgs.NoColor)
	if err := formatter.FormatResults(results); err != nil {
		return err
	}

	for _, result := range results {
		if result.Status == health.StatusFail && result.Severity == health.SeverityCritical {
			return fmt.Errorf("critical checks failed")
		}
	}
	return nil
}
