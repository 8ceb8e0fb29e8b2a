package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusArgs struct {
	Backend string
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <projectKey> <planKey>",
	Short: "Show the build status of a plan",
	Long: `Query the backend for the status of one build plan. The status is
one of INACTIVE, QUEUED and BUILDING. A plan the backend does not know
reports INACTIVE.`,
	Args: cobra.ExactArgs(2),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusArgs.Backend, "backend", "b", "", "The CI backend to query")
	_ = statusCmd.MarkFlagRequired("backend")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	w, err := buildWiring(nil)
	if err != nil {
		return err
	}
	backend, err := w.registry.Get(statusArgs.Backend)
	if err != nil {
		return err
	}
	status, err := backend.BuildStatus(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}
