package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/edulab/cibridge/pkg/logger"
)

type rootCmdArgs struct {
	version    VersionInfo
	ConfigFile string
	LogFormat  string
	Verbose    bool
}

type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Repo    string `json:"repo"`
}

const skipRootHooks = "skipRootHooks"

var RootArgs = &rootCmdArgs{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cibridge",
	Short: "Build plan orchestration for programming exercises",
	Long: `cibridge manages build plans for programming exercises across
pluggable continuous-integration backends. It creates, copies and configures
plans, receives build completion webhooks and normalizes them into one
canonical result shape.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipRootHooks] == "true" {
			return nil
		}
		level := "info"
		if RootArgs.Verbose {
			level = "debug"
		}
		logger.Setup(level, RootArgs.LogFormat)
		slog.Debug("Version", "version", RootArgs.version)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&RootArgs.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&RootArgs.ConfigFile, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&RootArgs.LogFormat, "log-format", "pretty", "The log format to use. Options are: pretty, text, json")
}

func SetVersionInfo(version, commit, date, repo string) string {
	rootCmd.Version = fmt.Sprintf("%s (Built on %s from Git SHA %s of %s)", version, date, commit, repo)
	RootArgs.version = VersionInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
		Repo:    repo,
	}
	return rootCmd.Version
}

func RootCmd() *cobra.Command {
	return rootCmd
}
