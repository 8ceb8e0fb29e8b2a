package main

import (
	"fmt"
	"os"

	"github.com/edulab/cibridge/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	repo    = "github.com/edulab/cibridge"
)

func main() {
	cmd.SetVersionInfo(version, commit, date, repo)
	err := cmd.Execute()
	if err != nil {
		fmt.Printf("Main Error: %v", err)
		os.Exit(1)
	}
}
