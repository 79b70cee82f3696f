// Package main is the entry point for the archprompt CLI.
package main

import (
	"fmt"
	"os"

	"github.com/danielolaszy/archprompt/cmd"
	"github.com/danielolaszy/archprompt/internal/logging"
	"github.com/danielolaszy/archprompt/internal/pipeline"
)

// main executes the root command and exits with the code of the failed
// stage, if any.
func main() {
	if err := cmd.Execute(); err != nil {
		logging.Error("command execution failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(pipeline.ExitCode(err))
	}
}
