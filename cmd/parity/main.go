// Command parity validates a refactor by running one test suite with the
// refactor switched off and on.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/parity/internal/cli"
	"github.com/roach88/parity/internal/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCommandError)
	}
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
