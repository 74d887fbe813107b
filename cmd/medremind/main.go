// Command medremind schedules and reconciles medication reminder alerts.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/medremind/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
