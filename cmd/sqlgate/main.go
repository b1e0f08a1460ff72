package main

import (
	"fmt"
	"os"

	"github.com/triage-ai/sqlgate/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sqlgate: %v\n", err)
		os.Exit(1)
	}
}
