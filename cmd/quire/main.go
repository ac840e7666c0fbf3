package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// exitInterrupted matches the shell convention for SIGINT.
const exitInterrupted = 130

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(exitInterrupted)
		}
		fmt.Fprintf(os.Stderr, "quire: %v\n", err)
		os.Exit(1)
	}
}
