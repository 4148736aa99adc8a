package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tacboard/internal/logger"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "tacboard",
		Short:         "Shared tactical board server and client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, detail, debug, info, warn, error, none)")

	root.AddCommand(newServeCmd(&logLevel))
	root.AddCommand(newConnectCmd(&logLevel))
	root.AddCommand(newPhoneticCmd())
	return root
}

// cliLogger builds a stderr logger, letting the flag override fallback.
func cliLogger(flagLevel, fallback, path, prefix string) (*logger.Logger, error) {
	level := fallback
	if flagLevel != "" {
		level = flagLevel
	}
	return logger.New(logger.ParseLevel(level), path, prefix)
}
