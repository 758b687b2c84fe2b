package main

import (
	"fmt"
	"os"

	"github.com/dgu123/entcore/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "entcore",
		Short:         "Lifecycle cascades, search fan-out and notifications for the ENT platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), typesCmd(), purgeUsersCmd(), deleteGroupsCmd(), exportCmd(), searchCmd(), reindexCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootLogger() zerolog.Logger {
	return logging.New("entcore", os.Getenv("ENTCORE_LOG_LEVEL"))
}
