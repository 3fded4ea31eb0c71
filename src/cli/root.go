package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type Options struct {
	ConfigPath string
	JSON       bool
}

type RootCommand struct {
	*cobra.Command
	Options Options
}

func Init(name, short string) *RootCommand {
	cmd := &RootCommand{
		Command: &cobra.Command{
			Use:           name,
			Short:         short,
			SilenceUsage:  true,
			SilenceErrors: true,
		},
	}
	cmd.initFlags()

	return cmd
}

func (c *RootCommand) MustExecute(ctx context.Context) {
	if err := c.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "bufmgr failed: %v\n", err)
		os.Exit(1)
	}
}
