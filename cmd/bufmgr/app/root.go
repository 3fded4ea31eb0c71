package app

import (
	"context"

	"github.com/Blackdeer1524/bufmgr/src/cli"
)

var rootCmd = cli.Init("bufmgr", "Clock buffer pool manager over on-disk page files")

func MustExecute(ctx context.Context) {
	initWorkload()
	initDump()
	rootCmd.MustExecute(ctx)
}
