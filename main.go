package main

import (
	"fmt"
	"os"

	"tuleva/camt-reconciler/cmd/contributions"
	"tuleva/camt-reconciler/cmd/decode"
	"tuleva/camt-reconciler/cmd/outcomes"
	"tuleva/camt-reconciler/cmd/request"
	"tuleva/camt-reconciler/cmd/root"
	"tuleva/camt-reconciler/cmd/run"
	"tuleva/camt-reconciler/cmd/schedule"
)

func init() {
	root.Init()

	root.Cmd.AddCommand(run.Cmd)
	root.Cmd.AddCommand(schedule.Cmd)
	root.Cmd.AddCommand(request.Cmd)
	root.Cmd.AddCommand(decode.Cmd)
	root.Cmd.AddCommand(outcomes.Cmd)
	root.Cmd.AddCommand(contributions.Cmd)
}

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
