package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowrun-worker",
		EnableShellCompletion: true,
		Usage:                 "Execute queued and scheduled workflow runs",
		Commands: []*cli.Command{
			RunCommand(),
			ExecuteCommand(),
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
