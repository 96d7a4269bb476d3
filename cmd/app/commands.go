package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/e2ee/internal/app"
	"github.com/allisson/e2ee/internal/config"
)

func getCommands(version string) []*cli.Command {
	cmds := []*cli.Command{}
	cmds = append(cmds, getSystemCommands(version)...)
	cmds = append(cmds, getKeyCommands()...)
	cmds = append(cmds, getTransactionCommands()...)
	return cmds
}

// withContainer runs fn with a container built from the environment and shuts it down afterwards.
func withContainer(ctx context.Context, fn func(container *app.Container) error) error {
	container := app.NewContainer(config.Load())
	defer func() { _ = container.Shutdown(ctx) }()

	return fn(container)
}

func userIDFlag() *cli.Int64Flag {
	return &cli.Int64Flag{
		Name:     "user-id",
		Aliases:  []string{"u"},
		Required: true,
		Usage:    "User ID",
	}
}

func formatFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}
