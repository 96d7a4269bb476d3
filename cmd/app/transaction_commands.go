package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/e2ee/cmd/app/commands"
	"github.com/allisson/e2ee/internal/app"
)

func getTransactionCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "cleanup-transactions",
			Usage: "Delete finished transactions older than specified days",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "days",
					Aliases: []string{"d"},
					Value:   30,
					Usage:   "Delete transactions older than this many days",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					transactionUseCase, err := container.TransactionUseCase()
					if err != nil {
						return err
					}

					return commands.RunCleanupTransactions(
						ctx,
						transactionUseCase,
						container.Logger(),
						commands.DefaultIO().Writer,
						int(cmd.Int("days")),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "transaction-stats",
			Usage: "Show transaction counts by status",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					transactionUseCase, err := container.TransactionUseCase()
					if err != nil {
						return err
					}

					return commands.RunTransactionStats(
						ctx,
						transactionUseCase,
						commands.DefaultIO().Writer,
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "get-transaction",
			Usage: "Show a single transaction",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "id",
					Required: true,
					Usage:    "Transaction ID",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					transactionUseCase, err := container.TransactionUseCase()
					if err != nil {
						return err
					}

					return commands.RunGetTransaction(
						ctx,
						transactionUseCase,
						commands.DefaultIO().Writer,
						cmd.String("id"),
						cmd.String("format"),
					)
				})
			},
		},
	}
}
