package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/e2ee/cmd/app/commands"
	"github.com/allisson/e2ee/internal/app"
)

func kmsKeyURIFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "kms-key-uri",
		Sources: cli.EnvVars("KMS_KEY_URI"),
		Usage:   "KMS key URI (e.g., base64key://..., hashivault://mykey); empty prints a plain key",
	}
}

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-master-key",
			Usage: "Generate a new system master key",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Usage:   "Master key ID (e.g., master-key-2026)",
				},
				kmsKeyURIFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					return commands.RunCreateMasterKey(
						ctx,
						container.KMSService(),
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.String("id"),
						cmd.String("kms-key-uri"),
					)
				})
			},
		},
		{
			Name:  "rotate-master-key",
			Usage: "Generate a new master key and append it to MASTER_KEYS as the active key",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Usage:   "New master key ID",
				},
				kmsKeyURIFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					return commands.RunRotateMasterKey(
						ctx,
						container.KMSService(),
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.String("id"),
						cmd.String("kms-key-uri"),
						os.Getenv("MASTER_KEYS"),
						os.Getenv("ACTIVE_MASTER_KEY_ID"),
					)
				})
			},
		},
		{
			Name:  "generate-keys",
			Usage: "Generate the encryption key for a user",
			Flags: []cli.Flag{
				userIDFlag(),
				&cli.StringFlag{
					Name:    "passphrase",
					Aliases: []string{"p"},
					Sources: cli.EnvVars("KEY_PASSPHRASE"),
					Usage:   "Protect the key with a passphrase instead of the server-side key",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					keyUseCase, err := container.KeyUseCase()
					if err != nil {
						return err
					}

					return commands.RunGenerateKeys(
						ctx,
						keyUseCase,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.Int64("user-id"),
						cmd.String("passphrase"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "rotate-keys",
			Usage: "Rotate the encryption key for a user",
			Flags: []cli.Flag{
				userIDFlag(),
				&cli.StringFlag{
					Name:    "passphrase",
					Aliases: []string{"p"},
					Sources: cli.EnvVars("KEY_PASSPHRASE"),
					Usage:   "Passphrase of the current key, required when it is passphrase protected",
				},
				&cli.BoolFlag{
					Name:  "force",
					Usage: "Rotate without the passphrase (administrative override, requires --reason)",
				},
				&cli.StringFlag{
					Name:    "reason",
					Aliases: []string{"r"},
					Usage:   "Reason recorded in the audit trail",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					keyUseCase, err := container.KeyUseCase()
					if err != nil {
						return err
					}

					return commands.RunRotateKeys(
						ctx,
						keyUseCase,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.Int64("user-id"),
						cmd.String("passphrase"),
						cmd.Bool("force"),
						cmd.String("reason"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "revoke-keys",
			Usage: "Revoke the active encryption key of a user",
			Flags: []cli.Flag{
				userIDFlag(),
				&cli.StringFlag{
					Name:     "reason",
					Aliases:  []string{"r"},
					Required: true,
					Usage:    "Reason recorded on the revoked key",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					keyUseCase, err := container.KeyUseCase()
					if err != nil {
						return err
					}

					return commands.RunRevokeKeys(
						ctx,
						keyUseCase,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.Int64("user-id"),
						cmd.String("reason"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "validate-keys",
			Usage: "Check that a user's active key exists and is usable",
			Flags: []cli.Flag{userIDFlag(), formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					keyUseCase, err := container.KeyUseCase()
					if err != nil {
						return err
					}

					return commands.RunValidateKeys(
						ctx,
						keyUseCase,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.Int64("user-id"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "list-keys",
			Usage: "List the key history of a user",
			Flags: []cli.Flag{userIDFlag(), formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					keyUseCase, err := container.KeyUseCase()
					if err != nil {
						return err
					}

					return commands.RunListKeys(
						ctx,
						keyUseCase,
						commands.DefaultIO().Writer,
						cmd.Int64("user-id"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "cleanup-expired-keys",
			Usage: "Rotate every active key that is past its expiry",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					keyUseCase, err := container.KeyUseCase()
					if err != nil {
						return err
					}

					return commands.RunCleanupExpiredKeys(
						ctx,
						keyUseCase,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "backup-keys",
			Usage: "Write a password-protected backup of a user's active key",
			Flags: []cli.Flag{
				userIDFlag(),
				&cli.StringFlag{
					Name:     "password",
					Sources:  cli.EnvVars("BACKUP_PASSWORD"),
					Required: true,
					Usage:    "Backup password",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					keyUseCase, err := container.KeyUseCase()
					if err != nil {
						return err
					}

					return commands.RunBackupKeys(
						ctx,
						keyUseCase,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.Int64("user-id"),
						cmd.String("password"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "restore-keys",
			Usage: "Restore a user's key from a backup",
			Flags: []cli.Flag{
				userIDFlag(),
				&cli.StringFlag{
					Name:     "path",
					Required: true,
					Usage:    "Backup object path inside the backup bucket",
				},
				&cli.StringFlag{
					Name:     "password",
					Sources:  cli.EnvVars("BACKUP_PASSWORD"),
					Required: true,
					Usage:    "Backup password",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					keyUseCase, err := container.KeyUseCase()
					if err != nil {
						return err
					}

					return commands.RunRestoreKeys(
						ctx,
						keyUseCase,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.Int64("user-id"),
						cmd.String("path"),
						cmd.String("password"),
						cmd.String("format"),
					)
				})
			},
		},
	}
}
