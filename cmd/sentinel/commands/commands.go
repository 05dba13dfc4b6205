// Package commands defines the sentinel CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/studystack/sentinel/internal/app"
	"github.com/studystack/sentinel/internal/backup"
	"github.com/studystack/sentinel/internal/config"
	"github.com/studystack/sentinel/pkg/logger"
)

// New creates the root CLI command with all subcommands.
func New(version, commit, date string) *cli.Command {
	return &cli.Command{
		Name:    "sentinel",
		Usage:   "Operational monitoring and alerting for the StudyStack platform",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				Value:   "config.toml",
				Sources: cli.EnvVars("SENTINEL_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				log.SetLevel(log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCommand(version),
			backupCommand(),
		},
	}
}

func serveCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the monitoring service",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.New(app.Options{
				ConfigPath: cmd.String("config"),
				Version:    version,
			})
			if err != nil {
				return err
			}
			if err := a.Initialize(ctx); err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- a.Start() }()

			select {
			case <-ctx.Done():
				log.Info("shutdown signal received")
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server exited: %w", err)
				}
			}
			return a.Shutdown(context.Background())
		},
	}
}

// backupManager builds a standalone Manager for CLI backup operations,
// without starting the full service.
func backupManager(cmd *cli.Command) (*backup.Manager, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	return backup.NewManager(backup.Options{
		Config: cfg.Backup,
		DBPath: cfg.SQLite.Path,
		Logger: logger.New(cmd.Bool("debug")),
	})
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Backup operations",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a full backup now",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					manager, err := backupManager(cmd)
					if err != nil {
						return err
					}
					metadata, err := manager.CreateFullBackup(ctx)
					if err != nil {
						return err
					}
					log.Info("backup complete",
						"tables", len(metadata.Collections),
						"size_bytes", metadata.SizeBytes,
						"checksum", metadata.Checksum)
					return nil
				},
			},
			{
				Name:      "verify",
				Usage:     "Verify a backup's integrity",
				ArgsUsage: "<backup-name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("backup name is required")
					}
					manager, err := backupManager(cmd)
					if err != nil {
						return err
					}
					ok, err := manager.VerifyBackupIntegrity(ctx, name)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("backup %s failed integrity verification", name)
					}
					log.Info("backup verified", "backup", name)
					return nil
				},
			},
			{
				Name:      "restore",
				Usage:     "Restore the database from a backup",
				ArgsUsage: "<backup-name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("backup name is required")
					}
					manager, err := backupManager(cmd)
					if err != nil {
						return err
					}
					if err := manager.RestoreFromBackup(ctx, name); err != nil {
						return err
					}
					log.Info("restore complete", "backup", name)
					return nil
				},
			},
			{
				Name:  "cleanup",
				Usage: "Remove backups past the retention window",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					manager, err := backupManager(cmd)
					if err != nil {
						return err
					}
					removed, err := manager.CleanupOldBackups(ctx)
					if err != nil {
						return err
					}
					log.Info("cleanup complete", "removed", removed)
					return nil
				},
			},
		},
	}
}
