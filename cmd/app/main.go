package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/auralis/internal"
	pkgconfig "github.com/starford/auralis/pkg/config"
)

var version = "dev"

// loadOptions reads the config file named by --config. A missing file falls
// back to the built-in defaults.
func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}
	if found {
		opts = append(opts, internal.WithConfigPath(configPath))
	}
	return opts, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, cmd.String("owner"), opts...)
}

func exportNotes(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunExport(ctx, cmd.String("owner"), cmd.Bool("prune"), opts...)
}

func token(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	owner := cmd.Args().First()
	if owner == "" {
		return fmt.Errorf("usage: %s token <owner-id>", cmd.Root().Name)
	}
	return internal.IssueToken(os.Stdout, owner, opts...)
}

func main() {
	ownerFlag := &cli.StringFlag{
		Name:  "owner",
		Usage: "Owner id (defaults to auth.default_owner)",
	}

	cmd := &cli.Command{
		Name:    "auralis",
		Usage:   "Notes service with AI summaries, tags and category insights",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API server (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve one owner's notes over MCP on stdio",
				Flags:  []cli.Flag{ownerFlag},
				Action: mcp,
			},
			{
				Name:  "export",
				Usage: "Write notes as Markdown files into export.dir",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Usage: "Only export this owner (default: all owners)"},
					&cli.BoolFlag{Name: "prune", Usage: "Remove exported files whose note no longer exists"},
				},
				Action: exportNotes,
			},
			{
				Name:      "token",
				Usage:     "Print a bearer token for an owner (jwt auth mode)",
				ArgsUsage: "<owner-id>",
				Action:    token,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
