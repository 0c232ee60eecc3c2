package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/stencil/internal"
	pkgconfig "github.com/starford/stencil/pkg/config"

	// Scheduler timezones must resolve on minimal images without zoneinfo.
	_ "time/tzdata"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func baseOptions(cmd *cli.Command) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := baseOptions(cmd)
	if err != nil {
		return err
	}
	if cmd.Bool("no-scheduler") {
		opts = append(opts, internal.WithoutScheduler())
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func compile(ctx context.Context, cmd *cli.Command) error {
	opts, err := baseOptions(cmd)
	if err != nil {
		return err
	}
	var raw []byte
	switch src := cmd.Args().First(); src {
	case "", "-":
		raw, err = io.ReadAll(os.Stdin)
	default:
		raw, err = os.ReadFile(src)
	}
	if err != nil {
		return fmt.Errorf("read prompt: %w", err)
	}
	return internal.Compile(ctx, internal.CompileInput{
		Prompt:     string(raw),
		UserID:     cmd.String("user"),
		OutDir:     cmd.String("out-dir"),
		ZipPath:    cmd.String("zip"),
		AutoImport: cmd.Bool("import"),
	}, os.Stdout, append(opts, internal.WithLogOutput(os.Stderr))...)
}

func sweep(ctx context.Context, cmd *cli.Command) error {
	opts, err := baseOptions(cmd)
	if err != nil {
		return err
	}
	return internal.Sweep(ctx, os.Stdout, append(opts, internal.WithLogOutput(os.Stderr))...)
}

func report(ctx context.Context, cmd *cli.Command) error {
	opts, err := baseOptions(cmd)
	if err != nil {
		return err
	}
	return internal.Report(ctx, os.Stdout, append(opts, internal.WithLogOutput(os.Stderr))...)
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := baseOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "stencil",
		Usage:   "Compile component prompts into template packages and keep the template catalog consistent",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (defaults apply when it does not exist)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, catalog watcher and scheduler",
				Action: serve,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-scheduler", Usage: "Do not start the cron schedules"},
				},
			},
			{
				Name:      "compile",
				Usage:     "Compile one prompt file (or stdin) into a template package",
				ArgsUsage: "[prompt.md|-]",
				Action:    compile,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "zip", Aliases: []string{"o"}, Usage: "Write the package zip to this path"},
					&cli.StringFlag{Name: "out-dir", Usage: "Build into this directory and keep it"},
					&cli.StringFlag{Name: "user", Value: "cli", Usage: "User ID recorded with the import"},
					&cli.BoolFlag{Name: "import", Usage: "Import the package into the catalog"},
				},
			},
			{
				Name:   "sweep",
				Usage:  "Requeue stale ON_HOLD jobs once",
				Action: sweep,
			},
			{
				Name:   "report",
				Usage:  "Build and publish the weekly pipeline report once",
				Action: report,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
