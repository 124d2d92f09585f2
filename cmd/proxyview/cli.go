package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/proxyview/internal/infrastructure/config"
	"github.com/GriffinCanCode/proxyview/internal/infrastructure/logging"
	"github.com/GriffinCanCode/proxyview/internal/infrastructure/server"
	"github.com/GriffinCanCode/proxyview/internal/navigation"
	"github.com/GriffinCanCode/proxyview/internal/providers/fetch"
	"github.com/GriffinCanCode/proxyview/internal/rewriter"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(stdin io.Reader, stdout io.Writer) *cli.App {
	app := &cli.App{
		Name:    "proxyview",
		Usage:   "Proxy-mediated document viewer",
		Version: Version,
		Flags:   serveFlags(),
		Action:  serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the viewer server (default)",
				Flags:  serveFlags(),
				Action: serve,
			},
			rewriteCmd(stdin, stdout),
			fetchCmd(stdout),
		},
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: os.Stderr,
	}
	// Errors are returned to main instead of exiting inside the library
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Config file (.toml, .yaml, .json)", EnvVars: []string{"PROXYVIEW_CONFIG"}},
		&cli.BoolFlag{Name: "dev", Usage: "Development logging (console, debug level)"},
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug|info|warn|error"},
	}
}

func serveFlags() []cli.Flag {
	return append(configFlags(),
		&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port"},
		&cli.StringFlag{Name: "host", Usage: "Listen host"},
		&cli.StringFlag{Name: "open", Usage: "URL to load on start"},
		&cli.BoolFlag{Name: "no-external", Usage: "Never open the external browser"},
	)
}

// loadConfig applies flags over file and environment configuration.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadFile(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.Bool("dev") {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if port := c.String("port"); port != "" {
		cfg.Server.Port = port
	}
	if host := c.String("host"); host != "" {
		cfg.Server.Host = host
	}
	if start := c.String("open"); start != "" {
		cfg.Navigation.StartURL = start
	}
	if c.Bool("no-external") {
		cfg.Navigation.OpenExternal = false
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewFromSettings(cfg.Logging.Level, cfg.Logging.Development)
}

// newStderrLogger keeps stdout free for command output.
func newStderrLogger(cfg *config.Config) (*logging.Logger, error) {
	lc := logging.DefaultConfig()
	if cfg.Logging.Development {
		lc = logging.DevelopmentConfig()
	}
	if cfg.Logging.Level != "" {
		lc.Level = cfg.Logging.Level
	}
	lc.OutputPaths = []string{"stderr"}
	return logging.New(lc)
}

func serve(c *cli.Context) error {
	if c.NArg() > 0 {
		return fmt.Errorf("unknown command %q", c.Args().First())
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Error("Failed to create server", zap.Error(err))
		logger.Sync()
		return err
	}

	ctx, stop := signal.NotifyContext(contextOf(c), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

// rewriteCmd creates the rewrite command.
func rewriteCmd(stdin io.Reader, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "rewrite",
		Usage:     "Rewrite an HTML file (or stdin) into a sandbox-safe document",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base", Aliases: []string{"b"}, Usage: "Base URL the document was fetched from", Required: true},
			&cli.BoolFlag{Name: "title", Usage: "Print only the extracted title"},
		},
		Action: func(c *cli.Context) error {
			var (
				src []byte
				err error
			)
			if path := c.Args().First(); path != "" && path != "-" {
				src, err = os.ReadFile(path)
			} else {
				src, err = io.ReadAll(stdin)
			}
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			res := rewriter.Process(string(src), navigation.Normalize(c.String("base")))
			if c.Bool("title") {
				_, err = fmt.Fprintln(stdout, res.Title)
				return err
			}
			_, err = io.WriteString(stdout, res.HTML)
			return err
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a URL and print the rewritten document",
		ArgsUsage: "<url>",
		Flags: append(configFlags(),
			&cli.BoolFlag{Name: "raw", Usage: "Print the decoded body without rewriting"},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("exactly one URL is required")
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger, err := newStderrLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client := fetch.New(fetch.Options{
				Timeout:      cfg.Fetch.Timeout.Std(),
				Retries:      cfg.Fetch.Retries,
				MaxRedirects: cfg.Fetch.MaxRedirects,
				MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
				UserAgent:    cfg.Fetch.UserAgent,
			}, logger.Named("fetch"), nil)

			target := navigation.Normalize(c.Args().First())
			ctx, stop := signal.NotifyContext(contextOf(c), os.Interrupt)
			defer stop()

			res, err := client.Fetch(ctx, target)
			if err != nil {
				return err
			}
			logger.Info("Fetched",
				zap.String("url", target),
				zap.String("final_url", res.FinalURL),
				zap.Int("status", res.Status),
				zap.String("content_type", res.ContentType))

			if res.Status < 200 || res.Status >= 300 {
				return fmt.Errorf("HTTP %d", res.Status)
			}
			if c.Bool("raw") {
				_, err = io.WriteString(stdout, res.Content)
				return err
			}
			if !fetch.IsRenderable(res.ContentType) {
				return fmt.Errorf("unsupported content type %s", res.ContentType)
			}
			_, err = io.WriteString(stdout, rewriter.Rewrite(res.Content, res.FinalURL))
			return err
		},
	}
}

func contextOf(c *cli.Context) context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}
