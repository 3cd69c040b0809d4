package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"zeitachse/internal/auth"
	"zeitachse/internal/canon"
	"zeitachse/internal/config"
	appLog "zeitachse/internal/log"
)

const version = "0.1.0"

func main() {
	// Load .env first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "zeitachse",
		Usage:   "Allocate canonical in-world dates on the season/matchday cadence.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "./zeitachse.yaml",
				Usage:   "Path to the application config file",
				EnvVars: []string{"ZEITACHSE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "canon",
				Usage: "Canon config JSON path (overrides the app config)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				appLog.SetLevel(appLog.LevelDebug)
			}
			return nil
		},
		Commands: []*cli.Command{
			allocCommand(),
			tableCommand(),
			serveCommand(),
			renderCommand(),
			hashPasswordCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadAppConfig resolves the application config for the current invocation.
func loadAppConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if canonPath := c.String("canon"); canonPath != "" {
		cfg.CanonPath = canonPath
	}
	return cfg, nil
}

func loadCanon(c *cli.Context) (*canon.Config, error) {
	cfg, err := loadAppConfig(c)
	if err != nil {
		return nil, err
	}
	return canon.Load(cfg.CanonConfigPath())
}

func allocCommand() *cli.Command {
	return &cli.Command{
		Name:  "alloc",
		Usage: "Compute an in-world date for a content item (optionally write into a JSON file).",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "season", Required: true},
			&cli.IntFlag{Name: "matchday", Required: true},
			&cli.StringFlag{Name: "type", Required: true, Usage: "Content type as configured in offset_rules"},
			&cli.IntFlag{Name: "offset", Value: 0, Usage: "Day offset relative to the matchday (can be negative)"},
			&cli.BoolFlag{Name: "allow-future", Usage: "Allow dates after world_today (planned content)"},
			&cli.StringFlag{Name: "write", Usage: "Path of a JSON file to update"},
			&cli.StringFlag{Name: "field", Value: "inWorldDate", Usage: "JSON field to write"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Do not write the file, only show what would happen"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadCanon(c)
			if err != nil {
				return err
			}

			d, err := cfg.Allocate(
				c.Int("season"),
				c.Int("matchday"),
				c.String("type"),
				c.Int("offset"),
				c.Bool("allow-future"),
			)
			if err != nil {
				return err
			}

			// Always print the computed date so it can be piped.
			fmt.Println(canon.FormatDate(d))

			if target := c.String("write"); target != "" {
				return writeInWorldDate(target, c.String("field"), canon.FormatDate(d), c.Bool("dry-run"))
			}
			return nil
		},
	}
}

// writeInWorldDate updates one field of an external JSON document with the
// allocated date, preserving all other keys.
func writeInWorldDate(path, field, isoDate string, dryRun bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	doc[field] = isoDate

	if dryRun {
		fmt.Printf("[dry-run] Would write %s=%s into %s\n", field, isoDate, path)
		return nil
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s=%s into %s\n", field, isoDate, path)
	return nil
}

func tableCommand() *cli.Command {
	return &cli.Command{
		Name:  "table",
		Usage: "Print the matchday -> date table for a season.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "season", Required: true},
			&cli.IntFlag{Name: "start", Value: 1},
			&cli.IntFlag{Name: "end", Value: 10},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadCanon(c)
			if err != nil {
				return err
			}

			season := c.Int("season")
			start := c.Int("start")
			end := c.Int("end")
			if end < start {
				return fmt.Errorf("end must be >= start, got %d..%d", start, end)
			}

			fmt.Printf("Season %d | Matchdays %d..%d | Interval %d days\n", season, start, end, cfg.MatchdayIntervalDays)
			fmt.Println("----------------------------------------------------------------")
			for md := start; md <= end; md++ {
				d, err := cfg.MatchdayDate(season, md)
				if err != nil {
					return err
				}
				fmt.Printf("MD%02d: %s\n", md, canon.FormatDate(d))
			}
			return nil
		},
	}
}

func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "hash-password",
		Usage: "Generate an Argon2id hash for the basic_auth.password_hash config entry.",
		Action: func(_ *cli.Context) error {
			fmt.Fprint(os.Stderr, "Enter password: ")
			pw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}

			fmt.Fprint(os.Stderr, "Confirm password: ")
			confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}

			if len(pw) == 0 {
				return fmt.Errorf("password must not be empty")
			}
			if string(pw) != string(confirm) {
				return fmt.Errorf("passwords do not match")
			}

			hash, err := auth.HashPassword(string(pw))
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}
