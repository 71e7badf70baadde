// Command fuzzy ranks lines from a file or stdin against a query, the same
// way the fuzzyd service does.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/logger"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fuzzy: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "fuzzy",
		Usage:     "Fuzzy-match a query against candidate strings",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "Log level for diagnostics on stderr (debug, info, warn, error)",
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetupWriter(c.App.ErrWriter, c.String("log-level"), "text")
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "search",
				Aliases:   []string{"s"},
				Usage:     "Rank candidates (one per line) against QUERY",
				ArgsUsage: "QUERY",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Read candidates from `FILE` instead of stdin",
					},
					&cli.StringFlag{
						Name:    "remote",
						Aliases: []string{"r"},
						Usage:   "Query a running fuzzyd at `ADDR` (unix:/path or host:port) instead of ranking locally",
						EnvVars: []string{"FZ_REMOTE"},
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Value: 5 * time.Second,
						Usage: "Round-trip timeout for --remote",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Print at most N results (0 = all; with --remote, all up to the server's maxResults)",
					},
					&cli.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Usage:   "Parallel workers (0 = CPU count)",
					},
					&cli.BoolFlag{
						Name:  "no-vector",
						Usage: "Force the scalar character locator",
					},
					&cli.BoolFlag{
						Name:    "scores",
						Aliases: []string{"s"},
						Usage:   "Prefix each result with its score",
					},
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output results and stats as JSON",
					},
				},
				Action: searchCommand,
			},
			{
				Name:      "score",
				Usage:     "Print the score of TEXT for QUERY",
				ArgsUsage: "QUERY TEXT",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "positions",
						Usage: "Also print the matched byte offsets",
					},
				},
				Action: scoreCommand,
			},
			{
				Name:   "capability",
				Usage:  "Show whether the vectorized locator is used on this machine",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"}},
				Action: capabilityCommand,
			},
		},
	}
}
