// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// The dbpf CLI packs project folders into DBPF archives and takes archives
// apart again.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	dbpf "github.com/sporemodder/go-dbpf"
	"github.com/sporemodder/go-dbpf/config"
	"github.com/sporemodder/go-dbpf/internal/metrics"
	"github.com/sporemodder/go-dbpf/internal/metrics/fileexporter"
	"github.com/sporemodder/go-dbpf/project"
	"github.com/sporemodder/go-dbpf/registry"
)

var versionGitCommit string
var versionBuildTime string

// toolchain is what every command needs, built from the global flags.
type toolchain struct {
	cfg   *config.Config
	names *registry.Registry
}

func setup(c *cli.Context) (*toolchain, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logrus.SetLevel(cfg.Level())

	names := registry.New()
	for _, file := range cfg.Registry.Files {
		if err := names.LoadFile(file); err != nil {
			return nil, err
		}
	}
	logrus.WithField("names", names.Len()).Debug("loaded registries")

	return &toolchain{cfg: cfg, names: names}, nil
}

func (tc *toolchain) options() project.Options {
	protected := project.DefaultProtectedSet()
	if len(tc.cfg.Protection.Packages) > 0 {
		protected = project.NewProtectedSet(tc.cfg.Protection.Packages...)
	}
	return project.Options{
		Names:       tc.names,
		Workers:     tc.cfg.WorkerCount(),
		Compress:    tc.cfg.Compression.Enabled,
		MinSize:     tc.cfg.Compression.MinSize,
		IsProtected: protected.Contains,
		Logger:      logrus.StandardLogger(),
	}
}

func requireArgs(c *cli.Context, min int, usage string) error {
	if c.NArg() < min {
		return errors.Errorf("usage: %s %s %s", c.App.Name, c.Command.Name, usage)
	}
	return nil
}

// parseKey accepts a key as GGGGGGGG!IIIIIIII.TTTTTTTT or as a project path
// such as animations~/creature.prop.
func parseKey(names project.Names, s string) (dbpf.ResourceKey, error) {
	if key, err := dbpf.ParseResourceKey(s); err == nil {
		return key, nil
	}
	key, err := project.ParseResourcePath(names, s)
	if err != nil {
		return dbpf.ResourceKey{}, errors.Errorf("invalid resource key %q", s)
	}
	return key, nil
}

func printSummary(c *cli.Context, verb string, s *project.Summary) {
	fmt.Fprintf(c.App.Writer, "%s %d resources (%d compressed), %s -> %s in %s\n",
		verb, s.Resources, s.Compressed,
		humanize.Bytes(s.RawBytes), humanize.Bytes(s.StoredBytes),
		s.Duration.Round(time.Millisecond))
}

func newApp() *cli.App {
	version := fmt.Sprintf("%s.%s", versionGitCommit, versionBuildTime)

	app := &cli.App{
		Name:    "dbpf",
		Usage:   "DBPF archive packer",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "TOML configuration file", TakesFile: true, EnvVars: []string{"DBPF_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Set log level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"DBPF_LOG_LEVEL"}},
			&cli.IntFlag{Name: "workers", Usage: "Number of compression workers, 0 for one per CPU", EnvVars: []string{"DBPF_WORKERS"}},
			&cli.StringFlag{Name: "metrics-file", Usage: "Write prometheus metrics to this file on exit", TakesFile: true, EnvVars: []string{"DBPF_METRICS_FILE"}},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("metrics-file"); path != "" {
				metrics.Register(fileexporter.New(path))
			} else {
				metrics.Register(nil)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			return metrics.Export()
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "pack",
			Usage:     "Pack a project folder into an archive",
			ArgsUsage: "<project-dir> <archive>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "no-compress", Usage: "Store every resource raw"},
			},
			Action: func(c *cli.Context) error {
				if err := requireArgs(c, 2, "<project-dir> <archive>"); err != nil {
					return err
				}
				tc, err := setup(c)
				if err != nil {
					return err
				}
				opts := tc.options()
				if c.Bool("no-compress") {
					opts.Compress = false
				}
				summary, err := project.Pack(c.Context, c.Args().Get(0), c.Args().Get(1), opts)
				if err != nil {
					return err
				}
				printSummary(c, "packed", summary)
				return nil
			},
		},
		{
			Name:      "unpack",
			Usage:     "Unpack an archive into a project folder",
			ArgsUsage: "<archive> <project-dir>",
			Action: func(c *cli.Context) error {
				if err := requireArgs(c, 2, "<archive> <project-dir>"); err != nil {
					return err
				}
				tc, err := setup(c)
				if err != nil {
					return err
				}
				summary, err := project.Unpack(c.Context, c.Args().Get(0), c.Args().Get(1), tc.options())
				if err != nil {
					return err
				}
				printSummary(c, "unpacked", summary)
				return nil
			},
		},
		{
			Name:      "list",
			Usage:     "List the resources of an archive",
			ArgsUsage: "<archive>",
			Action: func(c *cli.Context) error {
				if err := requireArgs(c, 1, "<archive>"); err != nil {
					return err
				}
				tc, err := setup(c)
				if err != nil {
					return err
				}
				r, err := dbpf.Open(c.Args().Get(0))
				if err != nil {
					return err
				}
				defer r.Close()

				for key, e := range r.Iterate() {
					fmt.Fprintf(c.App.Writer, "%s  %-8s %10s %10s  %s\n",
						key, e.Compression,
						humanize.Bytes(uint64(e.CompressedSize)),
						humanize.Bytes(uint64(e.UncompressedSize)),
						filepath.ToSlash(project.ResourcePath(tc.names, key)))
				}
				return nil
			},
		},
		{
			Name:      "extract",
			Usage:     "Extract one resource to a file",
			ArgsUsage: "<archive> <key> <output>",
			Action: func(c *cli.Context) error {
				if err := requireArgs(c, 3, "<archive> <key> <output>"); err != nil {
					return err
				}
				tc, err := setup(c)
				if err != nil {
					return err
				}
				key, err := parseKey(tc.names, c.Args().Get(1))
				if err != nil {
					return err
				}
				r, err := dbpf.Open(c.Args().Get(0))
				if err != nil {
					return err
				}
				defer r.Close()
				return r.ExtractFile(key, c.Args().Get(2))
			},
		},
		{
			Name:      "merge",
			Usage:     "Merge archives, later ones overriding earlier ones",
			ArgsUsage: "<output> <archive>...",
			Action: func(c *cli.Context) error {
				if err := requireArgs(c, 2, "<output> <archive>..."); err != nil {
					return err
				}
				tc, err := setup(c)
				if err != nil {
					return err
				}
				args := c.Args().Slice()
				summary, err := project.Merge(c.Context, args[1:], args[0], tc.options())
				if err != nil {
					return err
				}
				printSummary(c, "merged", summary)
				return nil
			},
		},
		{
			Name:      "info",
			Usage:     "Show the header of an archive",
			ArgsUsage: "<archive>",
			Action: func(c *cli.Context) error {
				if err := requireArgs(c, 1, "<archive>"); err != nil {
					return err
				}
				if _, err := setup(c); err != nil {
					return err
				}
				r, err := dbpf.Open(c.Args().Get(0))
				if err != nil {
					return err
				}
				defer r.Close()

				h := r.Header()
				w := c.App.Writer
				fmt.Fprintf(w, "version:      %d.%d (index %d.%d)\n", h.MajorVersion, h.MinorVersion, h.IndexMajorVersion, h.IndexMinorVersion)
				fmt.Fprintf(w, "size:         %s\n", humanize.Bytes(uint64(r.Size())))
				fmt.Fprintf(w, "resources:    %d\n", h.IndexCount)
				fmt.Fprintf(w, "index:        offset %d, %d bytes\n", h.IndexOffset, h.IndexSize)
				if h.CreatedDate != 0 {
					fmt.Fprintf(w, "created:      %s\n", time.Unix(int64(h.CreatedDate), 0).UTC().Format(time.RFC3339))
				}
				if h.ModifiedDate != 0 {
					fmt.Fprintf(w, "modified:     %s\n", time.Unix(int64(h.ModifiedDate), 0).UTC().Format(time.RFC3339))
				}
				return nil
			},
		},
	}

	return app
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		logrus.Fatal(err)
	}
}
