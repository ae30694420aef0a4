package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/TillBeemelmanns/PDFCompare/config"
	"github.com/TillBeemelmanns/PDFCompare/internal/cache"
	"github.com/TillBeemelmanns/PDFCompare/internal/pipeline"
	"github.com/TillBeemelmanns/PDFCompare/pkg/env"
	"github.com/TillBeemelmanns/PDFCompare/pkg/httpserver"
	"github.com/TillBeemelmanns/PDFCompare/pkg/logging"
)

func main() {
	env.LoadEnv()

	app := &cli.App{
		Name:  "pdfcompare",
		Usage: "Detect and localise textual overlap between a target PDF and a reference pool",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "verbose logging"},
			&cli.StringFlag{Name: "config", Value: ".", Usage: "config directory"},
			&cli.StringFlag{Name: "cache-dir", Usage: "override index cache directory"},
		},
		Before: func(c *cli.Context) error {
			logging.InitLogger(c.Bool("debug") || env.GetEnvBool(env.DebugVar, false))
			config.LoadConfig(c.String("config"))
			env.ApplyOverrides(config.Config)
			if dir := c.String("cache-dir"); dir != "" {
				config.Config.CacheDir = dir
			}
			return nil
		},
		Commands: []*cli.Command{
			compareCommand(),
			indexCommand(),
			serveCommand(),
			statsCommand(),
			cacheCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Log.Fatal(err)
	}
}

func paramFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "seed-size", Aliases: []string{"n"}, Value: 0, Usage: "n-gram seed size (default from config)"},
		&cli.IntFlag{Name: "merge-gap", Value: -1, Usage: "max target-word gap when clustering seed hits"},
		&cli.StringFlag{Name: "mode", Usage: "exact or fuzzy"},
		&cli.BoolFlag{Name: "no-sw", Usage: "disable Smith-Waterman refinement"},
		&cli.IntFlag{Name: "lookahead", Value: -1, Usage: "alignment context lookahead"},
		&cli.IntFlag{Name: "workers", Usage: "parallel workers (default: all cores)"},
		&cli.BoolFlag{Name: "no-cache", Usage: "disable the on-disk index cache"},
	}
}

func paramsFromFlags(c *cli.Context) pipeline.Params {
	p := config.Config.Params()
	if v := c.Int("seed-size"); v > 0 {
		p.SeedSize = v
	}
	if v := c.Int("merge-gap"); v >= 0 {
		p.MergeGap = v
	}
	if v := c.String("mode"); v != "" {
		p.Mode = v
	}
	if c.Bool("no-sw") {
		p.SmithWaterman = false
	}
	if v := c.Int("lookahead"); v >= 0 {
		p.ContextLookahead = v
	}
	return p
}

func newPipeline(c *cli.Context) (*pipeline.Pipeline, *cache.Manifest, error) {
	opts := pipeline.Options{Workers: c.Int("workers")}
	var manifest *cache.Manifest
	if !c.Bool("no-cache") {
		opts.CacheDir = config.Config.CacheDir
		m, err := cache.OpenManifest(manifestDir())
		if err != nil {
			logging.Log.Warnf("manifest unavailable: %v", err)
		} else {
			manifest = m
			opts.Manifest = m
		}
	}
	p, err := pipeline.New(opts)
	return p, manifest, err
}

func manifestDir() string {
	return config.Config.CacheDir + ".manifest"
}

func printProgress(phase string, current, total int, message string) {
	fmt.Printf("\r[%-7s] %d/%d %-50.50s", phase, current, total, message)
	if phase == "done" {
		fmt.Println()
	}
}

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "Compare a target PDF against reference PDFs",
		ArgsUsage: "<target.pdf> <ref.pdf>...",
		Flags: append(paramFlags(),
			&cli.BoolFlag{Name: "json", Usage: "emit the full result as JSON"},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return cli.Exit("usage: pdfcompare compare <target.pdf> <ref.pdf>...", 1)
			}
			target := c.Args().First()
			refs := c.Args().Tail()

			p, manifest, err := newPipeline(c)
			if err != nil {
				return err
			}
			if manifest != nil {
				defer manifest.Close()
			}

			params := paramsFromFlags(c)
			start := time.Now()
			ix, err := p.BuildIndex(refs, params.SeedSize, printProgress, nil)
			if err != nil {
				return err
			}
			result, err := p.Compare(target, ix, params, printProgress, nil)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Printf("\n%d match(es) in %s (target: %d words)\n",
				len(result.Matches), time.Since(start).Round(time.Millisecond), result.TargetWordCount)
			for _, m := range result.Matches {
				fmt.Printf("  %016x  %s  target[%d..%d] ref[%d..%d]  score=%d conf=%.2f\n",
					m.ID, m.RefDoc, m.TStart, m.TEnd, m.RStart, m.REnd, m.Score, m.Confidence)
			}
			fmt.Println("per-reference similarity:")
			for _, path := range ix.Paths() {
				fmt.Printf("  %-60s %.1f%%\n", path, result.PerRefScore[path]*100)
			}
			for _, s := range ix.Skipped {
				fmt.Printf("skipped: %s (%s)\n", s.Path, s.Reason)
			}
			return nil
		},
	}
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "Pre-parse reference PDFs into the index cache",
		ArgsUsage: "<ref.pdf>...",
		Flags:     paramFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("usage: pdfcompare index <ref.pdf>...", 1)
			}
			p, manifest, err := newPipeline(c)
			if err != nil {
				return err
			}
			if manifest != nil {
				defer manifest.Close()
			}
			params := paramsFromFlags(c)
			ix, err := p.BuildIndex(c.Args().Slice(), params.SeedSize, printProgress, nil)
			if err != nil {
				return err
			}
			stats := p.Stats(ix)
			fmt.Printf("\nindexed %d document(s), %d distinct n-grams, ~%d KiB\n",
				stats.ReferenceFiles, stats.Ngrams, stats.ApproxMemoryBytes/1024)
			for _, s := range ix.Skipped {
				fmt.Printf("skipped: %s (%s)\n", s.Path, s.Reason)
			}
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the comparison pipeline as a JSON HTTP API",
		Flags: append(paramFlags(),
			&cli.IntFlag{Name: "port", Usage: "listen port (default from config)"},
		),
		Action: func(c *cli.Context) error {
			p, manifest, err := newPipeline(c)
			if err != nil {
				return err
			}
			if manifest != nil {
				defer manifest.Close()
			}
			port := config.Config.Port
			if v := c.Int("port"); v > 0 {
				port = v
			}
			return httpserver.New(p, paramsFromFlags(c)).ListenAndServe(port)
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show index cache statistics",
		Action: func(c *cli.Context) error {
			m, err := cache.OpenManifest(manifestDir())
			if err != nil {
				return err
			}
			defer m.Close()
			entries, err := m.List()
			if err != nil {
				return err
			}
			words, pages := 0, 0
			for _, e := range entries {
				words += e.WordCount
				pages += e.PageCount
			}
			fmt.Printf("cache dir: %s\n", config.Config.CacheDir)
			fmt.Printf("cached documents: %d (%d pages, %d words)\n", len(entries), pages, words)
			return nil
		},
	}
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the index cache",
		Subcommands: []*cli.Command{
			{
				Name:  "ls",
				Usage: "List cached documents",
				Action: func(c *cli.Context) error {
					m, err := cache.OpenManifest(manifestDir())
					if err != nil {
						return err
					}
					defer m.Close()
					entries, err := m.List()
					if err != nil {
						return err
					}
					for _, e := range entries {
						fmt.Printf("%s  %6d words  %4d pages  %s\n",
							e.Key, e.WordCount, e.PageCount, e.SourcePath)
					}
					return nil
				},
			},
			{
				Name:  "prune",
				Usage: "Drop cache entries whose source file changed or disappeared",
				Action: func(c *cli.Context) error {
					m, err := cache.OpenManifest(manifestDir())
					if err != nil {
						return err
					}
					defer m.Close()
					removed, err := m.Prune(config.Config.CacheDir)
					if err != nil {
						return err
					}
					fmt.Printf("pruned %d entr(ies)\n", removed)
					return nil
				},
			},
		},
	}
}
