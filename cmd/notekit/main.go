// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/notekit"
	"github.com/poiesic/notekit/core"
	"github.com/poiesic/notekit/remote"
	"github.com/poiesic/notekit/remote/rest"
	"github.com/poiesic/notekit/search"
	"github.com/poiesic/notekit/storage"
	"github.com/poiesic/notekit/syncer"
)

func main() {
	app := &cli.App{
		Name:  "notekit",
		Usage: "Local-first note store with dual storage backends and sync",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML config file",
				Value:   "config.toml",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write a starter config file",
				Action: initCommand,
			},
			{
				Name:      "add",
				Usage:     "Create a new record",
				ArgsUsage: "<title>",
				Action:    addCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "body",
						Aliases: []string{"b"},
						Usage:   "Record body text",
					},
					&cli.StringSliceFlag{
						Name:    "tag",
						Aliases: []string{"t"},
						Usage:   "Tag to attach (repeatable)",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Record category",
					},
					&cli.BoolFlag{
						Name:  "favorite",
						Usage: "Mark the record as a favorite",
					},
				},
			},
			{
				Name:      "get",
				Usage:     "Show a record by id",
				ArgsUsage: "<id>",
				Action:    getCommand,
			},
			{
				Name:   "list",
				Usage:  "List records, newest first",
				Action: listCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "category",
						Usage: "Only records in this category",
					},
					&cli.StringSliceFlag{
						Name:    "tag",
						Aliases: []string{"t"},
						Usage:   "Only records carrying this tag (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "deleted",
						Usage: "Include tombstoned records",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search records",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "scope",
						Usage: "Search scope (local, remote, hybrid)",
						Value: "local",
					},
				},
			},
			{
				Name:      "delete",
				Usage:     "Tombstone a record so the deletion syncs",
				ArgsUsage: "<id>",
				Action:    deleteCommand,
			},
			{
				Name:      "purge",
				Usage:     "Hard-delete a record",
				ArgsUsage: "<id>",
				Action:    purgeCommand,
			},
			{
				Name:   "tags",
				Usage:  "Show live tag counts",
				Action: tagsCommand,
			},
			{
				Name:      "switch-backend",
				Usage:     "Migrate all records to the other storage engine",
				ArgsUsage: "<badger|sqlite>",
				Action:    switchBackendCommand,
			},
			{
				Name:   "sync",
				Usage:  "Run a sync cycle against the configured remote",
				Action: syncCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "watch",
						Aliases: []string{"w"},
						Usage:   "Keep syncing on the configured interval",
					},
				},
			},
			{
				Name:      "resolve",
				Usage:     "Resolve a conflicted record",
				ArgsUsage: "<id> <local|remote>",
				Action:    resolveCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the configured file, falling back to defaults when the
// default path does not exist.
func loadConfig(c *cli.Context) (*notekit.Config, error) {
	path := c.String("config")
	if _, err := os.Stat(path); os.IsNotExist(err) && !c.IsSet("config") {
		return notekit.DefaultConfig(), nil
	}
	return notekit.LoadConfig(path)
}

func openStore(c *cli.Context) (*notekit.Store, *notekit.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	store, err := notekit.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, cfg, nil
}

func remoteSource(cfg *notekit.Config) remote.Source {
	if cfg.Sync.RemoteURL == "" {
		return nil
	}
	return rest.NewSource(cfg.Sync.RemoteURL, rest.WithTimeout(cfg.Sync.FetchTimeout()))
}

func initCommand(c *cli.Context) error {
	path := c.String("config")
	if err := notekit.CreateConfigFile(path); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func addCommand(c *cli.Context) error {
	title := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if title == "" {
		return fmt.Errorf("title is required")
	}

	store, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	record, err := store.Create(context.Background(), notekit.Draft{
		Title:    title,
		Body:     c.String("body"),
		Tags:     c.StringSlice("tag"),
		Category: c.String("category"),
		Favorite: c.Bool("favorite"),
	})
	if err != nil {
		return err
	}

	fmt.Println(record.Id)
	return nil
}

func getCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: get <id>")
	}

	store, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	record, err := store.Get(context.Background(), c.Args().First())
	if err != nil {
		return err
	}

	printRecord(record)
	return nil
}

func listCommand(c *cli.Context) error {
	store, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(context.Background(), storage.Filter{
		Category:       c.String("category"),
		Tags:           c.StringSlice("tag"),
		IncludeDeleted: c.Bool("deleted"),
	})
	if err != nil {
		return err
	}

	for _, record := range records {
		line := fmt.Sprintf("%s  %s  [%s]", record.Id, record.Title, record.SyncState)
		if record.Deleted {
			line += "  (deleted)"
		}
		fmt.Println(line)
	}
	fmt.Printf("%d record(s)\n", len(records))
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	scope, err := search.ParseScope(c.String("scope"))
	if err != nil {
		return err
	}

	store, cfg, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []search.Option{}
	if cfg.Search.Limit > 0 {
		opts = append(opts, search.WithLimit(cfg.Search.Limit))
	}
	if cfg.Search.MinLocalHits > 0 {
		opts = append(opts, search.WithMinLocalHits(cfg.Search.MinLocalHits))
	}
	coordinator, err := search.NewCoordinator(store, remoteSource(cfg), opts...)
	if err != nil {
		return err
	}

	matches, err := coordinator.Search(context.Background(), query, scope)
	if err != nil {
		return err
	}

	for _, match := range matches {
		fmt.Printf("%6.2f  %s  %s  (%s)\n", match.Score, match.Record.Id, match.Record.Title, match.Tier)
	}
	fmt.Printf("%d match(es)\n", len(matches))
	return nil
}

func deleteCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: delete <id>")
	}

	store, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Delete(context.Background(), c.Args().First())
}

func purgeCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: purge <id>")
	}

	store, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Purge(context.Background(), c.Args().First())
}

func tagsCommand(c *cli.Context) error {
	store, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.Tags(context.Background())
	if err != nil {
		return err
	}

	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		fmt.Printf("%s\t%d\n", tag, counts[tag])
	}
	return nil
}

func switchBackendCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: switch-backend <badger|sqlite>")
	}

	var target storage.Kind
	switch c.Args().First() {
	case storage.KindKeyValue.String():
		target = storage.KindKeyValue
	case storage.KindRelational.String():
		target = storage.KindRelational
	default:
		return fmt.Errorf("unknown backend %q: must be badger or sqlite", c.Args().First())
	}

	store, cfg, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SwitchBackend(context.Background(), target); err != nil {
		return err
	}

	// Persist the choice so the next invocation opens on the new engine.
	cfg.Backend = target.String()
	path := c.String("config")
	if _, err := os.Stat(path); err == nil {
		if err := notekit.SaveConfig(path, cfg); err != nil {
			return fmt.Errorf("backend switched but config not updated: %w", err)
		}
		fmt.Printf("active backend is now %s (saved to %s)\n", target, path)
		return nil
	}
	fmt.Printf("active backend is now %s\n", target)
	fmt.Printf("no config file at %s; run init and set backend = %q to keep the choice\n", path, target)
	return nil
}

func syncCommand(c *cli.Context) error {
	store, cfg, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	source := remoteSource(cfg)
	if source == nil {
		return fmt.Errorf("sync.remote_url is not configured")
	}

	opts := []syncer.Option{
		syncer.WithFetchTimeout(cfg.Sync.FetchTimeout()),
	}
	if cfg.Sync.RetryAttempts > 0 {
		opts = append(opts, syncer.WithRetry(cfg.Sync.RetryAttempts, syncer.DefaultRetryBaseDelay))
	}
	s, err := syncer.NewSyncer(store, source, opts...)
	if err != nil {
		return err
	}
	defer s.Release()

	if c.Bool("watch") {
		interval := cfg.Sync.Interval()
		if interval <= 0 {
			return fmt.Errorf("sync.interval_seconds must be positive for --watch")
		}
		s.Run(context.Background(), interval)
		return nil
	}

	result, err := s.RunCycle(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("fetched %d, new %d, updated %d, deleted %d, conflicts %d\n",
		result.Fetched, result.New, result.Updated, result.Deleted, result.Conflicts)
	if len(result.Failures) > 0 {
		fmt.Printf("failed to commit: %s\n", strings.Join(result.Failures, ", "))
	}
	return nil
}

func resolveCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: resolve <id> <local|remote>")
	}

	var choice notekit.ResolutionChoice
	switch c.Args().Get(1) {
	case "local":
		choice = notekit.KeepLocal
	case "remote":
		choice = notekit.TakeRemote
	default:
		return fmt.Errorf("unknown choice %q: must be local or remote", c.Args().Get(1))
	}

	store, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	record, err := store.ResolveConflict(context.Background(), c.Args().First(), choice)
	if err != nil {
		return err
	}

	printRecord(record)
	return nil
}

func printRecord(record *core.Record) {
	fmt.Printf("id:        %s\n", record.Id)
	fmt.Printf("title:     %s\n", record.Title)
	if record.Category != "" {
		fmt.Printf("category:  %s\n", record.Category)
	}
	if len(record.Tags) > 0 {
		fmt.Printf("tags:      %s\n", strings.Join(record.Tags, ", "))
	}
	fmt.Printf("created:   %s\n", record.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("updated:   %s\n", record.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("state:     %s\n", record.SyncState)
	if record.Favorite {
		fmt.Println("favorite:  yes")
	}
	if record.Archived {
		fmt.Println("archived:  yes")
	}
	if record.Deleted {
		fmt.Println("deleted:   yes")
	}
	if record.Conflict != nil {
		fmt.Printf("conflict:  remote version %s from %s\n",
			record.Conflict.Version, record.Conflict.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if record.Body != "" {
		fmt.Printf("\n%s\n", record.Body)
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
