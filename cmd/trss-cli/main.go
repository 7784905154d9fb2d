package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robertmeta/trss-cli/client"
	"github.com/robertmeta/trss-cli/collection"
	"github.com/robertmeta/trss-cli/configfile"
	"github.com/robertmeta/trss-cli/feed"
	"github.com/robertmeta/trss-cli/model"
	"github.com/robertmeta/trss-cli/opml"
	"github.com/robertmeta/trss-cli/status"
	"github.com/urfave/cli/v2"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	app := &cli.App{
		Name:    "trss-cli",
		Usage:   "Manage the RSS subscriptions of a trss server",
		Version: "0.1.0",
		// Regexps may contain commas.
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://127.0.0.1:9093",
				Usage:   "Base URL of the trss server",
				EnvVars: []string{"TRSS_SERVER"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 30 * time.Second,
				Usage: "Timeout for each request to the server",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List config entries",
				Action: listEntries,
			},
			{
				Name:   "dirs",
				Usage:  "Suggest download directories from existing entries",
				Action: suggestDirs,
			},
			{
				Name:   "status",
				Usage:  "Show whether the fetch job is running",
				Action: showStatus,
			},
			{
				Name:   "start",
				Usage:  "Trigger a fetch job run",
				Action: startJob,
			},
			{
				Name:   "create",
				Usage:  "Create a config entry",
				Flags:  entryFlags(),
				Action: createEntry,
			},
			{
				Name:      "edit",
				Usage:     "Edit a config entry",
				ArgsUsage: "<index>",
				Flags:     append(entryFlags(), listFlags()...),
				Action:    editEntry,
			},
			{
				Name:      "delete",
				Usage:     "Delete a config entry",
				ArgsUsage: "<index>",
				Action:    deleteEntry,
			},
			{
				Name:      "preview",
				Usage:     "Fetch an entry's feed and show which items would match",
				ArgsUsage: "<index>",
				Action:    previewEntry,
			},
			watchCommand(),
			{
				Name:      "import",
				Usage:     "Import feeds from an OPML file as disabled entries",
				ArgsUsage: "<opml-file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "download-dir",
						Aliases:  []string{"d"},
						Usage:    "Download directory for imported entries",
						Required: true,
					},
				},
				Action: importOPML,
			},
			{
				Name:  "export",
				Usage: "Export config entries",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   configfile.FormatJSON,
						Usage:   "Output format: json, toml or opml",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: stdout)",
					},
				},
				Action: exportEntries,
			},
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func getClient(c *cli.Context) *client.Client {
	return client.New(c.String("server"), c.Duration("timeout"))
}

// getCollection loads the collection once from the server.
func getCollection(c *cli.Context) (*collection.Store, error) {
	coll := collection.New(getClient(c))
	if err := coll.Refresh(c.Context); err != nil {
		return nil, fmt.Errorf("failed to load config entries: %w", err)
	}
	return coll, nil
}

func parseIndex(c *cli.Context, usage string) (int, error) {
	if c.NArg() < 1 {
		return 0, cli.Exit("Usage: trss-cli "+usage, ExitUsageError)
	}
	index, err := strconv.Atoi(c.Args().Get(0))
	if err != nil || index < 0 {
		return 0, cli.Exit("Invalid index", ExitUsageError)
	}
	return index, nil
}

// exitError maps err to the command's exit code. Local validation failures
// are usage errors; anything the server rejected is a data error.
func exitError(msg string, err error) error {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return cli.Exit(fmt.Sprintf("%s: %v", msg, err), ExitUsageError)
	}
	var serr *client.StatusError
	if errors.As(err, &serr) {
		return cli.Exit(fmt.Sprintf("%s: %s", msg, serr.Body), ExitDataError)
	}
	return cli.Exit(fmt.Sprintf("%s: %v", msg, err), ExitDataError)
}

func listEntries(c *cli.Context) error {
	coll, err := getCollection(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}

	entries, err := coll.Entries()
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

func suggestDirs(c *cli.Context) error {
	coll, err := getCollection(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	dirs := coll.DownloadDirSuggestions()
	if dirs == nil {
		dirs = []string{}
	}
	return outputJSON(dirs)
}

func showStatus(c *cli.Context) error {
	st, err := getClient(c).Status(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get status: %v", err), ExitDataError)
	}
	return outputJSON(st)
}

func startJob(c *cli.Context) error {
	p := status.New(getClient(c))
	if err := p.TriggerJob(c.Context); err != nil {
		return exitError("Failed to start job", err)
	}

	st, _ := p.Status()
	return outputJSON(map[string]interface{}{
		"success": true,
		"running": st.Running,
	})
}

func deleteEntry(c *cli.Context) error {
	index, err := parseIndex(c, "delete <index>")
	if err != nil {
		return err
	}

	coll, err := getCollection(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}

	entry, err := coll.At(index)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	if err := coll.DeleteKey(c.Context, entry.Key); err != nil {
		return exitError("Failed to delete entry", err)
	}

	return outputJSON(map[string]interface{}{
		"success": true,
		"index":   index,
		"name":    entry.Config.Name,
	})
}

func previewEntry(c *cli.Context) error {
	index, err := parseIndex(c, "preview <index>")
	if err != nil {
		return err
	}

	coll, err := getCollection(c)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	entry, err := coll.At(index)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	items, err := feed.NewFetcher().Fetch(c.Context, entry.Config.URL)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to fetch feed: %v", err), ExitDataError)
	}

	decisions := feed.Filter(entry.Config, items)
	matched := 0
	for _, d := range decisions {
		if d.Matched {
			matched++
		}
	}

	return outputJSON(map[string]interface{}{
		"name":    entry.Config.Name,
		"url":     entry.Config.URL,
		"total":   len(decisions),
		"matched": matched,
		"items":   decisions,
	})
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Log job status and collection changes until interrupted",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "status-interval",
				Value: status.DefaultInterval,
				Usage: "How often to poll the job status",
			},
			&cli.DurationFlag{
				Name:  "config-interval",
				Usage: "How often to reload the collection (0: once)",
			},
		},
		Action: watch,
	}
}

func watch(c *cli.Context) error {
	statusInterval := c.Duration("status-interval")
	if statusInterval <= 0 {
		return cli.Exit("--status-interval must be positive", ExitUsageError)
	}
	if c.Duration("config-interval") < 0 {
		return cli.Exit("--config-interval must not be negative", ExitUsageError)
	}

	ctx, stop := runContext(c.Context)
	defer stop()

	cl := getClient(c)

	poller := status.New(cl)
	poller.OnChange(func(st model.JobStatus) {
		slog.Info("job status changed", "running", st.Running)
	})
	statusTask := poller.Start(ctx, statusInterval)
	defer statusTask.Stop()

	coll := collection.New(cl)
	coll.OnChange(func(entries []collection.Entry, err error) {
		if err != nil {
			slog.Warn("collection unavailable", "err", err)
			return
		}
		slog.Info("collection loaded", "count", len(entries))
	})
	if interval := c.Duration("config-interval"); interval > 0 {
		configTask := coll.Revalidate(ctx, interval)
		defer configTask.Stop()
	} else {
		_ = coll.Refresh(ctx)
	}

	<-ctx.Done()
	return nil
}

func importOPML(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: trss-cli import --download-dir <dir> <opml-file>", ExitUsageError)
	}

	file, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open OPML file: %v", err), ExitDataError)
	}
	defer file.Close()

	entries, err := opml.Parse(file, c.String("download-dir"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to parse OPML: %v", err), ExitDataError)
	}

	coll := collection.New(getClient(c))

	imported := 0
	var errs []string
	for _, e := range entries {
		if err := coll.Create(c.Context, e); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", e.URL, err))
			continue
		}
		imported++
	}

	return outputJSON(map[string]interface{}{
		"success":  len(errs) == 0,
		"imported": imported,
		"skipped":  len(entries) - imported,
		"total":    len(entries),
		"errors":   errs,
	})
}

func exportEntries(c *cli.Context) error {
	format := c.String("format")
	switch format {
	case configfile.FormatJSON, configfile.FormatTOML, "opml":
	default:
		return cli.Exit(fmt.Sprintf("Unknown format %q", format), ExitUsageError)
	}

	configs, err := getClient(c).List(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to get config entries: %v", err), ExitDataError)
	}

	outputPath := c.String("output")
	var writer io.Writer = os.Stdout
	if outputPath != "" {
		file, err := os.Create(outputPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to create output file: %v", err), ExitDataError)
		}
		defer file.Close()
		writer = file
	}

	if format == "opml" {
		err = opml.Generate(writer, configs)
	} else {
		err = configfile.Write(writer, format, configs)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to export: %v", err), ExitDataError)
	}

	if outputPath != "" {
		return outputJSON(map[string]interface{}{
			"success": true,
			"file":    outputPath,
			"count":   len(configs),
		})
	}
	return nil
}

// runContext returns a context cancelled on interrupt.
func runContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
