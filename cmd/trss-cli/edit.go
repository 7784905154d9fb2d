package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/robertmeta/trss-cli/collection"
	"github.com/robertmeta/trss-cli/draft"
	"github.com/robertmeta/trss-cli/listfield"
	"github.com/robertmeta/trss-cli/model"
	"github.com/urfave/cli/v2"
)

// flagName turns a list field's wire name into a flag name.
func flagName(f listfield.Field) string {
	return strings.ReplaceAll(string(f), "_", "-")
}

// entryFlags are shared by create and edit. On edit only flags that are set
// change the entry; list flags append.
func entryFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Entry name"},
		&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Feed URL"},
		&cli.StringFlag{Name: "download-dir", Aliases: []string{"d"}, Usage: "Download directory"},
		&cli.BoolFlag{Name: "disabled", Usage: "Disable the entry (new entries start disabled)"},
		&cli.StringFlag{Name: "internal", Usage: "Opaque internal value (empty or 0 clears)"},
		&cli.StringFlag{Name: "fetch-interval", Usage: "Seconds to wait before fetching this feed (empty or 0 clears)"},
		&cli.StringFlag{Name: "download-after", Usage: "Only match items published after this time (e.g., 2024-01-02, 7d, unix seconds)"},
		&cli.StringFlag{Name: "expire-time", Usage: "Stop fetching after this time (e.g., 2024-06-30, unix seconds)"},
	}
	for _, f := range listfield.Fields {
		flags = append(flags, &cli.StringSliceFlag{
			Name:  flagName(f),
			Usage: fmt.Sprintf("Append a value to %s", f),
		})
	}
	return flags
}

// listFlags edit or remove existing list values by position.
func listFlags() []cli.Flag {
	var flags []cli.Flag
	for _, f := range listfield.Fields {
		name := flagName(f)
		flags = append(flags,
			&cli.StringSliceFlag{
				Name:  "set-" + name,
				Usage: fmt.Sprintf("Replace a %s value, as <position>=<value>", f),
			},
			&cli.IntSliceFlag{
				Name:  "remove-" + name,
				Usage: fmt.Sprintf("Remove the %s value at a position", f),
			},
			&cli.BoolFlag{
				Name:  "clear-" + name,
				Usage: fmt.Sprintf("Remove all %s values", f),
			},
		)
	}
	return flags
}

// applyScalars copies the set scalar flags onto e.
func applyScalars(c *cli.Context, e model.ConfigEntry) (model.ConfigEntry, error) {
	if c.IsSet("name") {
		e.Name = c.String("name")
	}
	if c.IsSet("url") {
		e.URL = c.String("url")
	}
	if c.IsSet("download-dir") {
		e.DownloadDir = c.String("download-dir")
	}
	if c.IsSet("disabled") {
		e.Disabled = c.Bool("disabled")
	}
	if c.IsSet("internal") {
		v, err := model.ParseOptionalInt(c.String("internal"))
		if err != nil {
			return e, fmt.Errorf("internal: %w", err)
		}
		e.Internal = v
	}
	if c.IsSet("fetch-interval") {
		v, err := model.ParseOptionalInt(c.String("fetch-interval"))
		if err != nil {
			return e, fmt.Errorf("fetch-interval: %w", err)
		}
		e.FetchInterval = v
	}
	if c.IsSet("download-after") {
		t, err := model.ParseOptionalTime(c.String("download-after"))
		if err != nil {
			return e, fmt.Errorf("download-after: %w", err)
		}
		e.DownloadAfter = t
	}
	if c.IsSet("expire-time") {
		t, err := model.ParseOptionalTime(c.String("expire-time"))
		if err != nil {
			return e, fmt.Errorf("expire-time: %w", err)
		}
		e.ExpireTime = t
	}
	return e, nil
}

// applyPositional applies the clear, set and remove flags of one field.
// Positions refer to the list as it was before any removal.
func applyPositional(c *cli.Context, f listfield.Field, e model.ConfigEntry) (model.ConfigEntry, error) {
	name := flagName(f)
	if c.Bool("clear-" + name) {
		e = f.Set(e, nil)
	}

	for _, arg := range c.StringSlice("set-" + name) {
		pos, value, ok := strings.Cut(arg, "=")
		if !ok {
			return e, fmt.Errorf("set-%s: expected <position>=<value>, got %q", name, arg)
		}
		i, err := strconv.Atoi(pos)
		if err != nil {
			return e, fmt.Errorf("set-%s: invalid position %q", name, pos)
		}
		if e, err = f.Edit(e, i, value); err != nil {
			return e, fmt.Errorf("set-%s: %w", name, err)
		}
	}

	removals := slices.Clone(c.IntSlice("remove-" + name))
	slices.Sort(removals)
	removals = slices.Compact(removals)
	for i := len(removals) - 1; i >= 0; i-- {
		var err error
		if e, err = f.Remove(e, removals[i]); err != nil {
			return e, fmt.Errorf("remove-%s: %w", name, err)
		}
	}
	return e, nil
}

// appendValues commits each list flag value through the session's pending
// input, the same path an interactive editor uses.
func appendValues(c *cli.Context, drafts *draft.Manager, h draft.Handle) error {
	for _, f := range listfield.Fields {
		for _, v := range c.StringSlice(flagName(f)) {
			if err := drafts.SetPending(h, f, v); err != nil {
				return err
			}
			if _, err := drafts.CommitPending(h, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// fillDraft applies every entry flag to the open session.
func fillDraft(c *cli.Context, drafts *draft.Manager, h draft.Handle, positional bool) error {
	err := drafts.Mutate(h, func(e model.ConfigEntry) (model.ConfigEntry, error) {
		e, err := applyScalars(c, e)
		if err != nil || !positional {
			return e, err
		}
		for _, f := range listfield.Fields {
			if e, err = applyPositional(c, f, e); err != nil {
				return e, err
			}
		}
		return e, nil
	})
	if err != nil {
		return err
	}
	return appendValues(c, drafts, h)
}

func createEntry(c *cli.Context) error {
	coll := collection.New(getClient(c))
	drafts := draft.NewManager(coll)

	h, err := drafts.OpenCreate()
	if err != nil {
		return cli.Exit(err.Error(), ExitGeneralError)
	}
	if err := fillDraft(c, drafts, h, false); err != nil {
		_ = drafts.Cancel(h)
		return cli.Exit(err.Error(), ExitUsageError)
	}

	working, err := drafts.Working(h)
	if err != nil {
		return cli.Exit(err.Error(), ExitGeneralError)
	}
	if err := drafts.Submit(c.Context, h); err != nil {
		return exitError("Failed to create entry", err)
	}

	return outputJSON(map[string]interface{}{
		"success": true,
		"config":  working,
	})
}

func editEntry(c *cli.Context) error {
	index, err := parseIndex(c, "edit <index> [flags]")
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

	drafts := draft.NewManager(coll)
	h, err := drafts.OpenEntry(entry)
	if err != nil {
		return cli.Exit(err.Error(), ExitGeneralError)
	}
	if err := fillDraft(c, drafts, h, true); err != nil {
		_ = drafts.Cancel(h)
		return cli.Exit(err.Error(), ExitUsageError)
	}

	working, err := drafts.Working(h)
	if err != nil {
		return cli.Exit(err.Error(), ExitGeneralError)
	}
	if working.Equal(entry.Config) {
		_ = drafts.Cancel(h)
		return outputJSON(map[string]interface{}{
			"success": true,
			"changed": false,
			"index":   index,
			"config":  working,
		})
	}

	if err := drafts.Submit(c.Context, h); err != nil {
		return exitError("Failed to update entry", err)
	}

	return outputJSON(map[string]interface{}{
		"success": true,
		"changed": true,
		"index":   index,
		"config":  working,
	})
}
