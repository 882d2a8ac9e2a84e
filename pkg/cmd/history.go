package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/xlttj/liveserve/pkg/app"
	"github.com/xlttj/liveserve/pkg/supervisor"

	"github.com/dustin/go-humanize"
)

// HistoryCmd groups the history subcommands
type HistoryCmd struct {
	List   HistoryListCmd   `cmd:"" default:"1" help:"List recently served folders, most recent first"`
	Remove HistoryRemoveCmd `cmd:"" aliases:"rm" help:"Forget a folder; its alias and favorite flag are kept"`
	Prune  HistoryPruneCmd  `cmd:"" help:"Forget folders that no longer exist"`
}

type HistoryListCmd struct{}

func (h *HistoryListCmd) Run(cli *CLI) error {
	svc, opts, err := cli.open()
	if err != nil {
		return err
	}
	defer closeService(svc, opts)

	sites, err := svc.History()
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		printInfo(cli.out(), "No folders served yet.")
		return nil
	}
	printSites(cli.out(), sites)
	return nil
}

type HistoryRemoveCmd struct {
	Path string `arg:"" name:"PATH" help:"Folder to forget"`
}

func (h *HistoryRemoveCmd) Run(cli *CLI) error {
	svc, opts, err := cli.open()
	if err != nil {
		return err
	}
	defer closeService(svc, opts)

	path, err := supervisor.Normalize(h.Path)
	if err != nil {
		return err
	}
	before, err := svc.History()
	if err != nil {
		return err
	}
	remaining, err := svc.RemoveHistory(path)
	if err != nil {
		return err
	}
	if len(remaining) == len(before) {
		printWarning(cli.out(), "%s is not in the history", path)
		return nil
	}
	printSuccess(cli.out(), "Removed %s from history", path)
	return nil
}

type HistoryPruneCmd struct {
	Yes     bool `short:"y" help:"Delete without prompting"`
	Verbose bool `short:"v" help:"Verbose output"`
}

func (h *HistoryPruneCmd) Run(cli *CLI) error {
	svc, opts, err := cli.open()
	if err != nil {
		return err
	}
	defer closeService(svc, opts)
	out := cli.out()

	sites, err := svc.History()
	if err != nil {
		return err
	}
	if h.Verbose {
		printInfo(out, "Checking %d history entries", len(sites))
	}

	var stale []app.Site
	for _, site := range sites {
		if site.LastModified == nil {
			stale = append(stale, site)
		}
	}
	if len(stale) == 0 {
		printSuccess(out, "No missing folders to remove.")
		return nil
	}

	fmt.Fprintf(out, "Found %d missing folder(s):\n", len(stale))
	for _, s := range stale {
		fmt.Fprintf(out, "  - %s\n", s.Root)
	}
	if !h.Yes && !confirm(out, cli.in(), "Remove these folders from history?") {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	removed, err := svc.PruneHistory()
	if err != nil {
		return err
	}
	printSuccess(out, "Removed %d folder(s) from history.", len(removed))
	return nil
}

// confirm asks a yes/no question, defaulting to no
func confirm(out io.Writer, in io.Reader, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	resp, _ := bufio.NewReader(in).ReadString('\n')
	resp = strings.TrimSpace(strings.ToLower(resp))
	return resp == "y" || resp == "yes"
}

// printSites lists folders with their alias, favorite flag and state
func printSites(w io.Writer, sites []app.Site) {
	for _, site := range sites {
		mark := " "
		if site.Favorite {
			mark = "★"
		}
		state := "stopped"
		if site.Record != nil {
			state = string(site.Record.Status)
			if site.Record.Active() {
				state = site.Record.URL()
			}
		}
		modified := "missing"
		if site.LastModified != nil {
			modified = "modified " + humanize.Time(*site.LastModified)
		}

		yellow.Fprintf(w, "%s ", mark)
		blue.Fprintf(w, "%-24s", site.Name())
		fmt.Fprintf(w, " %s\n", site.Root)
		faint.Fprintf(w, "    %s, %s\n", state, modified)
	}
}
