package cmd

import (
	"fmt"

	"github.com/xlttj/liveserve/pkg/supervisor"
	"github.com/xlttj/liveserve/pkg/workspace"
)

type FavoritesCmd struct{}

func (f *FavoritesCmd) Run(cli *CLI) error {
	svc, opts, err := cli.open()
	if err != nil {
		return err
	}
	defer closeService(svc, opts)

	sites, err := svc.Favorites()
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		printInfo(cli.out(), "No favorites yet.")
		return nil
	}
	printSites(cli.out(), sites)
	return nil
}

// MetaCmd shows a folder's metadata, changing it first when flags are given
type MetaCmd struct {
	Path       string `arg:"" name:"PATH" help:"Folder"`
	Alias      string `xor:"alias" help:"Set the display name"`
	ClearAlias bool   `name:"clear-alias" xor:"alias" help:"Remove the display name"`
	Favorite   bool   `xor:"favorite" help:"Mark as favorite"`
	NoFavorite bool   `name:"no-favorite" xor:"favorite" help:"Unmark as favorite"`
	Forget     bool   `xor:"alias,favorite" help:"Delete the folder's metadata"`
}

func (m *MetaCmd) Run(cli *CLI) error {
	svc, opts, err := cli.open()
	if err != nil {
		return err
	}
	defer closeService(svc, opts)

	path, err := supervisor.Normalize(m.Path)
	if err != nil {
		return err
	}

	if m.Forget {
		if err := svc.Store().DeleteMeta(path); err != nil {
			return err
		}
		printSuccess(cli.out(), "Forgot %s", path)
		return nil
	}

	var changes workspace.MetaChanges
	switch {
	case m.ClearAlias:
		empty := ""
		changes.Alias = &empty
	case m.Alias != "":
		changes.Alias = &m.Alias
	}
	switch {
	case m.Favorite:
		fav := true
		changes.Favorite = &fav
	case m.NoFavorite:
		fav := false
		changes.Favorite = &fav
	}

	var meta workspace.Meta
	if changes.Alias != nil || changes.Favorite != nil {
		if meta, err = svc.Store().UpdateMeta(path, changes); err != nil {
			return err
		}
		printSuccess(cli.out(), "Updated %s", path)
	} else {
		var ok bool
		if meta, ok, err = svc.Store().Meta(path); err != nil {
			return err
		}
		if !ok {
			printWarning(cli.out(), "No metadata for %s", path)
			return nil
		}
	}

	out := cli.out()
	alias := meta.Alias
	if alias == "" {
		alias = "(none)"
	}
	fmt.Fprintf(out, "path:     %s\n", path)
	fmt.Fprintf(out, "alias:    %s\n", alias)
	fmt.Fprintf(out, "favorite: %t\n", meta.Favorite)
	fmt.Fprintf(out, "created:  %s\n", meta.Created.Local().Format("2006-01-02 15:04:05"))
	return nil
}
