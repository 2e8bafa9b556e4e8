package main

import (
	"fmt"
	"time"

	"github.com/RichardoC/aura/internal/term"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List recently uploaded files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		files := a.store.RecentFiles()
		if len(files) == 0 {
			fmt.Fprintln(out, "No recent files.")
			return nil
		}
		for _, f := range files {
			fmt.Fprintf(out, "%s  %s\n", term.FileLabel(f), humanize.Time(time.UnixMilli(f.TS)))
		}
		return nil
	},
}
