package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/tandemterm/host/internal/config"
	"github.com/tandemterm/host/internal/storage"
)

func runSessions(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var storePath string
	var limit int
	fs.StringVar(&storePath, "store", "", "Path to the audit database (default: ~/.tandemterm/tandemterm.db)")
	fs.IntVar(&limit, "n", 20, "Maximum number of sessions to list")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tandemterm sessions [options]\n\nList recently active sessions.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if storePath == "" {
		path, err := config.DefaultStorePath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		storePath = path
	}

	if _, err := os.Stat(storePath); os.IsNotExist(err) {
		fmt.Fprintln(stdout, "No sessions recorded yet.")
		return 0
	}

	store, err := storage.NewSQLiteStore(storePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	sessions, err := store.ListSessions(limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(sessions) == 0 {
		fmt.Fprintln(stdout, "No sessions recorded yet.")
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tFIRST SEEN\tLAST SEEN")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			s.ID,
			s.FirstSeen.Local().Format(time.DateTime),
			s.LastSeen.Local().Format(time.DateTime))
	}
	tw.Flush()
	return 0
}
