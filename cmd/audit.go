package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/tvlink/relay/internal/config"
	"github.com/tvlink/relay/internal/logx"
	"github.com/tvlink/relay/internal/storage"
)

func runAudit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.tvlink/config.toml)")
	dbPath := fs.String("db", "", "Path to audit database (default: audit_db from config)")
	limit := fs.Int("limit", 20, "Maximum entries to show")
	tvID := fs.String("tv", "", "Only show entries for this TV id")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tvlink audit [options]\n\nList recent pairing transitions, newest first.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if *limit <= 0 {
		fmt.Fprintln(stderr, "Error: --limit must be positive")
		return 1
	}

	path := *dbPath
	if path == "" {
		fileCfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		path = fileCfg.AuditDB
	}
	if path == "" {
		dir, err := config.DefaultDir()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		path = filepath.Join(dir, config.DefaultAuditDBName)
	}
	// Opening would create an empty database; report the missing file instead.
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(stderr, "Error: audit database not found: %s\n", path)
		return 1
	}

	store, err := storage.NewSQLiteStore(path, logx.Nop())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	var entries []*storage.PairingAuditEntry
	if *tvID != "" {
		entries, err = store.ListPairingAuditForTV(*tvID, *limit)
	} else {
		entries, err = store.ListPairingAudit(*limit)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(auditJSON(entries))
		return 0
	}
	writeAuditOutput(stdout, entries)
	return 0
}

type auditEntryJSON struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	TVID      string `json:"tv_id"`
	MobileID  string `json:"mobile_id"`
	Action    string `json:"action"`
	At        string `json:"at"`
}

func auditJSON(entries []*storage.PairingAuditEntry) []auditEntryJSON {
	out := make([]auditEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryJSON{
			ID:        e.ID,
			SessionID: e.SessionID,
			TVID:      e.TVID,
			MobileID:  e.MobileID,
			Action:    e.Action,
			At:        e.At.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func writeAuditOutput(w io.Writer, entries []*storage.PairingAuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No pairing audit entries.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tTV\tSESSION\tMOBILE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.At.Local().Format("2006-01-02 15:04:05"), e.Action, e.TVID, e.SessionID, e.MobileID)
	}
	tw.Flush()
}
