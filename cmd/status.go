package main

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tvlink/relay/internal/server"
)

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", "127.0.0.1:5500", "Relay address to query")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tvlink status [options]\n\nShow the status of a running relay. The relay only answers local requests.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	status, err := queryStatus(*addr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(status)
		return 0
	}
	writeStatusOutput(stdout, status)
	return 0
}

// writeStatusOutput renders human-readable relay status.
func writeStatusOutput(w io.Writer, status *server.StatusResponse) {
	fmt.Fprintf(w, "Relay Status\n")
	fmt.Fprintf(w, "============\n")
	fmt.Fprintf(w, "Listening:    %s\n", status.ListeningAddress)
	fmt.Fprintf(w, "TLS:          %v\n", status.TLSEnabled)
	fmt.Fprintf(w, "Clients:      %d connected\n", status.ConnectedClients)
	fmt.Fprintf(w, "TVs:          %d\n", status.TVCount)
	fmt.Fprintf(w, "Mobiles:      %d\n", status.MobileCount)
	fmt.Fprintf(w, "Emulators:    %d\n", status.EmulatorCount)
	fmt.Fprintf(w, "Pairing:      %d session(s)\n", status.ActivePairingSessions)
	fmt.Fprintf(w, "Uptime:       %s\n", formatUptime(status.UptimeSeconds))
}

// queryStatus tries HTTPS first, then plain HTTP.
func queryStatus(addr string) (*server.StatusResponse, error) {
	if resp, err := queryStatusWithScheme("https", addr); err == nil {
		return resp, nil
	}
	resp, err := queryStatusWithScheme("http", addr)
	if err != nil {
		return nil, fmt.Errorf("relay is not running at %s (or not reachable): %w", addr, err)
	}
	return resp, nil
}

// queryStatusWithScheme GETs /status. Certificate verification is skipped
// because the relay's certificate is self-signed.
func queryStatusWithScheme(scheme, addr string) (*server.StatusResponse, error) {
	client := &http.Client{
		Timeout: 2 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	resp, err := client.Get(fmt.Sprintf("%s://%s/status", scheme, addr))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var status server.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &status, nil
}

// formatUptime formats an uptime in seconds as a human-readable string.
// Examples: "45s", "5m 23s", "2h 15m", "3d 4h"
func formatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", seconds)
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
}
