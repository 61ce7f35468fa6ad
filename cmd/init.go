package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tvlink/relay/internal/config"
)

func runInit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	path := fs.String("config", "", "Where to write the config (default: ~/.tvlink/config.toml)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tvlink init [options]\n\nWrite a starter config file. An existing file is left untouched.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	target := *path
	if target == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		target = p
	}

	if _, err := os.Stat(target); err == nil {
		fmt.Fprintf(stdout, "Config already exists: %s\n", target)
		return 0
	}
	if err := config.WriteDefault(target); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Wrote %s\n", target)
	return 0
}
