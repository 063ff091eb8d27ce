package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattjoyce/supactl/internal/config"
	"gopkg.in/yaml.v3"
)

func runConfigNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printConfigHelp()
		if len(args) == 0 {
			return 1
		}
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "lock":
		return runConfigLock(actionArgs)
	case "show":
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigHelp() {
	fmt.Println("Usage: supactl config <action> [flags]")
	fmt.Println("Actions: check, lock, show")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Println("  supactl config check --config ./config.yaml")
	fmt.Println("  supactl config lock")
	fmt.Println("  supactl config show")
}

// resolveConfigFile resolves an explicit path or falls back to discovery.
// lock and check need a real file on disk, not built-in defaults.
func resolveConfigFile(configPath string) (string, error) {
	if configPath == "" {
		discovered, ok := config.Discover()
		if !ok {
			return "", errors.New("no configuration file found (use --config or create ./config.yaml)")
		}
		configPath = discovered
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(absPath); err != nil {
		return "", fmt.Errorf("config file not found: %w", err)
	}
	return absPath, nil
}

func runConfigCheck(args []string) int {
	var configPath string

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	resolved, err := resolveConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Syntax and semantics first, then file integrity.
	if _, err := config.Load(resolved); err != nil {
		fmt.Fprintf(os.Stderr, "✗ Config invalid: %v\n", err)
		return 1
	}
	fmt.Printf("✓ Config valid: %s\n", resolved)

	if err := config.Check(resolved); err != nil {
		fmt.Fprintf(os.Stderr, "✗ Integrity check failed: %v\n", err)
		return 1
	}
	fmt.Println("✓ Integrity verified")
	return 0
}

func runConfigLock(args []string) int {
	var configPath string

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	resolved, err := resolveConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if _, err := config.Load(resolved); err != nil {
		fmt.Fprintf(os.Stderr, "✗ Refusing to lock invalid config: %v\n", err)
		return 1
	}

	manifestPath, err := config.Lock(resolved)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Lock failed: %v\n", err)
		return 1
	}
	fmt.Printf("✓ Config locked: %s\n", manifestPath)
	return 0
}

func runConfigShow(args []string) int {
	var configPath string

	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.LoadOrDefaults(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encode error: %v\n", err)
		return 1
	}
	fmt.Print(string(raw))
	return 0
}
