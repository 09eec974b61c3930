package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/shellmark/shellmark/pkg/config"
	"github.com/shellmark/shellmark/pkg/dialect"
	"github.com/shellmark/shellmark/pkg/recorder"
	"github.com/shellmark/shellmark/pkg/session"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCommand()
	case "integration":
		integrationCommand()
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "shellmark - Observe command lifecycles in an interactive shell over a PTY\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  shellmark run [-shell PATH] [-log FILE] [-config FILE] [-v]\n")
	fmt.Fprintf(os.Stderr, "  shellmark integration [dialect]\n")
	fmt.Fprintf(os.Stderr, "  shellmark help\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run          Spawn an instrumented interactive shell and record command lifecycles\n")
	fmt.Fprintf(os.Stderr, "  integration  Print the hook integration script for a shell dialect\n")
	fmt.Fprintf(os.Stderr, "  help         Show this help message\n")
}

func runCommand() {
	runFlags := flag.NewFlagSet("run", flag.ExitOnError)
	shellFlag := runFlags.String("shell", "", "Shell executable (default: $SHELL)")
	logFlag := runFlags.String("log", "", "Command log file (default: from config, then "+config.DefaultLogFile+")")
	configFlag := runFlags.String("config", "", "Config file (default: ~/.config/shellmark/config.toml)")
	verbose := runFlags.Bool("v", false, "Enable verbose output")

	runFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: shellmark run [-shell PATH] [-log FILE] [-config FILE] [-v]\n\n")
		fmt.Fprintf(os.Stderr, "Spawn an instrumented interactive shell on a PTY. The session looks and\n")
		fmt.Fprintf(os.Stderr, "behaves like a normal shell; command lifecycles are appended to the log file.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		runFlags.PrintDefaults()
	}

	if err := runFlags.Parse(os.Args[2:]); err != nil {
		log.Fatal(err)
	}

	configPath := *configFlag
	if configPath == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			log.Fatal(err)
		}
		configPath = defaultPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	// Flags override the config file.
	if *shellFlag != "" {
		cfg.Shell = *shellFlag
	}
	if *logFlag != "" {
		cfg.LogFile = *logFlag
	}
	if *verbose {
		cfg.Verbose = true
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		log.Fatal(err)
	}
	defer logFile.Close()

	var recorderOpts []recorder.Option
	if cfg.CaptureLimit > 0 {
		recorderOpts = append(recorderOpts, recorder.WithCaptureLimit(cfg.CaptureLimit))
	}
	if cfg.Verbose {
		recorderOpts = append(recorderOpts, recorder.WithVerbose(true))
	}

	sessionOpts := []session.Option{
		session.WithConsumer(recorder.New(logFile, recorderOpts...)),
		session.WithVerbose(cfg.Verbose),
	}
	if cfg.Shell != "" {
		d, shellPath, err := resolveShell(cfg.Shell)
		if err != nil {
			log.Fatal(err)
		}
		sessionOpts = append(sessionOpts, session.WithDialect(d))
		if shellPath != "" {
			sessionOpts = append(sessionOpts, session.WithShell(shellPath))
		}
	}

	if err := session.Run(sessionOpts...); err != nil {
		log.Fatal(err)
	}
}

func integrationCommand() {
	var d dialect.Dialect
	var err error
	if len(os.Args) > 2 {
		d, err = dialect.Lookup(os.Args[2])
	} else {
		d, err = dialect.Detect()
	}
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(d.Script())
}

// resolveShell interprets the configured shell as either a dialect name
// ("zsh") or an executable path ("/usr/bin/zsh"). For a bare name the
// session resolves the executable from PATH.
func resolveShell(shell string) (dialect.Dialect, string, error) {
	if d, err := dialect.Lookup(shell); err == nil {
		return d, "", nil
	}
	d, err := dialect.Lookup(filepath.Base(shell))
	if err != nil {
		return nil, "", err
	}
	return d, shell, nil
}
