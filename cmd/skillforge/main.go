package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/skillforge/internal/config"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	defaultDaemonAddr = "http://127.0.0.1:7433"
	pidFile           = "skillforged.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "config":
		err = cmdConfig()
	case "set-key":
		err = cmdSetKey(args)
	case "generate":
		err = cmdGenerate(args)
	case "submit":
		err = cmdSubmit(args)
	case "job":
		err = cmdJob(args)
	case "progress":
		err = cmdProgress(args)
	case "stats":
		err = cmdStats(args)
	case "worker":
		err = cmdWorker()
	case "mcp":
		err = cmdMCP(args)
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("skillforge %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Skillforge - AI-generated practice with graded submissions

Usage:
  skillforge <command> [arguments]

Daemon Commands:
  start                         Start the skillforge daemon
  stop                          Stop the skillforge daemon
  status                        Show daemon status
  logs                          View daemon logs
  worker                        Grade queued submissions in the foreground

Setup Commands:
  config                        Show current configuration
  set-key <gemini|groq> <key>   Add an API key to the key pool

Content Commands:
  generate <kind> <topic>       Generate a roadmap, quiz or problem
      --level, --count, --difficulty

Grading Commands:
  submit <request.json>         Grade a submission (--async to queue it)
  job <id>                      Show the status of a queued submission
  progress <user> [topic]       Show per-topic progress

Analytics Commands:
  stats <user>                  Show practice overview
  stats <user> topics           Show per-topic breakdown
  stats <user> submissions      Show recent submissions
  stats <user> progression      Show daily activity

Integration Commands:
  mcp [--http addr]             Start MCP server (stdio by default)

Other:
  help                          Show this help message
  version                       Show version information`)
}

// daemonAddr returns the base URL of the local daemon
func daemonAddr() string {
	cfg, err := config.Load()
	if err != nil {
		return defaultDaemonAddr
	}
	host := cfg.Server.Bind
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

// renderProgressBar creates a visual progress bar for a 0-100 percentage
func renderProgressBar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
