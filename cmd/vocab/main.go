package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
)

const (
	version = "1.0.0"
)

var (
	logLevel string
	timeout  time.Duration
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	var err error
	switch command {
	case "build-tree":
		err = handleBuildTree(os.Args[2:])
	case "build-db":
		err = handleBuildDB(os.Args[2:])
	case "match":
		err = handleMatch(os.Args[2:])
	case "score":
		err = handleScore(os.Args[2:])
	case "stats":
		err = handleStats(os.Args[2:])
	case "health":
		err = handleHealth(os.Args[2:])
	case "version":
		fmt.Printf("vocab version %s\n", version)
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags registers the flags shared by every subcommand
func commonFlags(fs *flag.FlagSet) {
	fs.StringVar(&logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout for remote commands")
}

func newLogger() *observability.Logger {
	return observability.NewLoggerWithFormat(observability.ParseLogLevel(logLevel), observability.ConsoleFormat, os.Stderr)
}

func showUsage() {
	fmt.Println(`vocab - vocabulary tree tools

Usage:
  vocab <command> [flags]

Commands:
  build-tree      Build a vocabulary tree from descriptor files
  build-db        Quantize database images and write the BoW indices
  match           Score query images and vote for their landmark
  score           Score a descriptor file against a running server
  stats           Show server database statistics
  health          Check server health
  version         Show version information
  help            Show this help message

Examples:
  # Build a binary tree with k=10, depth 6
  vocab build-tree -list train.txt -out tree.yaml.gz -k 10 -depth 6

  # Build a TF-IDF weighted, L1 normalized database
  vocab build-db -list db.txt -tree tree.yaml.gz -inv inv.yaml.gz -dir dir.yaml.gz

  # Match queries, writing ranked lists to ./ranked
  vocab match -tree tree.yaml.gz -inv inv.yaml.gz -db-gt db_gt.txt -queries queries.txt -ranked-dir ranked -top 10

  # Score a query against the server
  vocab score -server localhost:50051 -file query.yaml.gz -top 5

Use "vocab <command> -h" for the flags of a command.`)
}
