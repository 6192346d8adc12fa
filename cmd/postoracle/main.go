package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/stake-plus/postoracle/src/config"
)

const usage = `usage: postoracle <command> [flags]

commands:
  serve     run the HTTP API
  connect   authorize the configured wallet and print its account
  submit    submit content and follow its moderation
  status    read a post from the ledger
  token     issue an API bearer token
`

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx, args)
	case "connect":
		err = runConnect(ctx, args)
	case "submit":
		err = runSubmit(ctx, args)
	case "status":
		err = runStatus(ctx, args)
	case "token":
		err = runToken(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("%s: %v", cmd, err)
	}
}

// loadConfig validates unless lenient; lenient callers only need a subset of keys.
func loadConfig(lenient bool) (config.Config, error) {
	cfg, err := config.Load()
	var cerr *config.ConfigurationError
	if err != nil && lenient && errors.As(err, &cerr) {
		return cfg, nil
	}
	return cfg, err
}
