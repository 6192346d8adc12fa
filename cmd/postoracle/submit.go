package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/stake-plus/postoracle/src/api"
	"github.com/stake-plus/postoracle/src/ledger"
	"github.com/stake-plus/postoracle/src/logging"
	"github.com/stake-plus/postoracle/src/poller"
	"github.com/stake-plus/postoracle/src/wallet"
	"github.com/stake-plus/postoracle/src/workflow"
)

func runConnect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	provider, err := wallet.Detect(cfg.Wallet, wallet.NewPromptApprover(os.Stdin, os.Stderr))
	if err != nil {
		return err
	}
	p := workflow.New(workflow.Deps{Provider: provider})
	account, err := p.Connect(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", account.Hex(), provider.Name())
	return nil
}

func runSubmit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	username := fs.String("username", "", "Author username")
	content := fs.String("content", "", "Content to moderate; '-' reads stdin")
	watch := fs.Bool("watch", true, "Follow the poll session until it ends")
	verbose := fs.Bool("v", false, "Log pipeline internals to stderr")
	yes := fs.Bool("yes", false, "Approve wallet prompts without asking")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text := *content
	if text == "-" {
		if !*yes {
			return fmt.Errorf("-content - consumes stdin, so wallet prompts need -yes")
		}
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		text = string(raw)
	}

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	var approver wallet.Approver = wallet.NewPromptApprover(os.Stdin, os.Stderr)
	if *yes {
		approver = wallet.AutoApprove{}
	}
	provider, err := wallet.Detect(cfg.Wallet, approver)
	if err != nil {
		return err
	}

	logger := logging.Discard()
	if *verbose {
		logger = logging.New("pipeline")
	}
	hooks := workflow.Hooks{
		Stages: []workflow.StageObserver{workflow.StageFunc(func(ev workflow.StageEvent) {
			if ev.Stage != workflow.StageFailed {
				fmt.Fprintf(os.Stderr, "  %s\n", ev.Stage)
			}
		})},
		Poll: []poller.Observer{poller.Funcs{OnUpdate: printUpdate(cfg.IPFSGateway)}},
	}
	pipeline, err := workflow.Open(ctx, cfg, provider, logger, hooks)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	sub, err := pipeline.Submit(ctx, workflow.Request{Username: *username, Content: text})
	if err != nil {
		return err
	}
	fmt.Printf("post %s submitted by %s in tx %s\n", sub.PostID, sub.Author.Hex(), sub.TxHash.Hex())
	if !*watch {
		return nil
	}

	out, err := sub.Session.Wait(ctx)
	if err != nil {
		return err
	}
	switch out.State {
	case poller.Exhausted:
		fmt.Printf("still pending after %d checks; run `postoracle status -id %s` later\n", out.Attempts, sub.PostID)
	case poller.Terminal:
		fmt.Printf("final status: %s\n", out.Last.Status)
	}
	return nil
}

func printUpdate(gateway string) func(poller.Update) {
	return func(u poller.Update) {
		if u.Err != nil {
			fmt.Printf("  check %d: %s\n", u.Tick, logging.Describe(u.Err))
			return
		}
		line := fmt.Sprintf("  check %d: %s", u.Tick, u.Post.Status)
		if u.Post.HasScore() {
			line += fmt.Sprintf(" (similarity %d)", u.Post.SimilarityScore)
		}
		if link := u.Post.GatewayURL(gateway); link != "" {
			line += " " + link
		}
		fmt.Println(line)
	}
}

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	rawID := fs.String("id", "", "Post id")
	timeout := fs.Duration("timeout", 30*time.Second, "RPC timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, ok := new(big.Int).SetString(*rawID, 10)
	if !ok || id.Sign() < 0 {
		return fmt.Errorf("-id must be a non-negative integer, got %q", *rawID)
	}

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client, err := ledger.OpenReadClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	post, err := client.GetPost(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("post %s by %s (%s)\n", post.ID, post.Username, post.Author.Hex())
	fmt.Printf("status: %s\n", post.Status)
	if post.HasScore() {
		fmt.Printf("similarity: %d\n", post.SimilarityScore)
	}
	if link := post.GatewayURL(cfg.IPFSGateway); link != "" {
		fmt.Printf("content: %s\n", link)
	}
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("sub", "", "Token subject (client name)")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*subject) == "" {
		return fmt.Errorf("-sub is required")
	}
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	tok, err := api.IssueToken([]byte(cfg.JWTSecret), *subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
