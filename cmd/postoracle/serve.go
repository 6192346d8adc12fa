package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stake-plus/postoracle/src/api"
	"github.com/stake-plus/postoracle/src/data"
	"github.com/stake-plus/postoracle/src/logging"
	"github.com/stake-plus/postoracle/src/observers"
	"github.com/stake-plus/postoracle/src/wallet"
	"github.com/stake-plus/postoracle/src/workflow"
)

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.String("port", "", "Override PORT")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.Port = *port
	}
	logger := logging.New("serve")

	provider, err := wallet.Detect(cfg.Wallet, wallet.AutoApprove{})
	if err != nil {
		if !errors.Is(err, wallet.ErrWalletUnavailable) {
			return err
		}
		logger.Printf("no wallet configured, submissions will fail with %q", err)
	}

	var hooks workflow.Hooks
	var metrics *observers.Metrics
	if cfg.Metrics {
		metrics = observers.NewMetrics()
		hooks.Poll = append(hooks.Poll, metrics)
		hooks.Stages = append(hooks.Stages, metrics)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = data.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		ttl := cfg.PollInterval * time.Duration(cfg.PollMaxAttempts+1)
		stream := observers.NewStream(rdb, instanceName(), ttl, logging.New("redis"))
		hooks.Poll = append(hooks.Poll, stream)
		hooks.Stages = append(hooks.Stages, stream)
		logger.Printf("publishing status events to redis stream %s", data.StatusStream)
	}

	if cfg.Discord.Token != "" {
		dg, err := observers.OpenDiscord(cfg.Discord.Token)
		if err != nil {
			return err
		}
		hooks.Poll = append(hooks.Poll, observers.NewAnnouncer(dg, cfg.Discord.ChannelID, cfg.IPFSGateway, logging.New("discord")))
	}

	pipeline, err := workflow.Open(ctx, cfg, provider, logging.New("pipeline"), hooks)
	if err != nil {
		return err
	}
	defer pipeline.Close()
	if metrics != nil {
		metrics.TrackPoller(pipeline.Poller())
	}

	srv, err := api.NewServer(cfg, api.Options{
		Pipeline:        pipeline,
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		SubmitPerMinute: cfg.SubmitPerMinute,
		IPFSGateway:     cfg.IPFSGateway,
		Metrics:         metrics,
		Logger:          logging.New("api"),
	})
	if err != nil {
		return err
	}
	logger.Printf("contract %s on %s, oracle %s", cfg.Contract().Hex(), cfg.RPCURL, cfg.OracleEndpoint())
	return srv.Run(ctx)
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "postoracle"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
