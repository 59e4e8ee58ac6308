package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hostinger/garp-service/internal/announce"
	"github.com/hostinger/garp-service/internal/api"
	"github.com/hostinger/garp-service/internal/config"
	"github.com/hostinger/garp-service/internal/logger"
	"github.com/hostinger/garp-service/internal/sender"
	"github.com/spf13/pflag"
)

type options struct {
	confFile   string
	interval   *time.Duration
	statusAddr string
	debug      bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	var seconds int

	fs := pflag.NewFlagSet("garp-service", pflag.ContinueOnError)
	fs.StringVarP(&opts.confFile, "conf", "c", config.DefaultPath, "The configuration file for the GARP service")
	fs.IntVarP(&seconds, "interval", "i", 0, "The interval in seconds at which to re-send announcements. If not specified, they are sent once at startup")
	fs.StringVar(&opts.statusAddr, "status-addr", "", "Address for the read-only status endpoint (disabled when empty)")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if fs.Changed("interval") {
		if seconds < 0 {
			return nil, fmt.Errorf("invalid --interval %d: must not be negative", seconds)
		}
		d := time.Duration(seconds) * time.Second
		opts.interval = &d
	}

	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		logger.Fatal("%v", err)
	}
	logger.Init(opts.debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, announce.NetlinkResolver{}, sender.PcapOpener{}); err != nil {
		stop()
		logger.Fatal("%v", err)
	}
}

func run(ctx context.Context, opts *options, resolver announce.Resolver, opener sender.Opener) error {
	cfg, err := config.Load(opts.confFile)
	if err != nil {
		return err
	}
	logger.Info("Loaded %d interface(s) from %s", len(cfg.Descriptors), cfg.Path)

	anns, err := announce.NewBuilder(resolver).Build(cfg)
	if err != nil {
		return err
	}

	loop := sender.New(opener, anns)

	if opts.statusAddr != "" {
		srv := &http.Server{Addr: opts.statusAddr, Handler: (&api.API{Source: loop}).Handler()}
		go func() {
			logger.Info("Status server listening on %s", opts.statusAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Status server failed: %v", err)
			}
		}()
		defer srv.Close()
	}

	if opts.interval == nil {
		logger.Info("Sending announcements once")
	} else {
		logger.Info("Sending announcements every %s", *opts.interval)
	}

	err = loop.Run(ctx, opts.interval)
	if errors.Is(err, context.Canceled) {
		logger.Info("Received termination signal, stopped after %d cycle(s)", loop.Stats().Cycles)
		return nil
	}
	return err
}
