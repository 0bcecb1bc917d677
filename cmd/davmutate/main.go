// Command davmutate serves the calendar and contact tools over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyp0633/davmutate/availability"
	"github.com/cyp0633/davmutate/cache"
	"github.com/cyp0633/davmutate/collection"
	"github.com/cyp0633/davmutate/davclient"
	"github.com/cyp0633/davmutate/internal/api"
	"github.com/cyp0633/davmutate/internal/config"
	"github.com/cyp0633/davmutate/internal/httpclient"
	"github.com/cyp0633/davmutate/mutation"
	"github.com/cyp0633/davmutate/retry"
	"github.com/cyp0633/davmutate/tools"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintln(os.Stderr, "davmutate:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	logger.Info("starting", "config", cfg.String())

	baseURL, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.Username != "" {
		transport = httpclient.NewBasicAuthTransport(cfg.Username, cfg.Password, transport, logger)
	}
	wrapper, err := httpclient.NewHttpClientWrapper(&http.Client{Transport: transport}, *baseURL, logger)
	if err != nil {
		return err
	}

	client := davclient.NewDAVClient(wrapper, davclient.Options{
		ServerURL: cfg.ServerURL,
		Executor:  retry.NewExecutor(cfg.RetryPolicy(), logger),
		Logger:    logger,
	})

	var store cache.Store
	if cfg.Cache.Path != "" {
		bolt, err := cache.OpenBoltStore(cfg.Cache.Path)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		store = bolt
	}
	collections := cache.New(store, cache.Config{MaxAge: cfg.Cache.MaxAge}, logger)
	defer collections.Close()

	calendars := collection.NewResolver(client, collection.ResolverOptions{
		Kind:      davclient.KindCalendar,
		Default:   cfg.DefaultCalendar,
		ServerURL: cfg.ServerURL,
		Logger:    logger,
	})
	addressBooks := collection.NewResolver(client, collection.ResolverOptions{
		Kind:      davclient.KindAddressBook,
		Default:   cfg.DefaultAddressBook,
		ServerURL: cfg.ServerURL,
		Logger:    logger,
	})

	events := mutation.NewCalendarService(client, collections, calendars, logger)
	contacts := mutation.NewContactService(client, collections, addressBooks, logger)
	free := availability.NewResolver(client, calendars, events.Reader(), availability.Options{
		Expander: availability.Expander{Location: cfg.Location(), MaxOccurrences: cfg.MaxOccurrences},
		Logger:   logger,
	})

	registry := tools.New(tools.Deps{
		Events:       events,
		Contacts:     contacts,
		Availability: free,
		Location:     cfg.Location(),
		AllowInvites: cfg.AllowInvites,
		Logger:       logger,
	})

	srv := api.New(api.Options{
		Registry: registry,
		Auth:     api.BearerAuth{Token: cfg.BearerToken},
		Logger:   logger,
	})
	if err := srv.Serve(ctx, cfg.Listen); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
