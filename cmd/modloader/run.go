package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/builderkit/modloader/cdp"
	"github.com/builderkit/modloader/config"
	"github.com/builderkit/modloader/dispatch"
	"github.com/builderkit/modloader/hostevent"
	"github.com/builderkit/modloader/jsruntime"
	"github.com/builderkit/modloader/loader"
	"github.com/builderkit/modloader/log"
	"github.com/builderkit/modloader/otel"
	"github.com/builderkit/modloader/records"
	"github.com/builderkit/modloader/route"
	"github.com/builderkit/modloader/storage"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var eventsURL string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the host event feed and activate modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if eventsURL != "" {
				cfg.Host.EventsURL = eventsURL
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&eventsURL, "events-url", "", "host event feed websocket URL, overrides the config file")

	return cmd
}

func newLogger(cfg config.LogConfig) (*log.Logger, error) {
	logger := log.New(nil, nil)
	if err := logger.SetLevel(cfg.Level); err != nil {
		return nil, err
	}
	if err := logger.SetCategoryFilter(cfg.CategoryFilter); err != nil {
		return nil, err
	}
	return logger, nil
}

func newTraceProvider(ctx context.Context, cfg config.TracingConfig) (otel.TraceProvider, error) {
	if cfg.Endpoint == "" {
		return otel.NewNoopTraceProvider(), nil
	}
	return otel.NewTraceProvider(ctx, cfg.Proto, cfg.Endpoint, cfg.Insecure)
}

// newRunner returns the runner selected by cfg and a func releasing it.
func newRunner(ctx context.Context, cfg config.RunnerConfig, logger *log.Logger) (loader.Runner, func(), error) {
	switch cfg.Kind {
	case config.RunnerCDP:
		client, err := cdp.Dial(ctx, cfg.CDPURL, logger)
		if err != nil {
			return nil, nil, err
		}
		release := func() {
			if err := client.Close(); err != nil {
				logger.Warnf("modloader:run", "closing cdp connection: %v", err)
			}
		}
		return cdp.NewRunner(client), release, nil
	default:
		return jsruntime.New(logger), func() {}, nil
	}
}

// hostCredentials prefers the credentials the host supplied and falls back
// to the configured static token.
func hostCredentials(state *dispatch.State, token string) records.CredentialsFunc {
	return func(ctx context.Context) (records.Credentials, error) {
		creds, err := state.Credentials(ctx)
		if errors.Is(err, records.ErrNoCredentials) && token != "" {
			return records.Credentials{Token: token}, nil
		}
		return creds, err
	}
}

func newResolver(cfg *config.Config, state *dispatch.State, logger *log.Logger) (*route.Resolver, error) {
	descs, remotes := cfg.Descriptors(state)

	client := records.NewClient(cfg.Records.BaseURL, cfg.Records.Timeout.Duration(),
		hostCredentials(state, cfg.Records.Token), logger)
	rs := make([]route.Remote, 0, len(remotes))
	for _, r := range remotes {
		rs = append(rs, route.Remote{
			Route: r,
			Lookup: &records.AccountLookup{
				Client:     client,
				Field:      r.Field,
				MatchField: r.MatchField,
			},
		})
	}

	return route.NewResolver(descs, rs, logger)
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Host.EventsURL == "" {
		return fmt.Errorf("%w: host.events_url is required to run", config.ErrInvalidConfig)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	tp, err := newTraceProvider(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("creating trace provider: %w", err)
	}
	defer func() {
		if serr := tp.Shutdown(context.Background()); serr != nil {
			logger.Warnf("modloader:run", "shutting down tracing: %v", serr)
		}
	}()

	runner, release, err := newRunner(ctx, cfg.Runner, logger)
	if err != nil {
		return fmt.Errorf("creating %s runner: %w", cfg.Runner.Kind, err)
	}
	defer release()

	state := dispatch.NewState()
	resolver, err := newResolver(cfg, state, logger)
	if err != nil {
		return err
	}

	var lopts []loader.Option
	if cfg.Cache.Dir != "" {
		lopts = append(lopts, loader.WithCache(&storage.LocalFilePersister{}, cfg.Cache.Dir))
	}
	ldr := loader.New(runner, logger, lopts...)

	g, gctx := errgroup.WithContext(ctx)
	emitter := hostevent.NewEmitter(gctx)
	d := dispatch.New(gctx, emitter, state, resolver, ldr, dispatch.Options{
		ReadyInterval:    cfg.Host.ReadyInterval.Duration(),
		ReadyMaxAttempts: cfg.Host.ReadyMaxAttempts,
		Logger:           logger,
	})

	feed, err := hostevent.DialFeed(gctx, cfg.Host.EventsURL, emitter, logger, cfg.Host.DialRetries)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := feed.Close(); cerr != nil {
			logger.Debugf("modloader:run", "closing feed: %v", cerr)
		}
	}()

	logger.Infof("modloader:run", "session:%s runner:%s modules:%d events:%s",
		state.SessionID(), cfg.Runner.Kind, len(cfg.Modules), cfg.Host.EventsURL)

	g.Go(func() error {
		if err := feed.Listen(gctx); err != nil {
			return err
		}
		return errors.New("host event feed closed")
	})
	g.Go(func() error {
		return d.Run(gctx)
	})

	err = g.Wait()
	for key, st := range d.Snapshot() {
		logger.Debugf("modloader:run", "session:%s key:%s %s", state.SessionID(), key, st)
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}
