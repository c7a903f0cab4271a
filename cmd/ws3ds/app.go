package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/ws3ds/ws3ds-go/internal/config"
	"github.com/ws3ds/ws3ds-go/internal/logging"
	"github.com/ws3ds/ws3ds-go/pkg/connection"
	"github.com/ws3ds/ws3ds-go/pkg/discovery"
	"github.com/ws3ds/ws3ds-go/pkg/log"
	"github.com/ws3ds/ws3ds-go/pkg/metrics"
	"github.com/ws3ds/ws3ds-go/pkg/session"
	"github.com/ws3ds/ws3ds-go/pkg/transport"
)

// options holds the persistent flags. Set flags override the config file
// and environment.
type options struct {
	configPath   string
	logLevel     string
	host         string
	localIP      string
	port         uint16
	resolver     string
	iface        string
	mdns         bool
	traceFile    string
	traceConsole bool
}

func (o *options) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "Configuration file path (env "+config.PathEnv+")")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&o.host, "host", "", "Dial this host only instead of scanning the subnet")
	f.StringVar(&o.localIP, "local-ip", "", "Use this local IPv4 address instead of resolving one")
	f.Uint16Var(&o.port, "port", 0, "Device port (default 5050)")
	f.StringVar(&o.resolver, "resolver", "", "Local address resolver: auto, ice, interface")
	f.StringVar(&o.iface, "interface", "", "Restrict resolution and mDNS to one interface")
	f.BoolVar(&o.mdns, "mdns", false, "Race hosts advertised over mDNS as well")
	f.StringVar(&o.traceFile, "trace-file", "", "Write a discovery trace (.wlog) to this file")
	f.BoolVar(&o.traceConsole, "trace-console", false, "Mirror discovery trace events to the log")
}

// load reads the configuration and applies the flags that were set.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.Path(o.configPath))
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("host") {
		cfg.Discovery.Host = o.host
	}
	if flags.Changed("local-ip") {
		cfg.Discovery.LocalIP = o.localIP
	}
	if flags.Changed("port") {
		cfg.Discovery.Port = o.port
	}
	if flags.Changed("resolver") {
		cfg.Discovery.Resolver = o.resolver
	}
	if flags.Changed("interface") {
		cfg.Discovery.Interface = o.iface
	}
	if flags.Changed("mdns") {
		cfg.Discovery.MDNS = o.mdns
	}
	if flags.Changed("trace-file") {
		cfg.Trace.File = o.traceFile
	}
	if flags.Changed("trace-console") {
		cfg.Trace.Console = o.traceConsole
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is the wired runtime shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	trace    log.Logger
	client   *session.Client

	closers []io.Closer
}

// newApp loads the configuration and wires logging, tracing, metrics and
// the session client. Device text goes to sink, or to the log when sink is
// nil.
func newApp(cmd *cobra.Command, opts *options, logOut io.Writer, sink session.MessageSink) (*app, error) {
	cfg, err := opts.load(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := logging.Setup(cfg.Env, cfg.LogLevel, logOut)
	if err != nil {
		return nil, err
	}

	if sink == nil {
		sink = logSink(logger.With("component", "device"))
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.metrics = metrics.New(metrics.WithRegistry(a.registry))

	if err := a.setupTrace(); err != nil {
		return nil, err
	}

	a.client = session.NewClient(session.Config{
		Dialer: transport.NewDialer(transport.ClientConfig{
			HandshakeTimeout: cfg.Transport.HandshakeTimeout,
			WriteTimeout:     cfg.Transport.WriteTimeout,
			MaxMessageSize:   cfg.Transport.MaxMessageSize,
		}),
		Resolver:      a.resolver(),
		Hints:         a.hints(),
		Port:          cfg.Discovery.Port,
		SearchTimeout: cfg.Session.SearchTimeout,
		ResolveGrace:  cfg.Discovery.ResolveGrace,
		Backoff: connection.BackoffConfig{
			Initial:    cfg.Session.RetryDelay,
			Max:        cfg.Session.RetryMaxDelay,
			Multiplier: cfg.Session.RetryMultiplier,
		},
		Sink:    sink,
		Logger:  logger,
		Trace:   a.trace,
		Metrics: a.metrics,
	})
	a.closers = append([]io.Closer{a.client}, a.closers...)
	return a, nil
}

func (a *app) setupTrace() error {
	var loggers []log.Logger
	if a.cfg.Trace.File != "" {
		fl, err := log.NewFileLogger(a.cfg.Trace.File)
		if err != nil {
			return fmt.Errorf("opening trace file: %w", err)
		}
		a.closers = append(a.closers, fl)
		loggers = append(loggers, fl)
		a.logger.Info("writing discovery trace", "file", a.cfg.Trace.File)
	}
	if a.cfg.Trace.Console {
		loggers = append(loggers, log.NewSlogAdapter(a.logger))
	}
	switch len(loggers) {
	case 0:
		a.trace = log.NoopLogger{}
	case 1:
		a.trace = loggers[0]
	default:
		a.trace = log.NewMultiLogger(loggers...)
	}
	return nil
}

// resolver builds the local address provider chain for the configured mode.
func (a *app) resolver() discovery.LocalAddressProvider {
	d := a.cfg.Discovery
	if d.LocalIP != "" {
		return discovery.StaticProvider{IP: net.ParseIP(d.LocalIP)}
	}

	ice := discovery.ICEProvider{Logger: a.logger}
	iface := discovery.InterfaceProvider{Interface: d.Interface}
	switch d.Resolver {
	case config.ResolverICE:
		return ice
	case config.ResolverInterface:
		return iface
	default:
		return discovery.ChainProvider{
			Providers: []discovery.LocalAddressProvider{ice, iface},
			Logger:    a.logger,
		}
	}
}

func (a *app) hints() session.HintSource {
	if !a.cfg.Discovery.MDNS {
		return nil
	}
	return &discovery.MDNSBrowser{
		Interface: a.cfg.Discovery.Interface,
		Timeout:   a.cfg.Discovery.MDNSTimeout,
		Logger:    a.logger,
	}
}

// startOptions returns the search options from the configuration.
func (a *app) startOptions() session.StartOptions {
	return session.StartOptions{Host: a.cfg.Discovery.Host}
}

// connect starts a search and waits until the device is connected, the
// search fails or ctx ends.
func (a *app) connect(ctx context.Context) error {
	connected := make(chan struct{}, 1)
	a.client.OnStateChange(func(_, newState session.State) {
		if newState == session.StateConnected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})

	if err := a.client.Start(ctx, a.startOptions()); err != nil {
		if errors.Is(err, discovery.ErrUnresolved) {
			return fmt.Errorf("%w (pass --host or --local-ip)", err)
		}
		return err
	}

	select {
	case <-connected:
		st := a.client.Status()
		a.logger.Info("connected", "addr", st.Address.String())
		return nil
	case err := <-a.client.Failures():
		return err
	case <-ctx.Done():
		a.client.Cancel()
		return ctx.Err()
	}
}

// Close releases the client and the trace sinks.
func (a *app) Close() error {
	var errs error
	for _, c := range a.closers {
		errs = multierr.Append(errs, c.Close())
	}
	if fl, ok := a.trace.(*log.FileLogger); ok && fl.Dropped() > 0 {
		a.logger.Warn("trace events dropped", "count", fl.Dropped())
	}
	return errs
}

// stdoutSink prints device text.
func stdoutSink(w io.Writer) session.MessageSink {
	return session.SinkFunc(func(addr discovery.Address, text string) {
		fmt.Fprintf(w, "[%s] %s\n", addr, text)
	})
}

// logSink logs device text at info level.
func logSink(logger *slog.Logger) session.MessageSink {
	return session.SinkFunc(func(addr discovery.Address, text string) {
		logger.Info("device text", "addr", addr.String(), "text", text)
	})
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
