// Command jailworker is the plugin-side process: it connects to a host's
// bridge server, performs the wireframe handshake, exports a base interface
// carrying its id and namespace, and runs until disconnected.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/filegrind/jailbridge"
	"github.com/filegrind/jailbridge/internal/wireframe"
)

type options struct {
	id        string
	secret    string
	namespace string
	workDir   string
	server    string
	daemon    bool
	debug     bool
}

func main() {
	opts := &options{}
	root := &cobra.Command{
		Use:   "jailworker",
		Short: "Run a jailbridge plugin worker process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := root.Flags()
	flags.StringVar(&opts.id, "id", "", "plugin id this worker identifies itself as")
	flags.StringVar(&opts.secret, "secret", "", "shared secret for this worker (required; not sent to the host)")
	flags.StringVar(&opts.namespace, "namespace", "default", "plugin namespace")
	flags.StringVar(&opts.workDir, "work_dir", "", "working directory to create and enter before running")
	flags.StringVar(&opts.server, "server", "127.0.0.1:9527", "host bridge server address")
	flags.BoolVar(&opts.daemon, "daemon", false, "stay alive after the host disconnects")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug-level logging")
	_ = root.MarkFlagRequired("id")
	_ = root.MarkFlagRequired("secret")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	level := zerolog.InfoLevel
	if opts.debug {
		level = zerolog.DebugLevel
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Str("plugin_id", opts.id).
		Str("namespace", opts.namespace).
		Logger()
	logger := jailbridge.NewZerologAdapter(zl)

	conn, err := net.Dial("tcp", opts.server)
	if err != nil {
		return fmt.Errorf("jailworker: dialing host at %s: %w", opts.server, err)
	}

	adapter, err := wireframe.AcceptPlugin(conn)
	if err != nil {
		return fmt.Errorf("jailworker: handshake with host: %w", err)
	}

	session := jailbridge.NewSession(nil,
		jailbridge.WithLogger(logger),
		jailbridge.WithWorkDir(opts.workDir),
		jailbridge.WithNDArrayProvider(jailbridge.DenseArrayProvider{}),
	)

	if err := session.Registry.SetInterface([]jailbridge.APIEntry{
		{Name: "id", Value: opts.id},
		{Name: "namespace", Value: opts.namespace},
		// "_"-prefixed names are dropped by SetInterface (see registry.go):
		// the shared secret is neither transmitted nor kept in the
		// registry.
		{Name: "_secret", Value: opts.secret},
	}); err != nil {
		return fmt.Errorf("jailworker: installing base interface: %w", err)
	}

	lifecycle := jailbridge.NewLifecycle(session, adapter,
		jailbridge.WithLifecycleWorkDir(opts.workDir),
		jailbridge.WithDaemon(opts.daemon),
	)

	logger.Info("connected to host, starting lifecycle")
	if err := lifecycle.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("jailworker: lifecycle exited: %w", err)
	}
	return nil
}
