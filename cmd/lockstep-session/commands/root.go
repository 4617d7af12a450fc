// Package commands implements the lockstep-session CLI: a reference
// host process that wires pkg/lockstepcfg, pkg/lockstep, pkg/transport,
// pkg/lockstep/metrics and pkg/lockstep/statusapi together and drives a
// trivial simulation loop that sends an empty input every tick.
//
// Grounded on cmd/setup-node/commands/root.go's config-file-or-stdin
// cobra command and cmd/skywire-visor/commands/root.go's
// signal.Notify-driven shutdown.
package commands

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skycoin/lockstep/pkg/lockstep"
	"github.com/skycoin/lockstep/pkg/lockstep/metrics"
	"github.com/skycoin/lockstep/pkg/lockstep/statusapi"
	"github.com/skycoin/lockstep/pkg/lockstepcfg"
	"github.com/skycoin/lockstep/pkg/transport"
)

var (
	cfgFromStdin bool
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "lockstep-session [config.json]",
	Short: "Run a reference lockstep networking session",
	RunE: func(_ *cobra.Command, args []string) error {
		log := logrus.New()
		if lvl, err := logrus.ParseLevel(logLevel); err == nil {
			log.SetLevel(lvl)
		}
		entry := logrus.NewEntry(log)

		cfg, err := loadConfig(args, cfgFromStdin)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		return run(cfg, entry)
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&cfgFromStdin, "stdin", "i", false, "read config from STDIN")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "logrus level: debug, info, warn, error")
}

// Execute runs the root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func loadConfig(args []string, fromStdin bool) (lockstepcfg.Config, error) {
	var rdr io.Reader
	if fromStdin {
		rdr = bufio.NewReader(os.Stdin)
	} else {
		configFile := "config.json"
		if len(args) > 0 {
			configFile = args[0]
		}
		f, err := os.Open(configFile)
		if err != nil {
			return lockstepcfg.Config{}, err
		}
		defer func() { _ = f.Close() }()
		rdr = f
	}
	return lockstepcfg.Load(rdr)
}

func run(cfg lockstepcfg.Config, log *logrus.Entry) error {
	session := lockstep.NewSession(cfg.SessionConfig(), log)

	socket, err := transport.Listen(cfg.ListenAddr, log)
	if err != nil {
		return err
	}
	defer func() { _ = socket.Close() }()

	peerAddrs, err := transport.ResolvePeerAddrs(cfg.PeerAddrs)
	if err != nil {
		return err
	}
	lsPeerAddrs := make(map[lockstep.PeerID]*net.UDPAddr, len(peerAddrs))
	for id, addr := range peerAddrs {
		lsPeerAddrs[lockstep.PeerID(id)] = addr
	}

	registry := prometheus.NewRegistry()
	sessionMetrics := metrics.New(registry, "lockstep")

	readLoop := transport.NewReadLoop(socket, session, cfg.SocketReadTimeout, log)
	senderLoop := transport.NewSenderLoop(socket, session, lsPeerAddrs, cfg.TickInterval(), cfg.KeepAliveInterval, 0, log).
		WithMetrics(sessionMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- readLoop.Run(ctx) }()
	go func() { errCh <- senderLoop.Run(ctx) }()

	if cfg.StatusAddr != "" {
		handler := statusapi.Handler(session, registry)
		srv := &http.Server{Addr: cfg.StatusAddr, Handler: handler}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("status api exited")
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	go driveSimulation(ctx, session, cfg.InitialFrame, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("received signal %s, shutting down", sig)
	case err := <-errCh:
		log.WithError(err).Warn("worker exited")
	}

	cancel()
	session.Stop()
	return nil
}

// driveSimulation is a placeholder simulation thread: it awaits the
// barrier, pops one frame from every peer, and immediately enqueues its
// own next tick's input (an empty payload) so the session keeps
// advancing. A real host application replaces this with its actual game
// loop; everything above this function is the reusable wiring.
func driveSimulation(ctx context.Context, session *lockstep.Session, initialFrame int64, log *logrus.Entry) {
	nextFrame := initialFrame
	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Stopped():
			return
		default:
		}

		if err := session.Barrier().Await(ctx); err != nil {
			return
		}

		frames := session.PopAll()
		log.WithField("frame", nextFrame).WithField("peers", len(frames)).Debug("tick advanced")

		for _, peer := range session.Peers() {
			if tq, ok := session.TransmitQueue(peer); ok {
				tq.EnqueueLocal(lockstep.NewFrameInput(nextFrame, nil))
			}
		}
		nextFrame++
		time.Sleep(time.Millisecond)
	}
}
