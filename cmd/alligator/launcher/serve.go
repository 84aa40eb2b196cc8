package launcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-alligator/integration"
	"github.com/rony4d/go-alligator/inter"
	"github.com/rony4d/go-alligator/params"
)

func serve(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Node.Logging)
	if err != nil {
		return err
	}
	log := logrus.NewEntry(logger)

	svc, err := startServices(cfg, log)
	if err != nil {
		return err
	}
	defer svc.stop()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	sig := <-sigc
	log.WithField("signal", sig).Info("Shutting down")
	return nil
}

// services is a running node together with its network endpoints.
type services struct {
	node    *integration.Node
	rpc     *rpc.Server
	http    *http.Server
	metrics *http.Server

	// bound addresses, set once the servers listen
	httpAddr    net.Addr
	metricsAddr net.Addr

	sub  event.Subscription
	done chan struct{}
	log  *logrus.Entry
}

func startServices(cfg Config, log *logrus.Entry) (*services, error) {
	p, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	owner, err := cfg.OwnerAddress()
	if err != nil {
		return nil, err
	}
	preset, err := cfg.StorePreset()
	if err != nil {
		return nil, err
	}
	if params.IsTestNetPlaceholder(p.Alligator) || params.IsTestNetPlaceholder(p.Governor) {
		log.Warn("Testnet placeholder identities in use, set --alligator and --governor")
	}
	var genesis *integration.Genesis
	if cfg.Genesis != "" {
		if genesis, err = integration.LoadGenesis(cfg.Genesis); err != nil {
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	node, err := integration.NewNode(context.Background(), integration.Config{
		Params:     p,
		Owner:      owner,
		Preset:     preset,
		DataDir:    cfg.Node.DataDir,
		Registerer: registry,
		Log:        log,
	}, genesis)
	if err != nil {
		return nil, err
	}
	s := &services{node: node, done: make(chan struct{}), log: log}

	votes := make(chan inter.VoteCastEvent, 16)
	s.sub = node.Alligator.SubscribeVoteCast(votes)
	go func() {
		defer close(s.done)
		for {
			select {
			case ev := <-votes:
				log.WithFields(logrus.Fields{
					"proxy":    ev.Proxy.Hex(),
					"voter":    ev.Voter.Hex(),
					"proposal": ev.ProposalID,
					"support":  ev.Support,
					"votes":    ev.Votes,
				}).Debug("Vote cast")
			case <-s.sub.Err():
				return
			}
		}
	}()

	if cfg.Node.RPC.HTTPEnabled {
		s.rpc = rpc.NewServer()
		for _, api := range node.Alligator.APIs() {
			if err := s.rpc.RegisterName(api.Namespace, api.Service); err != nil {
				s.stop()
				return nil, err
			}
		}
		addr := net.JoinHostPort(cfg.Node.RPC.HTTPAddr, fmt.Sprint(cfg.Node.RPC.HTTPPort))
		s.http = &http.Server{
			Handler:      s.rpc,
			ReadTimeout:  cfg.Node.RPC.Timeout,
			WriteTimeout: cfg.Node.RPC.Timeout,
		}
		if s.httpAddr, err = s.listen(s.http, addr); err != nil {
			s.stop()
			return nil, err
		}
		log.WithField("addr", s.httpAddr).Info("HTTP JSON-RPC server started")
	}

	if preset.EnableMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		addr := net.JoinHostPort(cfg.Node.Metrics.Addr, fmt.Sprint(cfg.Node.Metrics.Port))
		s.metrics = &http.Server{Handler: mux}
		if s.metricsAddr, err = s.listen(s.metrics, addr); err != nil {
			s.stop()
			return nil, err
		}
		log.WithField("addr", s.metricsAddr).Info("Metrics server started")
	}

	log.WithFields(logrus.Fields{
		"network": p.Name,
		"store":   preset.Backend,
	}).Info("Alligator node started")
	return s, nil
}

// listen binds addr synchronously so that a busy port fails the startup.
func (s *services) listen(srv *http.Server, addr string) (net.Addr, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server failed")
		}
	}()
	return l.Addr(), nil
}

func (s *services) stop() {
	if s.metrics != nil {
		s.metrics.Close()
	}
	if s.http != nil {
		s.http.Close()
	}
	if s.rpc != nil {
		s.rpc.Stop()
	}
	s.sub.Unsubscribe()
	<-s.done
	if err := s.node.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close the database")
	}
}
