package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sebastian-mora/sshtoken/internal/handler"
	"github.com/sebastian-mora/sshtoken/internal/httpapi"
	"github.com/sebastian-mora/sshtoken/internal/logger"
	"github.com/sebastian-mora/sshtoken/internal/metrics"
	"github.com/sebastian-mora/sshtoken/internal/policy"
	"github.com/sebastian-mora/sshtoken/internal/principals"
	"github.com/sebastian-mora/sshtoken/internal/signer"
	"github.com/sebastian-mora/sshtoken/internal/verify"
	"golang.org/x/sync/errgroup"
)

type ServeCmd struct {
	Listen          string        `help:"HTTP server listen address" default:"localhost:8080" env:"SSHTOKEN_LISTEN"`
	CA              CAFlags       `embed:"" prefix:"ca-"`
	Cert            CertFlags     `embed:""`
	Expression      string        `help:"JMESPath expression mapping bearer token claims to principals" required:"" name:"jmespath-expression" env:"JMESPATH_EXPRESSION"`
	Comment         string        `help:"comment stored in issued key files, the key ID when empty" env:"KEY_COMMENT"`
	VerifyCacheTTL  time.Duration `help:"how long certificate verification results are remembered, 0 disables" default:"5m" env:"VERIFY_CACHE_TTL"`
	ShutdownTimeout time.Duration `help:"grace period for in-flight requests on shutdown" default:"10s"`
	NoMetrics       bool          `help:"do not expose /metrics"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	if err := s.Cert.validate(); err != nil {
		return err
	}

	ca, err := s.CA.Load(ctx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Listen, err)
	}

	h, err := s.handler(ca)
	if err != nil {
		ln.Close()
		return err
	}

	logger.Info(ctx, "starting token server", "version", globals.Version, "listen", ln.Addr().String())
	return serve(ctx, configureHTTPServer(s.Listen, h), ln, s.ShutdownTimeout)
}

// handler builds the HTTP routes for ca.
func (s *ServeCmd) handler(ca signer.SSHCertificateSigner) (http.Handler, error) {
	mapper, err := principals.NewJMESPathPrincipalMapper(s.Expression)
	if err != nil {
		return nil, fmt.Errorf("failed to create principal mapper: %w", err)
	}

	var (
		opts     []handler.Option
		gatherer prometheus.Gatherer
	)
	if !s.NoMetrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New()
		if err := m.Register(reg); err != nil {
			return nil, err
		}
		opts = append(opts, handler.WithMetrics(m))
		gatherer = reg
	}

	var verifier policy.SignatureVerifier = verify.New(ca.PublicKey())
	if s.VerifyCacheTTL > 0 {
		verifier = verify.NewCached(verify.New(ca.PublicKey()), s.VerifyCacheTTL)
	}
	evaluator := policy.NewEvaluator(verifier)
	evaluator.Location = s.Cert.location()

	tokens := handler.NewTokenHandler(newGenerator(ca, s.Cert, s.Comment), evaluator, mapper, s.Cert.issuer(), opts...)
	return httpapi.NewServer(tokens, handler.NewCAKeyHandler(ca), gatherer).Routes(), nil
}

// serve runs srv on ln until ctx is done, then drains it for at most grace.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info(context.Background(), "shutting down token server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
