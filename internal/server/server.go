package server

import (
	"context"
	"edgeml/internal/config"
	grpc2 "edgeml/internal/controller/grpc"
	http2 "edgeml/internal/controller/http"
	"edgeml/internal/engine"
	"edgeml/internal/inference"
	"edgeml/internal/manager"
	"edgeml/internal/manager/pipeline"
	"edgeml/internal/report"
	"edgeml/pkg/version"
	"fmt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const shutdownTimeout = 5 * time.Second

type mainApp struct {
	name string
	cmd  *cobra.Command
	args []string
	opt  *config.EdgeMLOpt
}

// LoadEngine builds the engine named by the configuration, falling back to
// the built-in one when no manifest is set
func LoadEngine(opt *config.EdgeMLOpt) (*engine.Threshold, error) {
	var (
		e   *engine.Threshold
		err error
	)
	if opt.Engine.Manifest == "" {
		log.Infoln("engine.manifest not set, using the built-in engine")
		e = engine.Default()
	} else if e, err = engine.Load(opt.Engine.Manifest); err != nil {
		return nil, err
	}
	e.SetPredictionInterval(opt.Engine.PredictionInterval())
	return e, nil
}

func (a *mainApp) ProbeSensor() error {
	m := pipeline.NewManager(a.opt, nil)
	log.Infoln("Probing sensor devices...")
	res, err := m.ProbeDev()
	for _, v := range res {
		fmt.Printf("- %s\n", strings.TrimSpace(v))
	}
	if err != nil {
		log.Errorln(err)
		return err
	}
	log.Infof("Found %d devices", len(res))
	return nil
}

func (a *mainApp) GetOpt() *config.EdgeMLOpt {
	return a.opt
}

func (a *mainApp) SetOpt(opt *config.EdgeMLOpt) { a.opt = opt }

// predictionLoop classifies at the engine prediction interval once the
// pipeline is ready and publishes each result
func predictionLoop(ctx context.Context, m manager.Manager, interval func() time.Duration, sink *report.Sink) {
	wait := 100 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		if !m.Ready() {
			wait = 100 * time.Millisecond
			continue
		}
		wait = interval()
		if wait <= 0 {
			wait = engine.DefaultPredictionInterval
		}

		res, err := m.Classify()
		if err != nil {
			log.Debugf("classify: %v", err)
			continue
		}
		if err := sink.Report(res); err != nil {
			log.Warnln(err)
		}
	}
}

// startPredictionLoop runs predictionLoop in the background; the returned
// channel closes once it stopped using sink
func startPredictionLoop(ctx context.Context, m manager.Manager, interval func() time.Duration, sink *report.Sink) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		predictionLoop(ctx, m, interval, sink)
	}()
	return done
}

func (a *mainApp) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext serves until ctx is done, then shuts everything down
func (a *mainApp) RunContext(ctx context.Context) error {
	log.Infoln("version:", version.GitVersion)
	log.Infoln("grpc.port:", a.opt.GRPC.Port)
	log.Infoln("grpc.interface:", a.opt.GRPC.Interface)
	log.Infoln("api.port:", a.opt.API.Port)
	log.Infoln("api.interface:", a.opt.API.Interface)
	log.Infoln("acquisition.period_ms:", a.opt.Acquisition.PeriodMs)
	log.Infoln("bus.backend:", a.opt.Bus.Backend)
	log.Infoln("engine.manifest:", a.opt.Engine.Manifest)
	log.Infoln("debug:", a.opt.Debug)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the manager reports the engine as not ready when it cannot be loaded
	var eng inference.Engine
	e, err := LoadEngine(a.opt)
	if err != nil {
		log.Errorln("engine:", err)
	} else {
		eng = e
	}

	sink, err := report.Open(a.opt.Report.Serial, a.opt.Report.Baud)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	// start manager
	m := pipeline.NewManager(a.opt, eng)
	daemonDone := make(chan struct{})
	go func() {
		defer close(daemonDone)
		manager.Daemon(ctx, m, manager.DefaultDaemonInterval)
	}()
	defer func() {
		cancel()
		<-daemonDone
		if err := m.Stop(); err != nil {
			log.Warnln("stop:", err)
		}
	}()

	interval := func() time.Duration { return engine.DefaultPredictionInterval }
	if eng != nil {
		interval = eng.PredictionInterval
	}
	predictionDone := startPredictionLoop(ctx, m, interval, sink)
	defer func() {
		cancel()
		<-predictionDone
	}()

	// install and start api server
	apiListener, err := net.Listen("tcp", net.JoinHostPort(a.opt.API.Interface, strconv.Itoa(a.opt.API.Port)))
	if err != nil {
		return errors.Wrap(err, "api listen")
	}
	apiServer := &http.Server{Handler: http2.NewRouter(m)}
	log.Info("start api listen on ", apiListener.Addr())
	go func() {
		if err := apiServer.Serve(apiListener); err != nil && err != http.ErrServerClosed {
			log.Errorln("api server:", err)
		}
	}()

	// install and start grpc server
	s := grpc.NewServer()
	grpc2.RegisterInferenceServiceServer(s, grpc2.NewGRPCServer(m))
	listener, err := net.Listen("tcp", net.JoinHostPort(a.opt.GRPC.Interface, strconv.Itoa(a.opt.GRPC.Port)))
	if err != nil {
		_ = apiServer.Close()
		return errors.Wrap(err, "grpc listen")
	}
	log.Info("start gRPC listen on ", listener.Addr())
	go func() {
		if err := s.Serve(listener); err != nil {
			log.Errorln("failed to serve...", err)
		}
	}()

	// wait for exit
	<-ctx.Done()
	log.Infoln("shutting down")
	s.GracefulStop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warnln("api shutdown:", err)
	}
	return nil
}

func (a *mainApp) PrepareRun() MainApp {
	desc := config.NewEdgeMLDesc()
	err := desc.Parse(a.cmd)
	if err != nil {
		log.Errorln(err)
		os.Exit(1)
		return nil
	}
	desc.PostParse()
	a.opt = &desc.Opt
	a.name = config.DefaultAppName
	return a
}

type MainApp interface {
	Run() error
	RunContext(ctx context.Context) error
	PrepareRun() MainApp
	GetOpt() *config.EdgeMLOpt
	SetOpt(*config.EdgeMLOpt)
	ProbeSensor() error
}

func NewMainApp(cmd *cobra.Command, args []string) MainApp {
	return &mainApp{
		cmd:  cmd,
		args: args,
	}
}
