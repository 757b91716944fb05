package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/signalsfoundry/tdma-radio-model/internal/config"
	"github.com/signalsfoundry/tdma-radio-model/internal/emulator"
	"github.com/signalsfoundry/tdma-radio-model/internal/logging"
	"github.com/signalsfoundry/tdma-radio-model/internal/observability"
	"github.com/signalsfoundry/tdma-radio-model/model"
	"github.com/signalsfoundry/tdma-radio-model/registrar"
	"github.com/signalsfoundry/tdma-radio-model/tdma"
	"github.com/signalsfoundry/tdma-radio-model/timectrl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// runOptions carries the command-line settings that are not part of the
// configuration file.
type runOptions struct {
	Duration        time.Duration
	TrafficInterval time.Duration
	ReportInterval  time.Duration
}

func main() {
	configPath := flag.String("config", "", "Path to a tdma-sim configuration file (yaml, json or toml)")
	duration := flag.Duration("duration", 0, "Emulation time to run for (0 = until interrupted)")
	trafficInterval := flag.Duration("traffic-interval", 2*time.Millisecond, "Interval between synthetic outbound packets (0 disables)")
	reportInterval := flag.Duration("report-interval", time.Second, "Emulation time between frame summaries")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.NewFromEnv().Error(context.Background(), "failed to load configuration", logging.Err(err))
		os.Exit(1)
	}
	log := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lis net.Listener
	if cfg.MetricsAddr != "" {
		lis, err = net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			log.Error(ctx, "failed to listen for metrics", logging.String("addr", cfg.MetricsAddr), logging.Err(err))
			os.Exit(1)
		}
	}

	opts := runOptions{
		Duration:        *duration,
		TrafficInterval: *trafficInterval,
		ReportInterval:  *reportInterval,
	}
	if err := run(ctx, cfg, opts, log, lis); err != nil {
		log.Error(ctx, "tdma-sim exited with error", logging.Err(err))
		os.Exit(1)
	}
}

// run wires the emulator for cfg and blocks until the emulation duration has
// elapsed or ctx is cancelled. A nil lis disables the metrics endpoint.
func run(ctx context.Context, cfg *config.Config, opts runOptions, log logging.Logger, lis net.Listener) error {
	log = logging.OrNoop(log)

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	prom := prometheus.NewRegistry()
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	frames, err := observability.NewFrameCollector(prom)
	if err != nil {
		return err
	}
	reg := registrar.New(prom)

	mode, err := timectrl.ParseMode(cfg.Emulation.Mode)
	if err != nil {
		return err
	}
	tc := timectrl.NewTimeController(time.Now().UTC(), cfg.Emulation.SlotDuration, cfg.Emulation.SlotsPerFrame, mode)

	node, err := emulator.New(model.NEMID(cfg.NEM), cfg.Emulation, reg,
		emulator.WithLogger(log),
		emulator.WithClock(tc),
		emulator.WithFrameCollector(frames),
	)
	if err != nil {
		return err
	}
	update, err := reg.Resolve(cfg.Parameters)
	if err != nil {
		return err
	}
	node.Configure(update)

	log.Info(ctx, "emulator configured",
		logging.String("instance", reg.InstanceID().String()),
		logging.Int("nem", int(cfg.NEM)),
		logging.String("mode", mode.String()),
		logging.String("slot_duration", cfg.Emulation.SlotDuration.String()),
		logging.Int("slots_per_frame", cfg.Emulation.SlotsPerFrame),
		logging.Int("transmitters", len(cfg.Emulation.Transmitters)),
		logging.Float64("sinr_threshold_db", node.Table().ThresholdDB()),
	)

	loop := newFrameLoop(ctx, node, frames, log, framesPer(opts.ReportInterval, cfg.Emulation))
	tc.AddFrameListener(loop.onFrame)
	tc.AddSlotListener(loop.onSlot)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if lis != nil {
		srv := &http.Server{
			Handler:           metricsMux(prom),
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info(ctx, "serving Prometheus metrics", logging.String("addr", lis.Addr().String()))
		g.Go(func() error {
			if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return emulator.NewTrafficGenerator(node, opts.TrafficInterval).Run(gctx)
	})

	g.Go(func() error {
		<-tc.Start(gctx, opts.Duration)
		loop.finish()
		cancel()
		return nil
	})

	log.Info(ctx, "starting emulation", logging.String("duration", opts.Duration.String()))
	if err := g.Wait(); err != nil {
		return err
	}

	tally := node.Publisher().Tally()
	inOffered, outOffered := node.Offered()
	log.Info(ctx, "emulation complete",
		logging.Uint64("inbound_offered", inOffered),
		logging.Uint64("outbound_offered", outOffered),
		logging.Uint64("dispositions", tally.Total()),
		logging.Uint64("accepted", tally.InboundCount(tdma.InboundAcceptGood)),
		logging.Uint64("dropped_sinr", tally.InboundCount(tdma.InboundDropSINR)),
	)
	return nil
}

func metricsMux(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(gatherer))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// framesPer returns how many frames make up interval of emulation time.
func framesPer(interval time.Duration, env config.Emulation) uint64 {
	frame := env.SlotDuration * time.Duration(env.SlotsPerFrame)
	if interval <= 0 || frame <= 0 || interval < frame {
		return 1
	}
	return uint64(interval / frame)
}

// frameLoop connects the time controller to the node. Its callbacks all run
// on the controller goroutine.
type frameLoop struct {
	ctx         context.Context
	node        *emulator.Node
	frames      *observability.FrameCollector
	log         logging.Logger
	reportEvery uint64
	tracer      trace.Tracer

	span     trace.Span
	spanCtx  context.Context
	heard    int
	accepted int
	sent     int
}

func newFrameLoop(ctx context.Context, node *emulator.Node, frames *observability.FrameCollector,
	log logging.Logger, reportEvery uint64) *frameLoop {
	return &frameLoop{
		ctx:         ctx,
		node:        node,
		frames:      frames,
		log:         log,
		reportEvery: reportEvery,
		tracer:      observability.Tracer(),
		spanCtx:     ctx,
	}
}

func (l *frameLoop) onFrame(frame uint64, _ time.Time) {
	l.endSpan()
	l.frames.IncFrames()
	l.spanCtx, l.span = l.tracer.Start(l.ctx, "tdma.frame",
		trace.WithAttributes(attribute.Int64("tdma.frame", int64(frame))))

	if frame > 0 && frame%l.reportEvery == 0 {
		tally := l.node.Publisher().Tally()
		l.log.Info(l.ctx, "frame summary",
			logging.Uint64("frame", frame),
			logging.Uint64("accepted", tally.InboundCount(tdma.InboundAcceptGood)),
			logging.Uint64("dropped_sinr", tally.InboundCount(tdma.InboundDropSINR)),
			logging.Uint64("dropped_overflow", tally.OutboundCount(tdma.OutboundDropOverflow)),
			logging.Int("queue", l.node.QueueLen()),
		)
	}
}

func (l *frameLoop) onSlot(frame uint64, slot int, _ time.Time) {
	r := l.node.RunSlot(l.spanCtx, frame, slot)
	l.heard += r.Heard
	l.accepted += r.Accepted
	l.sent += r.Sent
}

func (l *frameLoop) endSpan() {
	if l.span == nil {
		return
	}
	l.span.SetAttributes(
		attribute.Int("tdma.heard", l.heard),
		attribute.Int("tdma.accepted", l.accepted),
		attribute.Int("tdma.sent", l.sent),
	)
	l.span.End()
	l.span = nil
	l.heard, l.accepted, l.sent = 0, 0, 0
}

// finish closes the span of the last frame.
func (l *frameLoop) finish() {
	l.endSpan()
}
