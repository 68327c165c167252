// Command epochsim drives a simulated DAQ acquisition against a
// SQLite-backed hierarchical persistor, exposing Prometheus and expvar
// metrics over HTTP while epochs run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"epochcore/internal/archive"
	"epochcore/internal/controller"
	"epochcore/internal/observability"
	"epochcore/internal/persistor"
	"epochcore/pkg/daq"
)

func main() {
	var (
		dbPath    = flag.String("db", "epochsim.experiment", "path to the experiment container file")
		httpAddr  = flag.String("http", ":9090", "address to serve /metrics and /debug/vars on")
		protocol  = flag.String("protocol", "ramp-and-hold", "protocol id stamped on generated epochs")
		epochs    = flag.Int("epochs", 3, "number of epochs to run before exiting")
		epochSecs = flag.Float64("epoch-seconds", 2, "duration of each generated epoch, in seconds")
	)
	flag.Parse()

	log.SetFlags(0)
	if err := run(*dbPath, *httpAddr, *protocol, *epochs, *epochSecs); err != nil {
		log.Fatalf("epochsim: %v", err)
	}
}

func run(dbPath, httpAddr, protocol string, epochCount int, epochSeconds float64) error {
	logger := stdLogger{}
	registry := prometheus.NewRegistry()
	metrics := observability.NewPrometheusRecorder(registry)
	expvarMetrics := observability.NewExpvarMetricsRecorder("epochsim")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", http.DefaultServeMux)
	server := &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	os.Remove(dbPath)
	session, err := persistor.Create(dbPath, "epochsim simulated run", time.Now(), persistor.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating experiment container: %w", err)
	}

	source, err := session.AddSource("simulated-rig", nil)
	if err != nil {
		return fmt.Errorf("adding source: %w", err)
	}
	if _, err := session.BeginEpochGroup("session-1", source.UUID, time.Now()); err != nil {
		return fmt.Errorf("beginning epoch group: %w", err)
	}
	if _, err := session.BeginEpochBlock(protocol, time.Now()); err != nil {
		return fmt.Errorf("beginning epoch block: %w", err)
	}

	fake := newFakeDAQ()
	ctrl := controller.New(fake, controller.WithLogger(logger), controller.WithMetrics(metrics), controller.WithExpvarMetrics(expvarMetrics))
	defer ctrl.Close()
	if err := ctrl.AddDevice(daq.Device{Name: "stim-0", Manufacturer: "epochsim"}); err != nil {
		return err
	}
	if err := ctrl.AddDevice(daq.Device{Name: "resp-0", Manufacturer: "epochsim"}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	for i := 0; i < epochCount; i++ {
		if ctx.Err() != nil {
			break
		}
		duration := daq.EpochDuration{Value: time.Duration(epochSeconds * float64(time.Second))}
		e := daq.NewEpoch(protocol, duration)
		rate := daq.NewMeasurement(1000, "Hz", "Hz", 1000)
		e.AddStimulus(daq.Stimulus{Device: "stim-0", Duration: duration, Data: daq.NewChunk(syntheticSamples(1000, epochSeconds), rate)})
		e.AddResponse("resp-0", rate)

		if err := ctrl.RunEpoch(ctx, e, session); err != nil {
			logger.Warn("epoch run ended with error", "epoch", i, "err", err)
		} else {
			logger.Info("epoch complete", "epoch", i)
		}
	}

	if err := session.EndEpochBlock(time.Now()); err != nil {
		return fmt.Errorf("ending epoch block: %w", err)
	}
	if err := session.EndEpochGroup(time.Now()); err != nil {
		return fmt.Errorf("ending epoch group: %w", err)
	}

	var archiver persistor.Archiver
	if store, err := archive.Open(context.Background()); err == nil {
		archiver = archive.NewMirror(store)
	} else {
		logger.Warn("archival mirror disabled", "err", err)
	}
	if err := session.Close(time.Now(), archiver); err != nil {
		var archivalErr persistor.ArchivalError
		if errors.As(err, &archivalErr) {
			logger.Warn("archival mirror failed, primary artifact is safe", "err", archivalErr.Error())
		} else {
			return fmt.Errorf("closing experiment container: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func syntheticSamples(sampleRate int, seconds float64) []daq.Measurement {
	n := int(float64(sampleRate) * seconds)
	out := make([]daq.Measurement, n)
	for i := range out {
		v := rand.Float64()
		out[i] = daq.NewMeasurement(v, "V", "V", v)
	}
	return out
}

type stdLogger struct{}

func (stdLogger) Debug(msg string, kv ...any) { logKV("DEBUG", msg, kv) }
func (stdLogger) Info(msg string, kv ...any)  { logKV("INFO", msg, kv) }
func (stdLogger) Warn(msg string, kv ...any)  { logKV("WARN", msg, kv) }
func (stdLogger) Error(msg string, kv ...any) { logKV("ERROR", msg, kv) }

func logKV(level, msg string, kv []any) {
	log.Printf("%s %s %v", level, msg, kv)
}
