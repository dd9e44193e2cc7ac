package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/avpump"
	"github.com/xaionaro-go/avpump/config"
	avpumplogger "github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/observability"
)

const (
	envAuthKey = "AVPUMP_AUTH_KEY"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags] [<URL-from> <URL-to>]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a YAML config file")
	inputURL := pflag.String("input", "", "the input URL; overrides the config")
	outputURL := pflag.String("output", "", "the output URL; overrides the config")
	outputFormat := pflag.String("output-format", "", "force the output container format")
	transformKind := pflag.String("transform", "", "the transform applied to the decoded audio: identity, volume or peak-normalize")
	gain := pflag.Float64("gain", 0, "the gain of the volume transform (1 if unset), or the max gain of peak-normalize")
	exitOnSourceExhausted := pflag.Bool("exit-on-source-exhausted", false, "stop without draining the codecs once the input is exhausted")
	printConfig := pflag.Bool("print-config", false, "print the effective config and exit")
	statsInterval := pflag.Duration("stats-interval", 0, "print the statistics with this interval; disabled if zero")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()
	if len(pflag.Args()) != 0 && len(pflag.Args()) != 2 {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	avpumplogger.SetDefault(func() logger.Logger {
		return l
	})
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			l.Fatal(err)
		}
		cfg = *loaded
	}
	if len(pflag.Args()) == 2 {
		cfg.Input.URL = pflag.Arg(0)
		cfg.Output.URL = pflag.Arg(1)
	}
	if *inputURL != "" {
		cfg.Input.URL = *inputURL
	}
	if *outputURL != "" {
		cfg.Output.URL = *outputURL
	}
	if *outputFormat != "" {
		cfg.Output.Format = *outputFormat
	}
	if *transformKind != "" {
		cfg.Transform.Kind = *transformKind
	}
	if pflag.CommandLine.Changed("gain") {
		cfg.Transform.Gain = *gain
	}
	if *exitOnSourceExhausted {
		cfg.Pump.ExitOnSourceExhausted = true
	}
	if authKey := os.Getenv(envAuthKey); authKey != "" {
		cfg.Input.AuthKey = config.NewSecret(authKey)
	}

	if *printConfig {
		b, err := cfg.Bytes()
		if err != nil {
			l.Fatal(err)
		}
		os.Stdout.Write(b)
		return
	}

	pipelineCfg, err := cfg.PipelineConfig()
	if err != nil {
		l.Fatal(err)
	}

	avpumplogger.RouteAstiav(ctx)

	pipeline := avpump.NewPipeline(pipelineCfg)
	l.Debugf("starting %s...", pipeline)
	if err := pipeline.Start(ctx); err != nil {
		l.Fatal(err)
	}

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	var statsCh <-chan time.Time
	if *statsInterval > 0 {
		t := time.NewTicker(*statsInterval)
		defer t.Stop()
		statsCh = t.C
	}

	stopRequested := false
	for {
		select {
		case <-pipeline.CompletedChan():
			if err := pipeline.Err(); err != nil {
				l.Errorf("%s: %v", pipeline.Status(), err)
				belt.Flush(ctx)
				os.Exit(1)
			}
			l.Infof("%s: %s", pipeline.Status(), pipeline.Stats(ctx))
			return
		case sig := <-signalCh:
			if stopRequested {
				l.Warnf("received %s again, cancelling", sig)
				cancelFn()
				continue
			}
			l.Infof("received %s, stopping", sig)
			stopRequested = true
			pipeline.Stop(ctx)
		case <-statsCh:
			fmt.Printf("%s\n", pipeline.Stats(ctx))
		}
	}
}
