package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/thermorelay/log2"
	"github.com/temoto/thermorelay/state"
	tele_api "github.com/temoto/thermorelay/tele"
)

var BuildVersion string = "unknown" // set by ldflags -X

var log = log2.NewStderr(log2.LInfo)

func main() {
	flagConfig := flag.String("config", "thermorelay.hcl", "")
	flagDebug := flag.Bool("debug", false, "log level debug, overrides config")
	flag.Parse()

	if sdnotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	}
	if *flagDebug {
		log.SetLevel(log2.LDebug)
	}
	log.Infof("thermorelay version=%s", BuildVersion)

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	if *flagDebug {
		config.LogDebug = true
	}

	ctx, g := state.NewContext(log, tele_api.New())
	g.BuildVersion = BuildVersion
	g.MustInit(ctx, config)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Infof("signal=%s stopping", sig)
		g.Stop()
		// second signal aborts in-flight network operations
		<-sigs
		cancel()
	}()

	sdnotify(daemon.SdNotifyReady)
	err := g.Run(ctx)
	if err != nil && errors.Cause(err) != context.Canceled {
		g.Error(err, "run")
	}
	sdnotify(daemon.SdNotifyStopping)
	if err := g.Close(); err != nil {
		g.Error(err, "close")
	}
	log.Infof("bye")
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
