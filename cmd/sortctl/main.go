// Command sortctl drives a running sortline over NATS.
//
// Usage:
//
//	sortctl [-url nats://host:4222] <1|2|3>   send one command and print the reply
//	sortctl [-url nats://host:4222] -watch    print the line's heartbeats
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vinayprograms/sortline/bus"
	"github.com/vinayprograms/sortline/config"
	"github.com/vinayprograms/sortline/heartbeat"
	"github.com/vinayprograms/sortline/warehouse"
)

func main() {
	_ = godotenv.Load()

	url := flag.String("url", os.Getenv(config.EnvPrefix+"BUS_URL"), "NATS server URL")
	token := flag.String("token", os.Getenv(config.EnvPrefix+"BUS_TOKEN"), "NATS auth token")
	timeout := flag.Duration("timeout", 2*time.Second, "reply timeout; with -watch, silence before the line is reported quiet")
	watch := flag.Bool("watch", false, "print heartbeats until interrupted")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: sortctl [flags] <1=depart|2=express|3=shutdown>")
		fmt.Fprintln(os.Stderr, "       sortctl [flags] -watch")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *watch == (flag.NArg() == 1) || flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}
	if !*watch {
		if _, err := warehouse.ParseCommand(flag.Arg(0)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	cfg := bus.DefaultNATSConfig()
	if *url != "" {
		cfg.URL = *url
	}
	cfg.Token = *token
	cfg.Name = "sortctl"

	b, err := bus.NewNATSBus(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *watch {
		err = watchLine(b, *timeout)
	} else {
		err = sendCommand(b, flag.Arg(0), *timeout)
	}
	b.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func sendCommand(b bus.MessageBus, input string, timeout time.Duration) error {
	report, err := warehouse.RemoteCommand(b, input, timeout)
	if err != nil {
		return err
	}
	fmt.Println(report)
	return nil
}

func watchLine(b bus.MessageBus, timeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor, err := heartbeat.NewMonitor(heartbeat.MonitorConfig{Bus: b, Timeout: timeout})
	if err != nil {
		return err
	}
	monitor.OnQuiet(func(last *heartbeat.Heartbeat) {
		fmt.Printf("line quiet since %s (run %s)\n", last.Timestamp.Format(time.TimeOnly), last.Run)
	})
	go monitor.Run(ctx)

	for hb := range monitor.Heartbeats() {
		fmt.Println(hb)
	}
	return monitor.Stop()
}
