// Command dlq inspects and replays the confirmation dead-letter queue.
//
//	dlq list   [-limit N]   print dead-lettered booking ids, leave them queued
//	dlq replay [-limit N]   move dead-lettered messages back to the main queue
//
// Replay is an operator action; nothing replays dead letters automatically.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/config"
	"github.com/iliyamo/seat-booking/internal/logger"
	"github.com/iliyamo/seat-booking/internal/queue"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "dlq:", err)
		os.Exit(1)
	}
}

func usage() error {
	return fmt.Errorf("usage: dlq list|replay [-limit N]")
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return usage()
	}
	cmd := args[0]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	limit := fs.Int("limit", 0, "maximum number of messages (0 = all)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(config.LogConfig{Debug: cfg.Log.Debug}, "dlq")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	topo := queue.TopologyFromConfig(cfg.Queue)
	ch, err := queue.Dial(cfg.Queue.URL, cfg.Queue.DialTimeout)()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := topo.Declare(ch); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	switch cmd {
	case "list":
		dls, err := queue.PeekDeadLetters(ch, topo, *limit)
		if err != nil {
			return err
		}
		return printDeadLetters(out, dls)
	case "replay":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		n, err := queue.ReplayDeadLetters(ctx, ch, topo, *limit)
		log.Info("replayed dead letters", zap.Int("count", n), zap.String("to", topo.Queue), zap.Error(err))
		fmt.Fprintf(out, "replayed %d message(s) to %s\n", n, topo.Queue)
		return err
	}
	return usage()
}

func printDeadLetters(out io.Writer, dls []queue.DeadLetter) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BOOKING\tTYPE\tREASON\tFROM\tCOUNT\tTIME")
	for _, d := range dls {
		ts := ""
		if !d.Time.IsZero() {
			ts = d.Time.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", d.BookingID, d.Type, d.Reason, d.Queue, d.Count, ts)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d dead letter(s)\n", len(dls))
	return nil
}
