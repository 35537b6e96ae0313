// ABOUTME: watch subcommand: live view of the conversation list
// ABOUTME: Runs the feed subscriber and engine, tails reconciled events to stdout

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/2389/inbox-console/internal/engine"
	"github.com/2389/inbox-console/internal/feed"
	"github.com/2389/inbox-console/internal/highlight"
	"github.com/2389/inbox-console/internal/index"
	"github.com/2389/inbox-console/internal/model"
	"github.com/2389/inbox-console/internal/reconcile"
	"github.com/2389/inbox-console/internal/thread"
)

var watchTop int

func init() {
	watchCmd.Flags().IntVar(&watchTop, "top", 10, "number of list rows to print after each change")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream the live conversation list to stdout",
	RunE:  runWatch,
}

var (
	newMark     = color.New(color.FgGreen, color.Bold)
	updatedMark = color.New(color.FgYellow)
	userMark    = color.New(color.FgCyan)
	liveMark    = color.New(color.FgMagenta)
	dimText     = color.New(color.Faint)
)

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)
	logger := slog.Default()

	client := newBackendClient(cfg, logger)
	router, err := buildRouter(cfg, client, logger)
	if err != nil {
		return err
	}

	bus := feed.NewBroadcaster(logger)
	defer bus.Close()
	sub := feed.NewSubscriber(cfg.Feed.URL, cfg.Backend.APIToken, bus,
		cfg.Feed.ReconnectMin, cfg.Feed.ReconnectMax, logger)

	ix := index.New(client, cfg.List.PageSize, logger)
	hl := highlight.NewTracker(cfg.List.HighlightTTL, logger)
	defer hl.Close()

	eng := engine.New(engine.Deps{
		Index:       ix,
		Reconciler:  reconcile.New(ix, hl, logger),
		Highlights:  hl,
		Threads:     thread.NewCache(client, logger),
		Router:      router,
		Broadcaster: bus,
		Toggler:     client,
		Debounce:    cfg.Debounce,
		Logger:      logger,
	})

	// Our own subscription sees the same events the engine reconciles; the
	// engine's snapshot is printed after each one so the tail reflects the
	// post-reconcile list.
	tail, _ := bus.Subscribe(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sub.Run(gctx) })
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return tailEvents(gctx, eng, tail) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func tailEvents(ctx context.Context, eng *engine.Engine, events <-chan *model.PushEvent) error {
	// Give the engine's initial load a moment, then show the starting list.
	time.Sleep(200 * time.Millisecond)
	printList(ctx, eng)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			printEvent(ev)
			printList(ctx, eng)
		}
	}
}

func printEvent(ev *model.PushEvent) {
	ts := ev.CommitTimestamp.Format("15:04:05")
	switch {
	case ev.Kind == model.RecordUser:
		fmt.Printf("%s %s %s\n", dimText.Sprint(ts), userMark.Sprint("user"), ev.NewUser.ID)
	case ev.Type == model.EventInsert:
		fmt.Printf("%s %s %s\n", dimText.Sprint(ts), newMark.Sprint("new"), ev.NewConversation.ID)
	default:
		fmt.Printf("%s %s %s\n", dimText.Sprint(ts), updatedMark.Sprint("update"), ev.NewConversation.ID)
	}
}

func printList(ctx context.Context, eng *engine.Engine) {
	snap, err := eng.Snapshot(ctx)
	if err != nil {
		return
	}

	rows := snap.Conversations
	if len(rows) > watchTop {
		rows = rows[:watchTop]
	}
	for _, conv := range rows {
		mark := "  "
		switch snap.Highlights[conv.ID] {
		case highlight.KindNew:
			mark = newMark.Sprint("* ")
		case highlight.KindUpdated:
			mark = updatedMark.Sprint("~ ")
		}
		live := "   "
		if conv.IsLiveAgent {
			live = liveMark.Sprint("[L]")
		}
		fmt.Printf("%s%s %-10s %-20s %s\n",
			mark, live, conv.Channel, conv.Counterparty.Name,
			dimText.Sprint(conv.LastMessagePreview))
	}
	fmt.Println(dimText.Sprintf("-- %d of %d conversations --", len(snap.Conversations), snap.TotalCount))
}
