// posfleet-watch is a terminal dashboard for a running PosFleet Core
// server. It keeps the push channel open and reprints the terminal, alert
// and summary views whenever an event makes them stale.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/nerrad567/posfleet-core/internal/dashboard"
	"github.com/nerrad567/posfleet-core/internal/fleet"
	"github.com/nerrad567/posfleet-core/internal/infrastructure/config"
	"github.com/nerrad567/posfleet-core/internal/infrastructure/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	server   string
	username string
	password string
	logLevel string
}

func parseFlags(args []string) (options, error) {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	fs := flag.NewFlagSet("posfleet-watch", flag.ContinueOnError)
	var o options
	fs.StringVar(&o.server, "server", envOr("POSFLEET_WATCH_SERVER", "http://localhost:5000"), "server base URL")
	fs.StringVar(&o.username, "user", os.Getenv("POSFLEET_WATCH_USER"), "username (when auth is enabled)")
	fs.StringVar(&o.password, "password", os.Getenv("POSFLEET_WATCH_PASSWORD"), "password (when auth is enabled)")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// views are reprinted after every event that makes one of them stale.
var views = []struct {
	title string
	key   dashboard.Key
}{
	{"Summary", dashboard.NewKey(dashboard.CollectionSummary)},
	{"Terminals", dashboard.NewKey(dashboard.CollectionPosDevices, "limit", "50")},
	{"Unread alerts", dashboard.NewKey(dashboard.CollectionAlertsUnread, "limit", "20")},
}

func run(ctx context.Context, args []string, out io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	log := logging.New(config.LoggingConfig{Level: o.logLevel, Format: "text", Output: "stderr"}, "watch")

	client := dashboard.NewClient(o.server)
	if o.username != "" {
		if err := client.Login(ctx, o.username, o.password); err != nil {
			return err
		}
	}
	cache := dashboard.NewCache()
	sub := dashboard.NewSubscriber(client.PushSource(), cache)
	sub.SetLogger(log)
	sub.OnEvent(func(e fleet.Event) {
		if e.Type == fleet.EventDeviceStatusChange {
			c := e.StatusChange
			fmt.Fprintf(out, "\n%s  %s: %s → %s\n", e.Timestamp.Local().Format("15:04:05"), c.DeviceCode, c.OldStatus, c.NewStatus)
		}
		if e.Type == fleet.EventNewAlert {
			fmt.Fprintf(out, "\n%s  [%s] %s\n", e.Timestamp.Local().Format("15:04:05"), e.Alert.Priority, e.Alert.Title)
		}
		render(ctx, out, cache, client, log)
	})

	sub.Run(ctx)
	return ctx.Err()
}

// render prints every stale view. Fresh views are skipped.
func render(ctx context.Context, out io.Writer, cache *dashboard.Cache, client *dashboard.Client, log *logging.Logger) {
	for _, v := range views {
		if !cache.IsStale(v.key) {
			continue
		}
		data, err := cache.Get(ctx, v.key, client.Fetcher(v.key))
		if err != nil {
			log.Warn("refresh failed", "view", v.title, "error", err)
			continue
		}
		fmt.Fprintf(out, "\n== %s ==\n", v.title)
		printView(out, v.key.Collection, data)
	}
}

func printView(out io.Writer, collection string, data any) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	switch collection {
	case dashboard.CollectionSummary:
		sum, _ := data.(map[string]any)
		devices, _ := sum["devices"].(map[string]any)
		fmt.Fprintf(tw, "terminals\t%v\tactive %v\toffline %v\tmaintenance %v\n",
			devices["total"], devices["active"], devices["offline"], devices["maintenance"])
		fmt.Fprintf(tw, "customers\t%v\tunread alerts %v\n", sum["totalCustomers"], sum["unreadAlerts"])
	case dashboard.CollectionPosDevices:
		rows, _ := data.([]any)
		fmt.Fprintln(tw, "CODE\tSTATUS\tMODEL\tLAST SEEN")
		for _, r := range rows {
			row, _ := r.(map[string]any)
			fmt.Fprintf(tw, "%v\t%v\t%v\t%v\n", row["deviceCode"], row["status"], orDash(row["model"]), orDash(row["lastConnection"]))
		}
	default:
		rows, _ := data.([]any)
		fmt.Fprintln(tw, "PRIORITY\tTYPE\tTITLE\tCREATED")
		for _, r := range rows {
			row, _ := r.(map[string]any)
			fmt.Fprintf(tw, "%v\t%v\t%v\t%v\n", row["priority"], row["type"], row["title"], row["createdAt"])
		}
	}
}

func orDash(v any) any {
	if v == nil || v == "" {
		return "-"
	}
	return v
}
