// Command relayctl sends trigger requests to a running relay's internal endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/pscheid92/adrelay/internal/adapter/triggerclient"
	"github.com/pscheid92/adrelay/internal/domain"
	"github.com/pscheid92/adrelay/internal/platform/correlation"
	"github.com/pscheid92/adrelay/internal/platform/logging"
)

const usage = `usage: relayctl [-addr URL] [-verbose] <command> [flags]

commands:
  notify-reviewers                        refresh every reviewer dashboard
  notify-submitter -user ID               refresh one submitter's dashboard
  send -user ID -title T -message M       push a notification to one user
       [-level info|success|warning|error] [-link URL]
`

func main() {
	var (
		addr    = flag.String("addr", envOr("RELAY_INTERNAL_URL", "http://127.0.0.1:8081"), "Internal trigger endpoint (or set RELAY_INTERNAL_URL env)")
		timeout = flag.Duration("timeout", 10*time.Second, "Overall request timeout")
		verbose = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	logLevel := "info"
	if *verbose {
		logLevel = "debug"
	}
	logging.InitLogger(logLevel, "text")

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = correlation.WithID(ctx, correlation.NewID())

	client := triggerclient.New(*addr)
	if err := run(ctx, client, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Fatalf("%s failed: %v", flag.Arg(0), err)
	}
}

func run(ctx context.Context, client *triggerclient.Client, cmd string, args []string) error {
	switch cmd {
	case "notify-reviewers":
		n, err := client.NotifyReviewers(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("delivered to %d reviewer connection(s)\n", n)

	case "notify-submitter":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		user := fs.String("user", "", "Submitter user ID")
		_ = fs.Parse(args)
		if *user == "" {
			return fmt.Errorf("-user is required")
		}

		ok, err := client.NotifySubmitter(ctx, *user)
		if err != nil {
			return err
		}
		printDelivered(*user, ok)

	case "send":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		var (
			user    = fs.String("user", "", "Recipient user ID")
			title   = fs.String("title", "", "Notification title")
			message = fs.String("message", "", "Notification message")
			level   = fs.String("level", string(domain.LevelInfo), "info, success, warning or error")
			link    = fs.String("link", "", "Optional link")
		)
		_ = fs.Parse(args)
		if *user == "" || *title == "" {
			return fmt.Errorf("-user and -title are required")
		}
		if !domain.Level(*level).Valid() {
			return fmt.Errorf("unknown level %q", *level)
		}

		notification := domain.Notification{
			Title:    *title,
			Message:  *message,
			Level:    domain.Level(*level),
			DeepLink: *link,
		}
		slog.DebugContext(ctx, "Sending notification", "user", *user, "level", notification.Level)

		ok, err := client.SendNotification(ctx, *user, notification)
		if err != nil {
			return err
		}
		printDelivered(*user, ok)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func printDelivered(user string, ok bool) {
	if ok {
		fmt.Printf("delivered to %s\n", user)
		return
	}
	fmt.Printf("%s is not connected\n", user)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
