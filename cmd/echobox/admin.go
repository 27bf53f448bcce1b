package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Strob0t/echobox/internal/config"
	"github.com/Strob0t/echobox/internal/domain/channel"
)

// runMigrate dispatches migrate subcommands (up, down, version).
func runMigrate(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printMigrateHelp()
		return nil
	}

	switch args[0] {
	case "up", "down", "version":
	default:
		printMigrateHelp()
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}

	fs := flag.NewFlagSet("migrate "+args[0], flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back (down only)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	be, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	switch args[0] {
	case "up":
		if err := be.migrate(ctx); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if *steps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		if err := be.rollback(ctx, *steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}

	v, err := be.version(ctx)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Fprintf(os.Stderr, "%s schema version: %d\n", be.name, v)
	return nil
}

func printMigrateHelp() {
	fmt.Fprintf(os.Stderr, `Usage: echobox migrate <command> [options]

Commands:
  up        Apply all pending migrations
  down      Roll back migrations (--steps N, default 1)
  version   Print the current schema version
`)
}

// runChannels dispatches channel subcommands (add, list).
func runChannels(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printChannelsHelp()
		return nil
	}

	switch args[0] {
	case "add":
		return runChannelsAdd(args[1:])
	case "list":
		return runChannelsList(args[1:])
	default:
		printChannelsHelp()
		return fmt.Errorf("unknown channels command: %s", args[0])
	}
}

func printChannelsHelp() {
	fmt.Fprintf(os.Stderr, `Usage: echobox channels <command> [options]

Commands:
  add    Add a notification channel to a project key
  list   List the channels of a project key
  help   Show this help message

Examples:
  echobox channels add --project pk_live_123 --type webhook --config '{"url":"https://example.com/hook","secret":"s3cret"}'
  echobox channels add --project pk_live_123 --type slack --config '{"webhookUrl":"https://hooks.slack.com/services/T/B/X"}'
  echobox channels add --project pk_live_123 --type email --config '{"email":"dev@example.com","verified":true}'
  echobox channels list --project pk_live_123
`)
}

func loadAdminDeps() (*backend, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	be, err := openBackend(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return be, be.close, nil
}

func runChannelsAdd(args []string) error {
	fs := flag.NewFlagSet("channels add", flag.ContinueOnError)
	project := fs.String("project", "", "project key id (required)")
	typ := fs.String("type", "", "channel type: webhook, email, slack or sms (required)")
	rawCfg := fs.String("config", "{}", "channel config as JSON")
	disabled := fs.Bool("disabled", false, "create the channel disabled")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *project == "" {
		return fmt.Errorf("--project is required")
	}
	ch := &channel.Channel{
		ProjectKeyID: *project,
		Type:         channel.Type(*typ),
		Enabled:      !*disabled,
		Config:       json.RawMessage(*rawCfg),
	}
	if !ch.Type.Valid() {
		return fmt.Errorf("--type must be one of %v", channel.Types)
	}
	if err := channel.ValidateConfig(ch); err != nil {
		return fmt.Errorf("invalid --config: %w", err)
	}

	be, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := be.admin.CreateChannel(context.Background(), ch); err != nil {
		return fmt.Errorf("create channel: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Channel created: %s (project=%s, enabled=%t)\n", ch.String(), ch.ProjectKeyID, ch.Enabled)
	return nil
}

func runChannelsList(args []string) error {
	fs := flag.NewFlagSet("channels list", flag.ContinueOnError)
	project := fs.String("project", "", "project key id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *project == "" {
		return fmt.Errorf("--project is required")
	}

	be, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	chans, err := be.admin.ListChannels(context.Background(), *project)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	if len(chans) == 0 {
		fmt.Println("No channels found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tENABLED\tVERIFIED\tCREATED")
	for i := range chans {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%t\t%t\t%s\n",
			chans[i].ID, chans[i].Type, chans[i].Enabled, chans[i].Verified, chans[i].CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
