// Command polywhale-state inspects or resets the watcher's persisted state.
//
//	polywhale-state [-config path] show [-alerts n]
//	polywhale-state [-config path] reset [-trades] [-budget] [-cooldowns] [-positions] [-all]
//
// Stop the daemon before resetting: it rewrites the state at the end of every tick.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/rewired-gh/polywhale/internal/config"
	"github.com/rewired-gh/polywhale/internal/state"
	"github.com/rewired-gh/polywhale/internal/storage"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: polywhale-state [-config path] show|reset [flags]")
}

func run(args []string, out io.Writer) error {
	global := flag.NewFlagSet("polywhale-state", flag.ContinueOnError)
	configPath := global.String("config", "configs/config.yaml", "Path to configuration file")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		return usage()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	store, err := storage.New(cfg.Storage.MaxAlerts, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	now := time.Now().In(loc)
	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "show":
		return show(store, rest, now, cfg.Scheduler.MaxPerDay, out)
	case "reset":
		return reset(store, rest, now, out)
	default:
		return usage()
	}
}

func show(store *storage.Storage, args []string, now time.Time, maxPerDay int, out io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	alerts := fs.Int("alerts", 10, "Number of recent alerts to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := store.LoadState(now)
	if err != nil {
		fmt.Fprintf(out, "warning: stored state unreadable (%v), showing defaults\n", err)
	}

	lastSent := "never"
	if !st.Budget.LastSentAt.IsZero() {
		lastSent = st.Budget.LastSentAt.In(now.Location()).Format(time.DateTime)
	}

	rows := [][]string{
		{"Schema version", strconv.Itoa(st.Version)},
		{"Budget date", st.Budget.Date},
		{"Insights used", fmt.Sprintf("%d/%d", st.Budget.Count, maxPerDay)},
		{"Last insight", lastSent},
		{"Known trades", strconv.Itoa(st.Trades.Len())},
		{"Known positions", strconv.Itoa(st.SmartPositions.Len())},
		{"Cooldowns", strconv.Itoa(len(st.Insights))},
	}
	if err := renderTable(out, []string{"Field", "Value"}, rows); err != nil {
		return err
	}

	if len(st.Budget.Categories) > 0 {
		cats := make([]string, 0, len(st.Budget.Categories))
		for c := range st.Budget.Categories {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		rows = nil
		for _, c := range cats {
			rows = append(rows, []string{c, strconv.Itoa(st.Budget.Categories[c])})
		}
		if err := renderTable(out, []string{"Category", "Insights today"}, rows); err != nil {
			return err
		}
	}

	if len(st.Insights) > 0 {
		slugs := make([]string, 0, len(st.Insights))
		for s := range st.Insights {
			slugs = append(slugs, s)
		}
		sort.Slice(slugs, func(i, j int) bool { return st.Insights[slugs[i]].After(st.Insights[slugs[j]]) })
		rows = nil
		for _, s := range slugs {
			at := st.Insights[s]
			rows = append(rows, []string{s, at.In(now.Location()).Format(time.DateTime), now.Sub(at).Round(time.Minute).String()})
		}
		if err := renderTable(out, []string{"Event", "Last insight", "Age"}, rows); err != nil {
			return err
		}
	}

	if *alerts > 0 {
		recent, err := store.GetRecentAlerts(*alerts)
		if err != nil {
			return err
		}
		if len(recent) > 0 {
			rows = nil
			for _, a := range recent {
				rows = append(rows, []string{
					a.SentAt.In(now.Location()).Format(time.DateTime),
					a.Kind,
					a.EventSlug,
					a.Category,
					fmt.Sprintf("$%.0f", a.Value),
				})
			}
			if err := renderTable(out, []string{"Sent", "Kind", "Event", "Category", "Value"}, rows); err != nil {
				return err
			}
		}
	}
	return nil
}

// renderTable writes one table to out.
func renderTable(out io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(out)
	cols := make([]any, len(header))
	for i, h := range header {
		cols[i] = h
	}
	table.Header(cols...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to add table row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

func reset(store *storage.Storage, args []string, now time.Time, out io.Writer) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	trades := fs.Bool("trades", false, "Forget notified trade ids")
	budget := fs.Bool("budget", false, "Reset today's insight count")
	cooldowns := fs.Bool("cooldowns", false, "Clear per-event cooldowns")
	positions := fs.Bool("positions", false, "Forget known smart-money positions")
	all := fs.Bool("all", false, "Reset everything above")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := state.ResetOptions{
		Trades:         *trades,
		BudgetCount:    *budget,
		Insights:       *cooldowns,
		SmartPositions: *positions,
	}
	if *all {
		opts = state.ResetAll
	}
	if opts == (state.ResetOptions{}) {
		return fmt.Errorf("nothing to reset: pass -trades, -budget, -cooldowns, -positions or -all")
	}

	st, err := store.LoadState(now)
	if err != nil {
		fmt.Fprintf(out, "warning: stored state unreadable (%v), resetting defaults\n", err)
	}
	st.Reset(opts)
	if err := store.SaveState(st); err != nil {
		return err
	}

	fmt.Fprintf(out, "State reset (trades=%t budget=%t cooldowns=%t positions=%t)\n",
		opts.Trades, opts.BudgetCount, opts.Insights, opts.SmartPositions)
	return nil
}
