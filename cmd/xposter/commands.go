package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roostrcapital/xposter/internal/config"
	"github.com/roostrcapital/xposter/internal/publisher"
	"github.com/roostrcapital/xposter/internal/queue"
	"github.com/roostrcapital/xposter/internal/storage"
)

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or extend the post queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue items in stored order",
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, _ := cmd.Flags().GetString("slot")
		pending, _ := cmd.Flags().GetBool("pending")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.queue.Load(cmd.Context())
		if err != nil {
			return err
		}
		printQueue(os.Stdout, doc.Posts, slot, pending)
		return nil
	},
}

var queueNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the item the next run would publish",
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, _ := cmd.Flags().GetString("slot")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if slot == "" {
			var ok bool
			if slot, ok = queue.SlotFor(time.Now()); !ok {
				return fmt.Errorf("outside posting hours; pass --slot")
			}
		}
		skip, err := guardedSkip(a.journal)
		if err != nil {
			return err
		}
		item, ok, err := a.queue.Next(cmd.Context(), slot, skip)
		if err != nil {
			return err
		}
		if !ok {
			printWarning("No eligible %s post in queue", slot)
			return nil
		}
		printItem(os.Stdout, item)
		return nil
	},
}

var queueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a post to the queue",
	Long: `Append a post to the end of the queue.

Examples:
  xposter queue add --slot morning --content "gm builders"
  xposter queue add --slot evening --file ./thread-2.txt --reply-to previous`,
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := itemFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.queue.Enqueue(cmd.Context(), item); err != nil {
			return err
		}
		printSuccess("Queued %s for %s", item.ID, item.Slot)
		return nil
	},
}

func init() {
	queueListCmd.Flags().String("slot", "", "only items of this slot")
	queueListCmd.Flags().Bool("pending", false, "hide posted items")
	queueNextCmd.Flags().String("slot", "", "slot to inspect (default: current slot)")
	queueAddCmd.Flags().String("id", "", "item id (default: generated)")
	queueAddCmd.Flags().String("slot", "", "slot tag")
	queueAddCmd.Flags().String("content", "", "post body")
	queueAddCmd.Flags().String("file", "", "read the post body from a file")
	queueAddCmd.Flags().String("reply-to", "", `post URL to answer, or "previous"`)
	queueAddCmd.Flags().String("platforms", "x", "comma-separated destination tags")
	queueAddCmd.Flags().String("note", "", "note copied into the posted log")
	queueCmd.AddCommand(queueListCmd, queueNextCmd, queueAddCmd)
}

func itemFromFlags(cmd *cobra.Command) (queue.QueueItem, error) {
	id, _ := cmd.Flags().GetString("id")
	slot, _ := cmd.Flags().GetString("slot")
	content, _ := cmd.Flags().GetString("content")
	file, _ := cmd.Flags().GetString("file")
	replyTo, _ := cmd.Flags().GetString("reply-to")
	platforms, _ := cmd.Flags().GetString("platforms")
	note, _ := cmd.Flags().GetString("note")

	if content == "" && file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return queue.QueueItem{}, fmt.Errorf("reading file: %w", err)
		}
		content = strings.TrimRight(string(data), "\n")
	}
	if id == "" {
		id = uuid.New().String()
	}

	item := queue.QueueItem{
		ID:      id,
		Content: content,
		Slot:    slot,
		Type:    queue.TypeStandalone,
		ReplyTo: replyTo,
		Note:    note,
	}
	if replyTo != "" {
		item.Type = queue.TypeReply
	}
	for _, p := range strings.Split(platforms, ",") {
		if p = strings.TrimSpace(p); p != "" {
			item.Platforms = append(item.Platforms, p)
		}
	}
	return item, item.Validate()
}

func printQueue(w io.Writer, items []queue.QueueItem, slot string, pendingOnly bool) {
	n := 0
	for _, it := range items {
		if slot != "" && it.Slot != slot {
			continue
		}
		if pendingOnly && it.Done() {
			continue
		}
		mark := colorize(colorYellow, "pending")
		if it.Done() {
			mark = colorize(colorGreen, "posted ")
		}
		fmt.Fprintf(w, "  %s  %-10s %-10s %s\n", mark, it.Slot, it.ID, truncate(it.Body(), 60))
		n++
	}
	if n == 0 {
		fmt.Fprintln(w, "  (no items)")
	}
}

func printItem(w io.Writer, it queue.QueueItem) {
	fmt.Fprintf(w, "  %s %s\n", colorize(colorBold, "id:"), it.ID)
	fmt.Fprintf(w, "  %s %s\n", colorize(colorBold, "slot:"), it.Slot)
	fmt.Fprintf(w, "  %s %s\n", colorize(colorBold, "type:"), it.Kind())
	if it.ReplyTo != "" {
		fmt.Fprintf(w, "  %s %s\n", colorize(colorBold, "reply_to:"), it.ReplyTo)
	}
	fmt.Fprintf(w, "\n%s\n", it.Body())
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// guardedSkip excludes items whose submit click was never reconciled.
// An unreadable journal is an error: without it the next item cannot be
// told apart from one that may already be live.
func guardedSkip(j *storage.Store) (func(queue.QueueItem) bool, error) {
	runs, err := j.Unreconciled()
	if err != nil {
		return nil, fmt.Errorf("reading run journal: %w", err)
	}
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ItemID
	}
	return queue.Excluding(ids...), nil
}

// --- log ---

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the posted log, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.queue.Audit(cmd.Context())
		if err != nil {
			return err
		}
		return printAudit(os.Stdout, recs, limit, asJSON)
	},
}

func init() {
	logCmd.Flags().Int("limit", 10, "number of entries")
	logCmd.Flags().Bool("json", false, "print raw JSON")
}

func printAudit(w io.Writer, recs []queue.AuditRecord, limit int, asJSON bool) error {
	var out []queue.AuditRecord
	for i := len(recs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, recs[i])
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	if len(out) == 0 {
		fmt.Fprintln(w, "  (nothing posted yet)")
		return nil
	}
	for _, r := range out {
		fmt.Fprintf(w, "  %s  %-10s %s\n", r.PostedAt, r.ID, r.TweetURL)
	}
	return nil
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent publisher runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		unreconciled, _ := cmd.Flags().GetBool("unreconciled")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var runs []storage.Run
		if unreconciled {
			runs, err = a.journal.Unreconciled()
		} else {
			runs, err = a.journal.RecentRuns(limit)
		}
		if err != nil {
			return err
		}
		printRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "number of runs")
	runsCmd.Flags().Bool("unreconciled", false, "only runs that clicked submit but never recorded a URL")
}

func printRuns(w io.Writer, runs []storage.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "  (no runs)")
		return
	}
	for _, r := range runs {
		state := r.State
		switch r.State {
		case storage.StateRecorded:
			state = colorize(colorGreen, state)
		case storage.StateFailed:
			state = colorize(colorRed, state)
		case storage.StateSubmitted:
			state = colorize(colorYellow, state)
		}
		detail := r.ResultURL
		if detail == "" {
			detail = r.LastError
		}
		fmt.Fprintf(w, "  %s  %-9s %-10s %-10s %s\n", r.StartedAt.Local().Format("2006-01-02 15:04"), r.Slot, r.ItemID, state, detail)
	}
}

// --- reconcile ---

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <id> <url>",
	Short: "Record a post that was published but never recorded",
	Long: `Record a post by hand, for example after a run clicked submit and then
crashed. The item is marked posted with <url>, one posted-log entry is
appended, and the item's unreconciled runs are closed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return reconcile(cmd.Context(), a, args[0], args[1], force)
	},
}

func init() {
	reconcileCmd.Flags().Bool("force", false, "accept a URL that is not a post permalink")
}

func reconcile(ctx context.Context, a *app, id, rawURL string, force bool) error {
	url := rawURL
	if link, ok := publisher.Permalink(rawURL); ok {
		url = link
	} else if !force {
		return fmt.Errorf("%q is not a post permalink; use --force to record it anyway", rawURL)
	}

	rec, err := a.queue.Record(ctx, id, url)
	switch {
	case errors.Is(err, queue.ErrAlreadyPosted):
		it, ferr := a.queue.Find(ctx, id)
		if ferr != nil {
			return ferr
		}
		printWarning("%s is already recorded as %s", id, it.TweetURL)
		url = it.TweetURL
	case err != nil:
		return err
	default:
		printSuccess("Recorded %s as %s", rec.ID, rec.TweetURL)
	}

	n, err := a.journal.ReconcileItem(id, url)
	if err != nil {
		return fmt.Errorf("closing runs: %w", err)
	}
	if n > 0 {
		printSuccess("Closed %d unreconciled run(s)", n)
	}
	return nil
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue, journal and server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}
		defer a.Close()

		if err := a.cfg.Validate(); err != nil {
			printWarning("config incomplete: %v", err)
		}
		printStatus("Account", "%s", valueOr(a.cfg.Platform.Account, "(not set)"))
		printStatus("Queue", "%s", a.cfg.Queue.File)
		printStatus("Posted log", "%s", a.cfg.Queue.LogFile)
		printStatus("Profile", "%s", a.cfg.Browser.ProfileDir)

		if slot, ok := queue.SlotFor(time.Now()); ok {
			printStatus("Current slot", "%s", slot)
		} else {
			printStatus("Current slot", "outside posting hours")
		}

		if doc, err := a.queue.Load(cmd.Context()); err != nil {
			printStatus("Pending", "unreadable (%v)", err)
		} else {
			pending := queue.PendingBySlot(doc.Posts)
			for _, slot := range []string{"morning", "midday", "afternoon", "evening"} {
				printStatus("Pending "+slot, "%d", pending[slot])
			}
			if doc.Metadata.LatestTweet != "" {
				printStatus("Latest post", "%s", doc.Metadata.LatestTweet)
			}
		}

		if runs, err := a.journal.Unreconciled(); err == nil && len(runs) > 0 {
			printWarning("%d run(s) clicked submit but never recorded; see `xposter runs --unreconciled`", len(runs))
		}

		client := &http.Client{Timeout: 2 * time.Second}
		if resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", a.cfg.Server.Port)); err != nil {
			printStatus("Server", "stopped")
		} else {
			resp.Body.Close()
			printStatus("Server", "running on port %d", a.cfg.Server.Port)
		}
		return nil
	},
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a stored configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
