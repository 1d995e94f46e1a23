package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kalambet/vitalsync/internal/cache"
	"github.com/kalambet/vitalsync/internal/config"
	"github.com/kalambet/vitalsync/internal/security"
	"github.com/kalambet/vitalsync/internal/syncer"
	"github.com/kalambet/vitalsync/internal/vital"
)

// --- vitals ---

var vitalsCmd = &cobra.Command{
	Use:   "vitals",
	Short: "Record and browse measurements",
}

var vitalsAddCmd = &cobra.Command{
	Use:   "add <type> <value> [secondary]",
	Short: "Record a measurement",
	Long: `Record a measurement.

Examples:
  vitalsync vitals add steps 8123
  vitalsync vitals add weight 72.4 --date 2025-07-08
  vitalsync vitals add bloodPressure 118 76`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", args[1])
		}
		req := map[string]any{
			"type":   args[0],
			"value":  value,
			"source": "cli",
		}
		if len(args) == 3 {
			secondary, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid secondary value %q", args[2])
			}
			req["secondaryValue"] = secondary
		}
		if date, _ := cmd.Flags().GetString("date"); date != "" {
			req["recordedDate"] = date
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/vitals", req)
		if err != nil {
			return err
		}
		var rec vital.Record
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}
		printSuccess("Recorded %s %s %s for %s (id %d)", rec.Type, formatValue(rec), rec.Unit, rec.RecordedDate, rec.ID)
		return nil
	},
}

var vitalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List measurements",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		for _, name := range []string{"type", "from", "to"} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				q.Set(name, v)
			}
		}
		path := "/vitals"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var recs []vital.Record
		if err := decodeJSON(resp, &recs); err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(recs)
		}
		if len(recs) == 0 {
			outf("No measurements.\n")
			return nil
		}
		tw := tabwriter.NewWriter(rootCmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDATE\tTYPE\tVALUE\tSOURCE\tSYNC")
		for _, r := range recs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s %s\t%s\t%s\n", r.ID, r.RecordedDate, r.Type, formatValue(r), r.Unit, r.Source, r.SyncStatus)
		}
		return tw.Flush()
	},
}

var vitalsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a measurement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/vitals/"+args[0])
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted measurement %s", args[0])
		return nil
	},
}

func formatValue(r vital.Record) string {
	v := strconv.FormatFloat(r.Value, 'f', -1, 64)
	if r.SecondaryValue != nil {
		v += "/" + strconv.FormatFloat(*r.SecondaryValue, 'f', -1, 64)
	}
	return v
}

func init() {
	vitalsAddCmd.Flags().String("date", "", "recorded date (YYYY-MM-DD, default today)")
	vitalsListCmd.Flags().String("type", "", "measurement type")
	vitalsListCmd.Flags().String("from", "", "first date (YYYY-MM-DD)")
	vitalsListCmd.Flags().String("to", "", "last date (YYYY-MM-DD)")
	vitalsListCmd.Flags().Bool("json", false, "print JSON")
	vitalsCmd.AddCommand(vitalsAddCmd, vitalsListCmd, vitalsDeleteCmd)
}

// --- targets ---

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Show and set per-type goals",
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/targets")
		if err != nil {
			return err
		}
		var targets []vital.Target
		if err := decodeJSON(resp, &targets); err != nil {
			return err
		}
		for _, t := range targets {
			outf("  %s = %s %s\n", colorize(colorBold, t.Type.Wire()), strconv.FormatFloat(t.Value, 'f', -1, 64), t.Unit)
		}
		return nil
	},
}

var targetsSetCmd = &cobra.Command{
	Use:   "set <type> <value>",
	Short: "Set the target for a measurement type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", args[1])
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/targets/"+url.PathEscape(args[0]), map[string]any{"value": value})
		if err != nil {
			return err
		}
		var t vital.Target
		if err := decodeJSON(resp, &t); err != nil {
			return err
		}
		printSuccess("Target for %s set to %s %s", t.Type, strconv.FormatFloat(t.Value, 'f', -1, 64), t.Unit)
		return nil
	},
}

func init() {
	targetsCmd.AddCommand(targetsListCmd, targetsSetCmd)
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize with the remote service",
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Syncing...")
		resp, err := client.post(cmd.Context(), "/sync", nil)
		if err != nil {
			return err
		}
		var res struct {
			syncer.Result
			DurationMS int64  `json:"durationMs"`
			Warning    string `json:"warning"`
		}
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		printSuccess("Sync finished in %dms", res.DurationMS)
		printStatus("Uploaded", "%d", res.Uploaded)
		if res.Failed > 0 {
			printStatus("Failed", "%d", res.Failed)
		}
		printStatus("Applied", "%d", res.Applied)
		printStatus("Deleted", "%d", res.Deleted)
		printStatus("Conflicts", "%d detected, %d resolved, %d pending",
			res.Conflicts.Detected, res.Conflicts.Resolved, res.Conflicts.Pending)
		if res.TimedOut {
			printWarning("background time budget exceeded")
		}
		if res.Warning != "" {
			printWarning("%s; see 'vitalsync sync conflicts'", res.Warning)
		}
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last sync outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		st, err := fetchSyncStatus(cmd.Context(), client)
		if err != nil {
			return err
		}
		printSyncStatus(st)
		return nil
	},
}

var syncConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List conflicts waiting for a decision",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/sync/conflicts")
		if err != nil {
			return err
		}
		var cs []syncer.Conflict
		if err := decodeJSON(resp, &cs); err != nil {
			return err
		}
		if len(cs) == 0 {
			outf("No pending conflicts.\n")
			return nil
		}
		tw := tabwriter.NewWriter(rootCmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDATE\tTYPE\tLOCAL\tREMOTE")
		for _, c := range cs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.RecordedDate, c.Type,
				formatValue(c.Local), strconv.FormatFloat(c.Remote.Value, 'f', -1, 64))
		}
		return tw.Flush()
	},
}

var syncResolveCmd = &cobra.Command{
	Use:   "resolve <id> <local|remote>",
	Short: "Resolve a held conflict",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := syncer.ParseChoice(args[1]); err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/sync/conflicts/"+url.PathEscape(args[0])+"/resolve",
			map[string]string{"choice": args[1]})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Conflict %s resolved with the %s value", args[0], args[1])
		return nil
	},
}

var syncStrategyCmd = &cobra.Command{
	Use:   "strategy [name]",
	Short: "Show or set the conflict strategy",
	Long: `Show or set the conflict strategy.

Strategies: local_wins, remote_wins, merge, manual.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var out map[string]string
		if len(args) == 0 {
			resp, err := client.get(cmd.Context(), "/sync/strategy")
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
			outf("%s\n", out["strategy"])
			return nil
		}

		if _, err := syncer.ParseStrategy(args[0]); err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/sync/strategy", map[string]string{"strategy": args[0]})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Conflict strategy set to %s", out["strategy"])
		return nil
	},
}

var syncAutoCmd = &cobra.Command{
	Use:       "auto [on|off]",
	Short:     "Show or switch automatic syncing",
	Long:      "Show or switch automatic syncing. Manual 'sync run' works either way.",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var out struct {
			Enabled bool `json:"enabled"`
		}
		if len(args) == 0 {
			resp, err := client.get(cmd.Context(), "/sync/auto")
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
			outf("%s\n", onOff(out.Enabled))
			return nil
		}

		resp, err := client.put(cmd.Context(), "/sync/auto", map[string]bool{"enabled": args[0] == "on"})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Auto sync %s", onOff(out.Enabled))
		return nil
	},
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func init() {
	syncCmd.AddCommand(syncRunCmd, syncStatusCmd, syncConflictsCmd, syncResolveCmd, syncStrategyCmd, syncAutoCmd)
}

// --- cache ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/cache/stats")
		if err != nil {
			return err
		}
		var st cache.Stats
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}
		printStatus("Entries", "%d", st.EntryCount)
		printStatus("Size", "%d bytes", st.TotalSize)
		if st.OldestEntry != nil {
			printStatus("Oldest", "%s", st.OldestEntry.Local().Format("2006-01-02 15:04"))
		}
		if st.MostAccessed != nil {
			printStatus("Most accessed", "%s (%s)", st.MostAccessed.Key, countLabel(st.MostAccessed.Count, "hit"))
		}
		return nil
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/cache/cleanup", nil)
		if err != nil {
			return err
		}
		var out map[string]int64
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Removed %s", countLabel(out["removed"], "expired entry"))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cache entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/cache")
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Cache cleared")
		return nil
	},
}

func countLabel(n int64, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	if strings.HasSuffix(noun, "y") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(noun, "y"))
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheCleanupCmd, cacheClearCmd)
}

// --- offline ---

var offlineCmd = &cobra.Command{
	Use:   "offline",
	Short: "Inspect and replay the offline request queue",
}

var offlineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if status, _ := cmd.Flags().GetString("status"); status != "" {
			q.Set("status", status)
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		path := "/offline"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var reqs []cache.Request
		if err := decodeJSON(resp, &reqs); err != nil {
			return err
		}
		if len(reqs) == 0 {
			outf("Offline queue is empty.\n")
			return nil
		}
		tw := tabwriter.NewWriter(rootCmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tMETHOD\tURL\tPRIORITY\tSTATUS\tRETRIES")
		for _, r := range reqs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", r.ID, r.Method, r.URL, r.Priority, r.Status, r.RetryCount)
		}
		return tw.Flush()
	},
}

var offlineDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Replay queued requests against the remote service",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/offline/drain", nil)
		if err != nil {
			return err
		}
		var res cache.DrainResult
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		printSuccess("Replayed %s, %d failed", countLabel(int64(res.Replayed), "request"), res.Failed)
		if res.Stopped {
			printWarning("network lost during replay; remaining requests stay queued")
		}
		return nil
	},
}

func init() {
	offlineListCmd.Flags().String("status", "", "filter by status (pending, done, failed)")
	offlineListCmd.Flags().Int("limit", 0, "maximum number of requests")
	offlineCmd.AddCommand(offlineListCmd, offlineDrainCmd)
}

// --- security ---

var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Manage the secure session",
}

var securityUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Authenticate and start a secure session",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{}
		if reason, _ := cmd.Flags().GetString("reason"); reason != "" {
			body["reason"] = reason
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/security/unlock", body)
		if err != nil {
			return err
		}
		var out map[string]string
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Session %s", out["state"])
		return nil
	},
}

var securityLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "End the secure session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/security/lock", nil)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Session locked")
		return nil
	},
}

var securityCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report security posture",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/security/check")
		if err != nil {
			return err
		}
		var res security.CheckResult
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		if res.Secure {
			printSuccess("No issues found")
			return nil
		}
		for _, issue := range res.Issues {
			printWarning("%s", issue)
		}
		return nil
	},
}

var securityLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the security audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/security/logs?limit="+strconv.Itoa(limit))
		if err != nil {
			return err
		}
		var logs []security.LogEntry
		if err := decodeJSON(resp, &logs); err != nil {
			return err
		}
		for _, e := range logs {
			mark := colorize(colorGreen, "ok")
			if !e.Success {
				mark = colorize(colorRed, "failed")
			}
			outf("%s  %-22s %s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Event, mark)
		}
		return nil
	},
}

var securityExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write an encrypted backup of all measurements and targets",
	Long: `Write an encrypted backup of all measurements and targets.

The session must be unlocked. The backup is written to stdout unless --out
is given.

Examples:
  vitalsync security export --password "correct horse" --out vitals.backup`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			return fmt.Errorf("--password is required")
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/security/export", map[string]string{"password": password})
		if err != nil {
			return err
		}
		var out struct {
			Blob   string `json:"blob"`
			Vitals int    `json:"vitals"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("out")
		if path == "" {
			outf("%s\n", out.Blob)
			return nil
		}
		if err := os.WriteFile(path, []byte(out.Blob+"\n"), 0o600); err != nil {
			return fmt.Errorf("writing backup: %w", err)
		}
		printSuccess("Exported %s to %s", countLabel(int64(out.Vitals), "measurement"), path)
		return nil
	},
}

var securityImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Restore an encrypted backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			return fmt.Errorf("--password is required")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading backup: %w", err)
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/security/import", map[string]string{
			"blob":     strings.TrimSpace(string(data)),
			"password": password,
		})
		if err != nil {
			return err
		}
		var out map[string]int
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Imported %s (%d already present)", countLabel(int64(out["imported"]), "measurement"), out["skipped"])
		return nil
	},
}

var securityResumeCmd = &cobra.Command{
	Use:    "resume",
	Short:  "Signal that the app returned to the foreground",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/security/resume", nil)
		if err != nil {
			return err
		}
		var out struct {
			State        string `json:"state"`
			AuthRequired bool   `json:"authRequired"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if out.AuthRequired {
			printWarning("Session locked; run 'vitalsync security unlock'")
			return nil
		}
		printSuccess("Session %s", out.State)
		return nil
	},
}

func init() {
	securityUnlockCmd.Flags().String("reason", "", "reason shown in the authentication prompt")
	securityLogsCmd.Flags().Int("limit", 20, "number of entries")
	securityExportCmd.Flags().String("password", "", "backup password")
	securityExportCmd.Flags().String("out", "", "output file")
	securityImportCmd.Flags().String("password", "", "backup password")
	securityCmd.AddCommand(securityUnlockCmd, securityLockCmd, securityCheckCmd, securityLogsCmd,
		securityExportCmd, securityImportCmd, securityResumeCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage vitalsync configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			outf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		if strings.HasSuffix(key, "token") {
			value = "****"
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
