package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/kiwix-monitor-go/internal/app"
	"github.com/yourusername/kiwix-monitor-go/internal/domain"
	"github.com/yourusername/kiwix-monitor-go/pkg/logger"
)

var (
	serverURL   string
	authSecret  string
	configFile  string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "kiwix-monitor",
		Short: "Kiwix monitor CLI - inspect and drive the download session daemon",
		Long: `A command-line interface for the Kiwix download session daemon.
It lists tracked operations, feeds engine events and controls the foreground session.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Server URL")
	rootCmd.PersistentFlags().StringVar(&authSecret, "secret", os.Getenv("KIWIXMON_SERVER_AUTH_SECRET"), "Shared secret used to sign API tokens")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file passed to an auto-started server")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	opsCmd.AddCommand(opsListCmd, opsGetCmd, opsClearCmd, opsWatchCmd)
	rootCmd.AddCommand(opsCmd, statsCmd, emitCmd, startCmd, stopCmd, statusCmd, notificationsCmd, logsCmd)

	opsListCmd.Flags().StringP("status", "s", "", "Filter by status")
	emitCmd.Flags().String("title", "", "Operation title")
	emitCmd.Flags().String("file", "", "Operation file reference")
	emitCmd.Flags().Int("progress", 0, "Progress percentage")
	emitCmd.Flags().String("error", "", "Error message for error events")
	startCmd.Flags().String("name", "", "Display name for the foreground summary")
	logsCmd.Flags().IntP("limit", "n", 50, "Number of entries")
	logsCmd.Flags().StringP("search", "q", "", "Only entries containing this text")
	logsCmd.Flags().String("date", "", "Day to read (YYYY-MM-DD)")
	logsCmd.Flags().BoolP("follow", "f", false, "Stream new entries")
	logsCmd.Flags().BoolP("json", "j", false, "Output in JSON format")
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

var opsCmd = &cobra.Command{
	Use:     "ops",
	Aliases: []string{"operations"},
	Short:   "Inspect tracked operations",
}

var opsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		status, _ := cmd.Flags().GetString("status")

		path := "/api/v1/operations"
		if status != "" {
			path += "?status=" + url.QueryEscape(status)
		}

		var ops []domain.Operation
		if err := apiRequest(http.MethodGet, path, nil, &ops); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPROGRESS\tUPDATED")
		for _, op := range ops {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d%%\t%s\n",
				op.ID,
				truncate(op.DisplayTitle(), 40),
				op.Status,
				op.Progress,
				op.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var opsGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		var op domain.Operation
		if err := apiRequest(http.MethodGet, fmt.Sprintf("/api/v1/operations/%d", id), nil, &op); err != nil {
			return err
		}

		fmt.Printf("Operation Details:\n")
		fmt.Printf("  ID:       %d\n", op.ID)
		fmt.Printf("  Title:    %s\n", op.DisplayTitle())
		fmt.Printf("  Status:   %s\n", op.Status)
		fmt.Printf("  Progress: %d%%\n", op.Progress)
		if op.TotalBytes > 0 {
			fmt.Printf("  Bytes:    %d / %d\n", op.DownloadedBytes, op.TotalBytes)
		}
		if op.FileRef != "" {
			fmt.Printf("  File:     %s\n", op.FileRef)
		}
		if op.ErrorMessage != "" {
			fmt.Printf("  Error:    %s\n", op.ErrorMessage)
		}
		fmt.Printf("  Created:  %s\n", op.CreatedAt.Format("2006-01-02 15:04:05"))
		if op.CompletedAt != nil {
			fmt.Printf("  Finished: %s\n", op.CompletedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var opsClearCmd = &cobra.Command{
	Use:   "clear [id]",
	Short: "Remove a stored operation record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := apiRequest(http.MethodDelete, fmt.Sprintf("/api/v1/operations/%d", id), nil, nil); err != nil {
			return err
		}
		fmt.Println("Operation cleared")
		return nil
	},
}

var opsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream applied operation changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		conn, err := dialStream("/api/v1/operations/stream")
		if err != nil {
			return err
		}
		defer conn.Close()
		closeOnInterrupt(conn.Close)

		for {
			var change app.OperationChange
			if err := conn.ReadJSON(&change); err != nil {
				return nil
			}
			op := change.Operation
			if op == nil {
				continue
			}
			state := string(op.Status)
			if change.Removed {
				state = "removed"
			}
			fmt.Printf("%-16s %6d  %-20s %3d%%  %s\n", change.Kind, op.ID, state, op.Progress, op.DisplayTitle())
		}
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show operation statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		var stats domain.OperationStats
		if err := apiRequest(http.MethodGet, "/api/v1/operations/stats", nil, &stats); err != nil {
			return err
		}

		fmt.Println("Operation Statistics:")
		fmt.Printf("  Total:       %d\n", stats.Total)
		fmt.Printf("  Active:      %d\n", stats.Active)
		fmt.Printf("  Queued:      %d\n", stats.Queued)
		fmt.Printf("  Downloading: %d\n", stats.Downloading)
		fmt.Printf("  Paused:      %d\n", stats.Paused)
		fmt.Printf("  Waiting:     %d\n", stats.WaitingOnNetwork)
		fmt.Printf("  Completed:   %d\n", stats.Completed)
		fmt.Printf("  Failed:      %d\n", stats.Failed)
		return nil
	},
}

var emitCmd = &cobra.Command{
	Use:   "emit [kind] [id]",
	Short: "Send an engine event to the daemon",
	Long: `Send an engine callback as the download engine would.
Kinds: added, queued, started, progress, paused, resumed, waiting_network,
completed, error, cancelled, deleted, removed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		title, _ := cmd.Flags().GetString("title")
		file, _ := cmd.Flags().GetString("file")
		progress, _ := cmd.Flags().GetInt("progress")
		errMsg, _ := cmd.Flags().GetString("error")

		env := domain.EventEnvelope{
			Kind: domain.EventKind(args[0]),
			Operation: domain.Operation{
				ID:       id,
				Title:    title,
				FileRef:  file,
				Progress: progress,
			},
			Error: errMsg,
		}

		var result map[string]interface{}
		if err := apiRequest(http.MethodPost, "/api/v1/engine/events", env, &result, http.StatusAccepted); err != nil {
			return err
		}
		fmt.Printf("Event accepted: %v for operation %v\n", result["kind"], result["operation_id"])
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon and re-evaluate the foreground session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		name, _ := cmd.Flags().GetString("name")
		var status app.SessionStatus
		command := app.ServiceCommand{Action: app.ActionStartService, DisplayName: name}
		if err := apiRequest(http.MethodPost, "/api/v1/service/command", command, &status, http.StatusAccepted); err != nil {
			return err
		}
		printStatus(status)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the session and the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isServerRunning() {
			fmt.Println("Server is not running")
			return nil
		}
		command := app.ServiceCommand{Action: app.ActionStopService}
		if err := apiRequest(http.MethodPost, "/api/v1/service/command", command, nil, http.StatusAccepted); err != nil {
			return err
		}
		fmt.Println("Stop requested")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isServerRunning() {
			fmt.Println("Server is not running")
			return nil
		}
		var status app.SessionStatus
		if err := apiRequest(http.MethodGet, "/api/v1/service", nil, &status); err != nil {
			return err
		}
		printStatus(status)
		return nil
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List notifications currently shown",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		var tray struct {
			Notifications []domain.Notification `json:"notifications"`
		}
		if err := apiRequest(http.MethodGet, "/api/v1/notifications", nil, &tray); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tTEXT\tONGOING")
		for _, n := range tray.Notifications {
			fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", n.ID, truncate(n.Title, 30), truncate(n.Text, 40), n.Ongoing)
		}
		return w.Flush()
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "View category logs (session, error)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		name := string(logger.CategorySession)
		if len(args) == 1 {
			name = args[0]
		}
		category, err := logger.ParseCategory(name)
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		search, _ := cmd.Flags().GetString("search")
		date, _ := cmd.Flags().GetString("date")
		follow, _ := cmd.Flags().GetBool("follow")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if follow {
			return followLogs(category, jsonOutput)
		}

		query := url.Values{}
		query.Set("limit", strconv.Itoa(limit))
		if date != "" {
			query.Set("date", date)
		}
		path := "/api/v1/logs/" + string(category)
		if search != "" {
			path += "/search"
			query.Set("q", search)
		}

		var result struct {
			Entries []logger.LogEntry `json:"entries"`
		}
		if err := apiRequest(http.MethodGet, path+"?"+query.Encode(), nil, &result); err != nil {
			return err
		}
		for _, entry := range result.Entries {
			printLogEntry(entry, jsonOutput)
		}
		return nil
	},
}

func followLogs(category logger.LogCategory, jsonOutput bool) error {
	conn, err := dialStream("/api/v1/logs/" + string(category) + "/tail")
	if err != nil {
		return err
	}
	defer conn.Close()
	closeOnInterrupt(conn.Close)

	for {
		var entry logger.LogEntry
		if err := conn.ReadJSON(&entry); err != nil {
			return nil
		}
		printLogEntry(entry, jsonOutput)
	}
}

func printLogEntry(entry logger.LogEntry, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.Marshal(entry)
		fmt.Println(string(data))
		return
	}
	line := fmt.Sprintf("%s %-5s %s", entry.Timestamp, entry.Level, entry.Message)
	for k, v := range entry.Fields {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	fmt.Println(line)
}

func printStatus(status app.SessionStatus) {
	state := "background"
	if status.Foreground {
		state = "foreground"
	}
	fmt.Println("Session:")
	fmt.Printf("  ID:       %s\n", status.SessionID)
	fmt.Printf("  Running:  %t\n", status.Running)
	fmt.Printf("  State:    %s\n", state)
	fmt.Printf("  Name:     %s\n", status.DisplayName)
	fmt.Printf("  Pending:  %d\n", status.PendingTasks)
}

func closeOnInterrupt(closeFn func() error) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		closeFn()
	}()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid operation id %q", s)
	}
	return id, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
