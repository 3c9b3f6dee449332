// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/boxbreath/internal/api/connect"
	pacerv1 "github.com/osa030/boxbreath/internal/api/pacerv1"
	"github.com/osa030/boxbreath/internal/api/pacerv1/pacerv1connect"
	"github.com/osa030/boxbreath/internal/domain/plan"
)

var (
	app    = kingpin.New("boxbreath-admincli", "boxbreath pacer admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	statusCmd = app.Command("status", "Get session status")
	startCmd  = app.Command("start", "Start (or resume) the session")
	pauseCmd  = app.Command("pause", "Pause the session")
	resumeCmd = app.Command("resume", "Resume the session")
	stopCmd   = app.Command("stop", "Stop the session")
	resetCmd  = app.Command("reset", "Reset the session to idle")

	shapeCmd  = app.Command("shape", "Change the exercise shape")
	shapeName = shapeCmd.Arg("shape", "triangle or square").Required().String()

	planCmd       = app.Command("plan", "Replace the interval plan")
	planIntervals = planCmd.Arg("intervals", `Intervals as "<rounds>x<seconds>[,...]", e.g. 5x4,2x6`).Required().String()

	historyCmd   = app.Command("history", "List finished sessions")
	historyLimit = historyCmd.Flag("limit", "Maximum number of entries").Default("0").Int32()

	watchCmd   = app.Command("watch", "Stream session notifications")
	watchTypes = watchCmd.Flag("type", "Only stream these notification types (repeatable)").
			Enums("CHANGE_STATE", "CHANGE_PHASE", "CUE", "STATS")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx := context.Background()

	if command == watchCmd.FullCommand() {
		watch(ctx, pacerv1connect.NewWatchServiceClient(http.DefaultClient, *server), *watchTypes)
		return
	}

	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := pacerv1connect.NewAdminServiceClient(http.DefaultClient, *server)

	switch command {
	case statusCmd.FullCommand():
		status(ctx, client, *token)
	case startCmd.FullCommand():
		start(ctx, client, *token)
	case pauseCmd.FullCommand():
		pause(ctx, client, *token)
	case resumeCmd.FullCommand():
		resume(ctx, client, *token)
	case stopCmd.FullCommand():
		stopSession(ctx, client, *token)
	case resetCmd.FullCommand():
		reset(ctx, client, *token)
	case shapeCmd.FullCommand():
		setShape(ctx, client, *token, *shapeName)
	case planCmd.FullCommand():
		setPlan(ctx, client, *token, *planIntervals)
	case historyCmd.FullCommand():
		listHistory(ctx, client, *token, *historyLimit)
	}
}

func authorized[T any](msg *T, token string) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set(apiconnect.AdminTokenHeader, token)
	return req
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func report(success bool, message, ok string) {
	if success {
		fmt.Println(ok)
		return
	}
	fmt.Printf("Failed: %s\n", message)
}

func status(ctx context.Context, client *pacerv1connect.AdminServiceClient, token string) {
	resp, err := client.GetStatus(ctx, authorized(&pacerv1.GetStatusRequest{}, token))
	exitOnError(err)

	fmt.Println("\n=== CURRENT SESSION STATUS ===")
	printSessionInfo(resp.Msg.SessionInfo)
	fmt.Println()
}

func start(ctx context.Context, client *pacerv1connect.AdminServiceClient, token string) {
	resp, err := client.Start(ctx, authorized(&pacerv1.StartRequest{}, token))
	exitOnError(err)
	report(resp.Msg.Success, resp.Msg.Message, "Session started")
}

func pause(ctx context.Context, client *pacerv1connect.AdminServiceClient, token string) {
	resp, err := client.Pause(ctx, authorized(&pacerv1.PauseRequest{}, token))
	exitOnError(err)
	report(resp.Msg.Success, resp.Msg.Message, "Session paused")
}

func resume(ctx context.Context, client *pacerv1connect.AdminServiceClient, token string) {
	resp, err := client.Resume(ctx, authorized(&pacerv1.ResumeRequest{}, token))
	exitOnError(err)
	report(resp.Msg.Success, resp.Msg.Message, "Session resumed")
}

func stopSession(ctx context.Context, client *pacerv1connect.AdminServiceClient, token string) {
	resp, err := client.Stop(ctx, authorized(&pacerv1.StopRequest{}, token))
	exitOnError(err)
	report(resp.Msg.Success, resp.Msg.Message, "Session stopped")
}

func reset(ctx context.Context, client *pacerv1connect.AdminServiceClient, token string) {
	resp, err := client.Reset(ctx, authorized(&pacerv1.ResetRequest{}, token))
	exitOnError(err)
	report(resp.Msg.Success, resp.Msg.Message, "Session reset")
}

func setShape(ctx context.Context, client *pacerv1connect.AdminServiceClient, token, name string) {
	resp, err := client.SetShape(ctx, authorized(&pacerv1.SetShapeRequest{Shape: name}, token))
	exitOnError(err)
	report(resp.Msg.Success, resp.Msg.Message, "Shape changed")
	if resp.Msg.Success {
		printSessionInfo(resp.Msg.SessionInfo)
	}
}

func setPlan(ctx context.Context, client *pacerv1connect.AdminServiceClient, token, text string) {
	intervals, err := plan.Parse(text)
	exitOnError(err)

	req := &pacerv1.SetPlanRequest{}
	for _, iv := range intervals {
		req.Intervals = append(req.Intervals, &pacerv1.Interval{
			Rounds:          int32(iv.Rounds),
			DurationSeconds: iv.DurationSeconds,
		})
	}

	resp, err := client.SetPlan(ctx, authorized(req, token))
	exitOnError(err)
	report(resp.Msg.Success, resp.Msg.Message, "Plan replaced")
	if resp.Msg.Success {
		printSessionInfo(resp.Msg.SessionInfo)
	}
}

func listHistory(ctx context.Context, client *pacerv1connect.AdminServiceClient, token string, limit int32) {
	resp, err := client.ListHistory(ctx, authorized(&pacerv1.ListHistoryRequest{Limit: limit}, token))
	exitOnError(err)

	if len(resp.Msg.Entries) == 0 {
		fmt.Println("No sessions recorded")
		return
	}

	fmt.Printf("%-20s  %-9s  %-9s  %6s  %6s  %s\n", "ENDED", "SHAPE", "REASON", "ROUNDS", "TIME", "PLAN")
	for _, e := range resp.Msg.Entries {
		fmt.Printf("%-20s  %-9s  %-9s  %6d  %6s  %s\n",
			e.EndedAt, e.Shape, e.Reason, e.RoundsCompleted, formatSeconds(e.ElapsedSeconds), e.PlanSummary)
	}
}

func watch(ctx context.Context, client *pacerv1connect.WatchServiceClient, types []string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := &pacerv1.WatchRequest{}
	for _, t := range types {
		req.Types = append(req.Types, pacerv1.NotificationType(t))
	}

	stream, err := client.Watch(ctx, connect.NewRequest(req))
	exitOnError(err)

	fmt.Println("Watching session. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		cancel()
	}()

	for stream.Receive() {
		printNotification(stream.Msg())
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printNotification(n *pacerv1.Notification) {
	fmt.Printf("[%d] ", n.SequenceNo)

	switch n.Type {
	case pacerv1.NotificationTypeInitialState:
		fmt.Println("=== INITIAL STATE ===")
		printSessionInfo(n.SessionInfo)
	case pacerv1.NotificationTypeChangeState:
		fmt.Printf("=== %s ===\n", n.Transition)
		printSessionInfo(n.SessionInfo)
	case pacerv1.NotificationTypeChangePhase:
		if n.Phase != nil {
			fmt.Printf("%s (round %d, interval %d)\n", n.Phase.Name, n.Phase.Round, n.Phase.IntervalIndex+1)
		}
	case pacerv1.NotificationTypeCue:
		if n.Cue != nil {
			fmt.Printf("cue x%d\n", n.Cue.Count)
		}
	case pacerv1.NotificationTypeStats:
		if n.SessionInfo != nil {
			fmt.Printf("elapsed %s, rounds %d\n", n.SessionInfo.ElapsedText, n.SessionInfo.RoundsCompleted)
		}
	default:
		fmt.Printf("=== UNKNOWN EVENT (%v) ===\n", n.Type)
	}
}

func printSessionInfo(s *pacerv1.SessionInfo) {
	if s == nil {
		return
	}
	fmt.Printf("  State: %s\n", formatSessionState(s.State))
	if s.SessionId != "" {
		fmt.Printf("  Session ID: %s\n", s.SessionId)
		fmt.Printf("  Started At: %s\n", s.StartedAt)
	}
	fmt.Printf("  Shape: %s\n", s.Shape)
	fmt.Printf("  Plan: %s\n", s.PlanSummary)
	fmt.Printf("  Phase: %s\n", s.PhaseName)
	fmt.Printf("  Round: %d / %d (completed %d)\n", s.Round, s.TotalRounds, s.RoundsCompleted)
	fmt.Printf("  Legs: %d / %d\n", s.LegsCompleted, s.TotalLegs)
	fmt.Printf("  Interval: %d (leg %.1fs)\n", s.IntervalIndex+1, s.LegDurationSeconds)
	fmt.Printf("  Elapsed: %s\n", s.ElapsedText)
	fmt.Printf("  Leg Progress: %.0f%%\n", s.Progress*100)
}

func formatSessionState(state pacerv1.SessionState) string {
	switch state {
	case pacerv1.SessionStateIdle:
		return "⏹  Idle"
	case pacerv1.SessionStateRunning:
		return "▶️  Running"
	case pacerv1.SessionStatePaused:
		return "⏸  Paused"
	case pacerv1.SessionStateStopped:
		return "⏏  Stopped"
	default:
		return "❓ Unknown"
	}
}

func formatSeconds(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
