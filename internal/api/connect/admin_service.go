// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"time"

	"connectrpc.com/connect"

	pacerv1 "github.com/osa030/boxbreath/internal/api/pacerv1"
	"github.com/osa030/boxbreath/internal/api/pacerv1/pacerv1connect"
	"github.com/osa030/boxbreath/internal/app/session"
	"github.com/osa030/boxbreath/internal/domain/plan"
	"github.com/osa030/boxbreath/internal/infra/history"
)

// AdminService implements the AdminService RPC.
type AdminService struct {
	session *session.Manager
}

// NewAdminService creates a new AdminService.
func NewAdminService(session *session.Manager) *AdminService {
	return &AdminService{
		session: session,
	}
}

// Ensure AdminService implements the interface.
var _ pacerv1connect.AdminServiceHandler = (*AdminService)(nil)

// GetStatus returns the current session status.
func (s *AdminService) GetStatus(
	ctx context.Context,
	req *connect.Request[pacerv1.GetStatusRequest],
) (*connect.Response[pacerv1.GetStatusResponse], error) {
	return connect.NewResponse(&pacerv1.GetStatusResponse{
		SessionInfo: s.session.Status(),
	}), nil
}

// Start starts a session, or resumes a paused one.
func (s *AdminService) Start(
	ctx context.Context,
	req *connect.Request[pacerv1.StartRequest],
) (*connect.Response[pacerv1.StartResponse], error) {
	if err := s.session.Start(ctx); err != nil {
		return connect.NewResponse(&pacerv1.StartResponse{
			Success: false,
			Message: err.Error(),
		}), nil
	}

	return connect.NewResponse(&pacerv1.StartResponse{
		Success:     true,
		Message:     "Session started",
		SessionInfo: s.session.Status(),
	}), nil
}

// Pause pauses the session.
func (s *AdminService) Pause(
	ctx context.Context,
	req *connect.Request[pacerv1.PauseRequest],
) (*connect.Response[pacerv1.PauseResponse], error) {
	if err := s.session.Pause(); err != nil {
		return connect.NewResponse(&pacerv1.PauseResponse{
			Success: false,
			Message: err.Error(),
		}), nil
	}

	return connect.NewResponse(&pacerv1.PauseResponse{
		Success: true,
		Message: "Session paused",
	}), nil
}

// Resume resumes the session.
func (s *AdminService) Resume(
	ctx context.Context,
	req *connect.Request[pacerv1.ResumeRequest],
) (*connect.Response[pacerv1.ResumeResponse], error) {
	if err := s.session.Resume(ctx); err != nil {
		return connect.NewResponse(&pacerv1.ResumeResponse{
			Success: false,
			Message: err.Error(),
		}), nil
	}

	return connect.NewResponse(&pacerv1.ResumeResponse{
		Success: true,
		Message: "Session resumed",
	}), nil
}

// Stop stops the session.
func (s *AdminService) Stop(
	ctx context.Context,
	req *connect.Request[pacerv1.StopRequest],
) (*connect.Response[pacerv1.StopResponse], error) {
	if err := s.session.Stop(); err != nil {
		return connect.NewResponse(&pacerv1.StopResponse{
			Success: false,
			Message: err.Error(),
		}), nil
	}

	return connect.NewResponse(&pacerv1.StopResponse{
		Success: true,
		Message: "Session stopped",
	}), nil
}

// Reset returns the session to idle.
func (s *AdminService) Reset(
	ctx context.Context,
	req *connect.Request[pacerv1.ResetRequest],
) (*connect.Response[pacerv1.ResetResponse], error) {
	s.session.Reset()

	return connect.NewResponse(&pacerv1.ResetResponse{
		Success: true,
		Message: "Session reset",
	}), nil
}

// SetShape changes the exercise shape.
func (s *AdminService) SetShape(
	ctx context.Context,
	req *connect.Request[pacerv1.SetShapeRequest],
) (*connect.Response[pacerv1.SetShapeResponse], error) {
	if err := s.session.SetShape(req.Msg.Shape); err != nil {
		return connect.NewResponse(&pacerv1.SetShapeResponse{
			Success: false,
			Message: err.Error(),
		}), nil
	}

	return connect.NewResponse(&pacerv1.SetShapeResponse{
		Success:     true,
		Message:     "Shape changed",
		SessionInfo: s.session.Status(),
	}), nil
}

// SetPlan replaces the interval plan.
func (s *AdminService) SetPlan(
	ctx context.Context,
	req *connect.Request[pacerv1.SetPlanRequest],
) (*connect.Response[pacerv1.SetPlanResponse], error) {
	intervals := make([]plan.Interval, 0, len(req.Msg.Intervals))
	for _, iv := range req.Msg.Intervals {
		if iv == nil {
			continue
		}
		intervals = append(intervals, plan.Interval{
			Rounds:          int(iv.Rounds),
			DurationSeconds: iv.DurationSeconds,
		})
	}

	if err := s.session.SetPlan(intervals); err != nil {
		return connect.NewResponse(&pacerv1.SetPlanResponse{
			Success: false,
			Message: err.Error(),
		}), nil
	}

	return connect.NewResponse(&pacerv1.SetPlanResponse{
		Success:     true,
		Message:     "Plan replaced",
		SessionInfo: s.session.Status(),
	}), nil
}

// ListHistory returns recently finished sessions.
func (s *AdminService) ListHistory(
	ctx context.Context,
	req *connect.Request[pacerv1.ListHistoryRequest],
) (*connect.Response[pacerv1.ListHistoryResponse], error) {
	entries, err := s.session.ListHistory(ctx, int(req.Msg.Limit))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &pacerv1.ListHistoryResponse{
		Entries: make([]*pacerv1.HistoryEntry, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, buildHistoryEntry(e))
	}
	return connect.NewResponse(resp), nil
}

func buildHistoryEntry(e history.Entry) *pacerv1.HistoryEntry {
	return &pacerv1.HistoryEntry{
		SessionId:       e.SessionID,
		Shape:           e.Shape,
		PlanSummary:     e.PlanSummary,
		Reason:          e.Reason,
		StartedAt:       e.StartedAt.UTC().Format(time.RFC3339),
		EndedAt:         e.EndedAt.UTC().Format(time.RFC3339),
		ElapsedSeconds:  e.Elapsed.Seconds(),
		RoundsCompleted: int32(e.RoundsCompleted),
		LegsCompleted:   int32(e.LegsCompleted),
		TotalLegs:       int32(e.TotalLegs),
	}
}
