// Package pacerv1 defines the messages of the pacer.v1 RPC services.
package pacerv1

// NotificationType identifies the kind of a watch notification.
type NotificationType string

const (
	NotificationTypeInitialState NotificationType = "INITIAL_STATE"
	NotificationTypeChangeState  NotificationType = "CHANGE_STATE"
	NotificationTypeChangePhase  NotificationType = "CHANGE_PHASE"
	NotificationTypeCue          NotificationType = "CUE"
	NotificationTypeStats        NotificationType = "STATS"
)

// SessionState mirrors the session status on the wire.
type SessionState string

const (
	SessionStateUnspecified SessionState = "SESSION_STATE_UNSPECIFIED"
	SessionStateIdle        SessionState = "SESSION_STATE_IDLE"
	SessionStateRunning     SessionState = "SESSION_STATE_RUNNING"
	SessionStatePaused      SessionState = "SESSION_STATE_PAUSED"
	SessionStateStopped     SessionState = "SESSION_STATE_STOPPED"
)

// Interval is one block of rounds sharing a leg duration.
type Interval struct {
	Rounds          int32   `json:"rounds"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// SessionInfo describes the current session.
type SessionInfo struct {
	SessionId          string       `json:"sessionId,omitempty"`
	State              SessionState `json:"state"`
	Shape              string       `json:"shape"`
	PhaseName          string       `json:"phaseName"`
	PhaseIndex         int32        `json:"phaseIndex"`
	Round              int32        `json:"round"`
	RoundsCompleted    int32        `json:"roundsCompleted"`
	TotalRounds        int32        `json:"totalRounds"`
	LegsCompleted      int32        `json:"legsCompleted"`
	TotalLegs          int32        `json:"totalLegs"`
	IntervalIndex      int32        `json:"intervalIndex"`
	LegDurationSeconds float64      `json:"legDurationSeconds"`
	ElapsedSeconds     float64      `json:"elapsedSeconds"`
	ElapsedText        string       `json:"elapsedText"`
	Progress           float64      `json:"progress"`
	StartedAt          string       `json:"startedAt,omitempty"`
	Intervals          []*Interval  `json:"intervals,omitempty"`
	PlanSummary        string       `json:"planSummary,omitempty"`
}

// PhaseInfo describes a phase change.
type PhaseInfo struct {
	Name          string `json:"name"`
	Round         int32  `json:"round"`
	IntervalIndex int32  `json:"intervalIndex"`
}

// CueInfo describes a cue burst.
type CueInfo struct {
	Count int32 `json:"count"`
}

// Notification is a message on the watch stream.
type Notification struct {
	Type        NotificationType `json:"type"`
	SequenceNo  uint64           `json:"sequenceNo"`
	Transition  string           `json:"transition,omitempty"`
	SessionInfo *SessionInfo     `json:"sessionInfo,omitempty"`
	Phase       *PhaseInfo       `json:"phase,omitempty"`
	Cue         *CueInfo         `json:"cue,omitempty"`
}

// HistoryEntry is one finished session.
type HistoryEntry struct {
	SessionId       string  `json:"sessionId"`
	Shape           string  `json:"shape"`
	PlanSummary     string  `json:"planSummary"`
	Reason          string  `json:"reason"`
	StartedAt       string  `json:"startedAt"`
	EndedAt         string  `json:"endedAt"`
	ElapsedSeconds  float64 `json:"elapsedSeconds"`
	RoundsCompleted int32   `json:"roundsCompleted"`
	LegsCompleted   int32   `json:"legsCompleted"`
	TotalLegs       int32   `json:"totalLegs"`
}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	SessionInfo *SessionInfo `json:"sessionInfo"`
}

type StartRequest struct{}

type StartResponse struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	SessionInfo *SessionInfo `json:"sessionInfo,omitempty"`
}

type PauseRequest struct{}

type PauseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ResumeRequest struct{}

type ResumeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type StopRequest struct{}

type StopResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ResetRequest struct{}

type ResetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SetShapeRequest struct {
	Shape string `json:"shape"`
}

type SetShapeResponse struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	SessionInfo *SessionInfo `json:"sessionInfo,omitempty"`
}

type SetPlanRequest struct {
	Intervals []*Interval `json:"intervals"`
}

type SetPlanResponse struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	SessionInfo *SessionInfo `json:"sessionInfo,omitempty"`
}

type ListHistoryRequest struct {
	Limit int32 `json:"limit"`
}

type ListHistoryResponse struct {
	Entries []*HistoryEntry `json:"entries"`
}

// WatchRequest opens a watch stream. An empty Types list subscribes to
// every notification type; INITIAL_STATE is always sent.
type WatchRequest struct {
	Types []NotificationType `json:"types,omitempty"`
}
