// Package tui is the terminal pacer: a Bubble Tea program whose frame
// tick drives a session controller.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/boxbreath/internal/app/clock"
	"github.com/osa030/boxbreath/internal/app/cuesink"
	"github.com/osa030/boxbreath/internal/app/session"
	"github.com/osa030/boxbreath/internal/app/session/state"
	"github.com/osa030/boxbreath/internal/domain/plan"
	"github.com/osa030/boxbreath/internal/domain/shape"
	"github.com/osa030/boxbreath/internal/infra/settings"
)

// DefaultFrameInterval is the animation frame period.
const DefaultFrameInterval = 50 * time.Millisecond

// SettingsStore persists the exercise choice.
type SettingsStore interface {
	Save(s settings.Settings) error
}

// Options configures the pacer model.
type Options struct {
	Shape         shape.Shape
	Intervals     []plan.Interval
	Cues          cuesink.Sink
	WakeLock      session.WakeLock
	Settings      SettingsStore
	Now           clock.NowFunc
	FrameInterval time.Duration
}

// Messages
type frameMsg time.Time

type cueErrMsg struct {
	err error
}

// frameSink receives the controller's outputs. The controller calls it
// from inside Update, so plain fields are enough.
type frameSink struct {
	phase    string
	round    int
	interval int
	progress float64
	elapsed  int
	rounds   int
	notice   string
	cues     []int
}

func (s *frameSink) OnPhaseChanged(name string, round, interval int) {
	s.phase = name
	s.round = round
	s.interval = interval
}

func (s *frameSink) OnProgress(fraction float64) {
	s.progress = fraction
}

func (s *frameSink) OnStatsChanged(elapsedSeconds, rounds int) {
	s.elapsed = elapsedSeconds
	s.rounds = rounds
}

func (s *frameSink) PlayCue(count int) {
	s.cues = append(s.cues, count)
}

func (s *frameSink) OnTransition(t session.Transition) {
	switch t.Kind {
	case session.TransitionPaused:
		s.notice = "Paused"
	case session.TransitionCompleted:
		s.notice = "Session complete"
		s.phase = ""
	case session.TransitionStopped:
		s.notice = "Stopped · press r to reset"
	case session.TransitionReset:
		s.notice = ""
		s.phase = ""
		s.round = 0
		s.interval = 0
	default:
		s.notice = ""
	}
}

// Model is the pacer screen.
type Model struct {
	ctrl     *session.Controller
	sink     *frameSink
	cues     cuesink.Sink
	settings SettingsStore
	frame    time.Duration

	keys  KeyMap
	help  help.Model
	bar   progress.Model
	input textinput.Model

	editing bool
	err     string
	width   int
}

// NewModel creates the pacer model in the idle status.
func NewModel(opts Options) Model {
	sink := &frameSink{}

	frame := opts.FrameInterval
	if frame <= 0 {
		frame = DefaultFrameInterval
	}

	input := textinput.New()
	input.Prompt = "plan ❯ "
	input.Placeholder = "5x4,2x6"
	input.CharLimit = 120

	return Model{
		ctrl: session.NewController(session.Config{
			Shape:     opts.Shape,
			Intervals: opts.Intervals,
			Now:       opts.Now,
			Audio:     sink,
			Renderer:  sink,
			WakeLock:  opts.WakeLock,
			Observer:  sink,
		}),
		sink:     sink,
		cues:     opts.Cues,
		settings: opts.Settings,
		frame:    frame,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		input:    input,
	}
}

// Init starts the frame loop.
func (m Model) Init() tea.Cmd {
	return m.frameCmd()
}

func (m Model) frameCmd() tea.Cmd {
	return tea.Tick(m.frame, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(10, min(msg.Width-12, 60))
		m.help.Width = msg.Width

	case frameMsg:
		m.ctrl.Tick()
		cmds = append(cmds, m.frameCmd())

	case cueErrMsg:
		zlog.Warn().Err(msg.err).Msg("cue playback failed")

	case tea.KeyMsg:
		if m.editing {
			var cmd tea.Cmd
			m, cmd = m.updateEditing(msg)
			cmds = append(cmds, cmd)
			break
		}
		if key.Matches(msg, m.keys.Quit) {
			if m.ctrl.Status().Active() {
				m.setErr(m.ctrl.Stop())
			}
			m.ctrl.Close()
			return m, tea.Quit
		}
		m = m.handleKey(msg)
	}

	cmds = append(cmds, m.drainCues()...)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) Model {
	m.err = ""

	switch {
	case key.Matches(msg, m.keys.Toggle):
		switch m.ctrl.Status() {
		case state.StatusRunning:
			m.setErr(m.ctrl.Pause())
		case state.StatusStopped:
			m.err = "session ended · press r to reset"
		default:
			m.setErr(m.ctrl.Start(context.Background()))
		}
	case key.Matches(msg, m.keys.Stop):
		m.setErr(m.ctrl.Stop())
	case key.Matches(msg, m.keys.Reset):
		m.ctrl.Reset()
	case key.Matches(msg, m.keys.Shape):
		next := shape.Square
		if m.ctrl.Snapshot().Shape == shape.Square {
			next = shape.Triangle
		}
		if err := m.ctrl.SetExerciseShape(next); err != nil {
			m.setErr(err)
			break
		}
		m.saveSettings()
	case key.Matches(msg, m.keys.Plan):
		if m.ctrl.Status().Active() {
			m.err = "stop the session to edit the plan"
			break
		}
		m.editing = true
		m.input.SetValue(plan.FormatIntervals(m.ctrl.Snapshot().Intervals))
		m.input.CursorEnd()
		m.input.Focus()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m
}

func (m Model) updateEditing(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.editing = false
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		intervals, err := plan.Parse(m.input.Value())
		if err == nil {
			err = m.ctrl.SetIntervalPlan(intervals)
		}
		if err != nil {
			m.setErr(err)
			return m, nil
		}
		m.err = ""
		m.editing = false
		m.input.Blur()
		m.saveSettings()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setErr(err error) {
	if err != nil {
		m.err = err.Error()
	}
}

func (m Model) saveSettings() {
	if m.settings == nil {
		return
	}
	snap := m.ctrl.Snapshot()
	if err := m.settings.Save(settings.Settings{Shape: snap.Shape, Intervals: snap.Intervals}); err != nil {
		zlog.Warn().Err(err).Msg("failed to save settings")
	}
}

// drainCues turns fired cues into commands so bursts play off the UI
// goroutine.
func (m Model) drainCues() []tea.Cmd {
	if len(m.sink.cues) == 0 {
		return nil
	}
	counts := m.sink.cues
	m.sink.cues = nil
	if m.cues == nil {
		return nil
	}

	cmds := make([]tea.Cmd, 0, len(counts))
	for _, count := range counts {
		cmds = append(cmds, func() tea.Msg {
			if err := m.cues.Play(context.Background(), count); err != nil {
				return cueErrMsg{err: err}
			}
			return nil
		})
	}
	return cmds
}

// View renders the pacer.
func (m Model) View() string {
	snap := m.ctrl.Snapshot()

	var b strings.Builder
	b.WriteString(HeaderStyle.Render("boxbreath · " + snap.Shape.DisplayName()))
	b.WriteString("\n\n")

	phase := m.sink.phase
	switch {
	case snap.Status == state.StatusIdle:
		phase = "Ready"
	case phase == "":
		phase = "Done"
	}
	b.WriteString(PhaseStyle.Foreground(phaseColor(phase)).Render(strings.ToUpper(phase)))
	b.WriteString("\n")

	round := snap.Round
	if round == 0 {
		round = 1
	}
	intervals := len(snap.Intervals)
	b.WriteString(fmt.Sprintf("%s %s   %s %s\n\n",
		LabelStyle.Render("Round"), ValueStyle.Render(fmt.Sprintf("%d / %d", round, snap.TotalRounds)),
		LabelStyle.Render("Interval"), ValueStyle.Render(fmt.Sprintf("%d / %d", snap.IntervalIndex+1, intervals)),
	))

	b.WriteString(m.bar.ViewAs(m.sink.progress))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		LabelStyle.Render("Elapsed"), ValueStyle.Render(session.FormatElapsed(time.Duration(m.sink.elapsed)*time.Second)),
		LabelStyle.Render("Rounds"), ValueStyle.Render(fmt.Sprintf("%d", m.sink.rounds)),
	))
	summary := settings.Settings{Shape: snap.Shape, Intervals: snap.Intervals}.Summary()
	b.WriteString(LabelStyle.Render(summary))
	b.WriteString("\n")

	if m.sink.notice != "" {
		b.WriteString("\n" + StatusStyle.Render(m.sink.notice) + "\n")
	}
	if m.err != "" {
		b.WriteString("\n" + ErrorStyle.Render(m.err) + "\n")
	}
	if m.editing {
		b.WriteString("\n" + m.input.View() + "\n")
	}

	panel := PanelStyle.Render(b.String())
	return lipgloss.JoinVertical(lipgloss.Left, panel, m.help.View(m.keys))
}
