// Package wakelock keeps the machine awake while a session runs.
package wakelock

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/godbus/dbus/v5"
	zlog "github.com/rs/zerolog/log"
)

const (
	logindDest   = "org.freedesktop.login1"
	logindPath   = dbus.ObjectPath("/org/freedesktop/login1")
	logindMethod = "org.freedesktop.login1.Manager.Inhibit"

	// InhibitWhat lists the logind operations blocked while held.
	InhibitWhat = "idle:sleep"
)

// ErrUnavailable is returned when no inhibitor can be taken.
var ErrUnavailable = errors.New("wake lock unavailable")

// Provider hands out wake-lock handles. Closing a handle releases it.
type Provider interface {
	Acquire(ctx context.Context) (io.Closer, error)
}

// New returns a logind provider when enabled, otherwise a no-op one.
func New(enabled bool, who, why, mode string) Provider {
	if !enabled {
		return Noop{}
	}
	return NewLogind(who, why, mode)
}

// Logind takes systemd-logind inhibitor locks over the system bus.
type Logind struct {
	who  string
	why  string
	mode string

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewLogind creates a provider. mode is "block" or "delay".
func NewLogind(who, why, mode string) *Logind {
	return &Logind{who: who, why: why, mode: mode}
}

// Acquire takes an inhibitor lock. Closing the returned handle
// releases it.
func (l *Logind) Acquire(ctx context.Context) (io.Closer, error) {
	conn, err := l.connection()
	if err != nil {
		return nil, err
	}

	var fd dbus.UnixFD
	call := conn.Object(logindDest, logindPath).CallWithContext(ctx, logindMethod, 0, InhibitWhat, l.who, l.why, l.mode)
	if err := call.Store(&fd); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "logind inhibit"), ErrUnavailable)
	}

	zlog.Debug().Str("what", InhibitWhat).Str("mode", l.mode).Msg("wake lock acquired")
	return &inhibitor{file: os.NewFile(uintptr(fd), "logind-inhibit")}, nil
}

// Close drops the bus connection.
func (l *Logind) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}

func (l *Logind) connection() (*dbus.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil && l.conn.Connected() {
		return l.conn, nil
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "connect system bus"), ErrUnavailable)
	}
	l.conn = conn
	return conn, nil
}

type inhibitor struct {
	once sync.Once
	file *os.File
	err  error
}

func (h *inhibitor) Close() error {
	h.once.Do(func() {
		h.err = h.file.Close()
		zlog.Debug().Msg("wake lock released")
	})
	return h.err
}

// Noop is used when wake locks are disabled.
type Noop struct{}

// Acquire returns a handle whose Close does nothing.
func (Noop) Acquire(context.Context) (io.Closer, error) {
	return io.NopCloser(nil), nil
}
