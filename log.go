package av

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrLoggerInstalled is returned when InstallLogger is called twice.
var ErrLoggerInstalled = errors.New("av: logger already installed")

var (
	installOnce sync.Once
	processLog  atomic.Pointer[slog.Logger]
)

// InstallLogger sets the process logger used by components constructed
// without WithLogger. It may be called once, before components are built.
func InstallLogger(l *slog.Logger) error {
	if l == nil {
		return Errorf("nil logger: %w", ErrInvalidArgument)
	}
	installed := false
	installOnce.Do(func() {
		processLog.Store(l)
		installed = true
	})
	if !installed {
		return ErrLoggerInstalled
	}
	return nil
}

// Logger returns the process logger, or slog.Default when none is installed.
func Logger() *slog.Logger {
	if l := processLog.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// Option configures a component at construction.
type Option func(*settings)

type settings struct {
	logger  *slog.Logger
	metrics *Metrics
}

// WithLogger overrides the logger of a component.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics attaches prometheus metrics to a component.
func WithMetrics(m *Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

func newSettings(component string, opts []Option) settings {
	var s settings
	for _, o := range opts {
		if o != nil {
			o(&s)
		}
	}
	if s.logger == nil {
		s.logger = Logger()
	}
	s.logger = s.logger.With("component", component)
	return s
}
