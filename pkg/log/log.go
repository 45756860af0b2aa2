package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance. Every write passes through
	// the masker installed by Init.
	Logger zerolog.Logger

	masker = newSecretMasker()
)

// Level represents a log level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. The configured output is wrapped
// in the secret masker so every subsequent write is scrubbed.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	masked := &maskingWriter{next: output, masker: masker}

	if cfg.JSONOutput {
		Logger = zerolog.New(masked).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        masked,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger tagging its lines with a
// component field (e.g. "orchestrator", "layer-manager").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithJobName creates a child logger tagging its lines with the owning
// job's name.
func WithJobName(jobName string) zerolog.Logger {
	return Logger.With().Str("job", jobName).Logger()
}

// Info/Debug/Warn/Error are convenience wrappers over the global logger.
func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

// secretMaskPlaceholder replaces every occurrence of a registered
// secret in emitted log lines.
const secretMaskPlaceholder = "**secret**"

// secretMasker is the process-wide concurrent set of registered
// secrets (spec.md §4.7, §9 — "singleton-style ambient state").
type secretMasker struct {
	mu      sync.RWMutex
	secrets map[string]struct{}
}

func newSecretMasker() *secretMasker {
	return &secretMasker{secrets: make(map[string]struct{})}
}

// Register adds a secret to the masking set. Must be called before any
// log line carrying the secret is emitted.
func Register(secret string) {
	if secret == "" {
		return
	}
	masker.mu.Lock()
	defer masker.mu.Unlock()
	masker.secrets[secret] = struct{}{}
}

// ClearSecrets empties the masking set, called on shutdown.
func ClearSecrets() {
	masker.mu.Lock()
	defer masker.mu.Unlock()
	masker.secrets = make(map[string]struct{})
}

// mask replaces every registered secret occurring in s with the
// placeholder. Readers may lag one registration (spec.md §5) — this is
// a plain RWMutex snapshot, not a lock held across the whole pipeline.
func (m *secretMasker) mask(s string) string {
	m.mu.RLock()
	secrets := make([]string, 0, len(m.secrets))
	for secret := range m.secrets {
		secrets = append(secrets, secret)
	}
	m.mu.RUnlock()

	for _, secret := range secrets {
		if secret != "" && strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, secretMaskPlaceholder)
		}
	}
	return s
}

// maskingWriter decorates an io.Writer, scrubbing registered secrets
// out of every write before it reaches the underlying sink.
type maskingWriter struct {
	next   io.Writer
	masker *secretMasker
}

func (w *maskingWriter) Write(p []byte) (int, error) {
	masked := w.masker.mask(string(p))
	if _, err := w.next.Write([]byte(masked)); err != nil {
		return 0, err
	}
	// Report the original length so zerolog/io callers see a
	// consistent byte count regardless of mask-induced size changes.
	return len(p), nil
}
