// Package logging wires the decoder's diagnostic output to a structured,
// leveled logger instead of the teacher's ANSI text_color_set categories.
// Each category the teacher distinguished by colour (DW_COLOR_INFO,
// DW_COLOR_ERROR, DW_COLOR_REC, DW_COLOR_DECODED, DW_COLOR_DEBUG) becomes
// a field value on a shared charmbracelet/log.Logger, carried as an
// explicit handle rather than a package-level singleton.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// Category mirrors the teacher's dw_color_e enum, renamed to what each
// category actually means for a recognizer instead of a terminal colour.
type Category string

const (
	Info      Category = "info"
	Error     Category = "error"
	Recognize Category = "recognized" // a word exit / hypothesis emitted
	Decoded   Category = "decoded"    // a frame successfully scored
	Debug     Category = "debug"
)

// Logger wraps a charmbracelet/log.Logger and binds it to a single
// decoder instance, per §5's "no process-wide singletons" requirement.
type Logger struct {
	base *log.Logger
	uttf *strftime.Strftime
}

// New builds a Logger writing to w at the given level. Passing a nil w
// defaults to os.Stderr.
func New(w io.Writer, level log.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	base := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
	})
	// Matches the original's "%Y%m%d_%H%M%S"-style utterance-id stamps.
	uttf, err := strftime.New("%Y%m%d_%H%M%S")
	if err != nil {
		// The layout above is a fixed literal; this cannot fail in
		// practice, but treat it the teacher's way (fall back rather
		// than panic on a formatting helper).
		uttf = nil
	}
	return &Logger{base: base, uttf: uttf}
}

// Nop returns a Logger that discards everything, for tests and for
// decoders that didn't configure a sink.
func Nop() *Logger {
	return New(io.Discard, log.FatalLevel+1)
}

// With returns a derived Logger tagging every subsequent line with the
// given category, mirroring text_color_set(category) in the teacher but
// as structured key/value state instead of a global.
func (l *Logger) With(cat Category) *Logger {
	return &Logger{base: l.base.With("category", string(cat)), uttf: l.uttf}
}

// WithFields attaches frame/utterance/channel context, replacing the
// teacher's implicit "whatever's in scope" approach to diagnostic text.
func (l *Logger) WithFields(kv ...any) *Logger {
	return &Logger{base: l.base.With(kv...), uttf: l.uttf}
}

func (l *Logger) Infof(format string, args ...any)  { l.base.Infof(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.base.Errorf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.base.Warnf(format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.base.Debugf(format, args...) }

// UtteranceID formats a time as the decoder's default utterance
// identifier (used when the host doesn't supply one to StartUtt).
func (l *Logger) UtteranceID(t time.Time) string {
	if l.uttf == nil {
		return "utt"
	}
	return l.uttf.FormatString(t)
}
