// Package log provides the namespaced debug logger that the session engine
// and the WebSocket transport each construct once at init time (engineLog,
// wsLog). It exists because both want the
// same thing: silence by default, and a single DEBUG=xchg:* environment
// variable that turns on exactly the namespaces a caller is chasing a bug
// in, without recompiling or threading a verbose flag through every call.
package log

import (
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/gookit/color"
)

// Global knobs shared by every *Log instance, mirroring the single
// process-wide DEBUG env var a Node-style debug() logger reads.
var (
	DEBUG  bool      = false
	Output io.Writer = os.Stderr
	Prefix string    = ""
	Flags  int       = 0
)

// Log is one namespaced logger. Construct with NewLog(namespace); the
// namespace becomes both the line prefix and the pattern DEBUG is matched
// against.
type Log struct {
	*log.Logger

	prefix    atomic.Pointer[string]
	namespace *regexp.Regexp // non-nil once DEBUG is set in the environment
}

// NewLog constructs a logger under namespace (e.g. "xchg:engine"). If the
// DEBUG environment variable is set, it is compiled once here into a glob
// pattern ("xchg:*" -> "^xchg:.*$") used to gate Debug output per-instance.
func NewLog(namespace string) *Log {
	l := &Log{Logger: log.New(Output, Prefix, Flags)}
	if namespace != "" {
		l.SetPrefix(namespace)
	}
	if pattern := os.Getenv("DEBUG"); pattern != "" {
		glob := strings.ReplaceAll(regexp.QuoteMeta(strings.TrimSpace(pattern)), `\*`, `.*`)
		l.namespace = regexp.MustCompile("^" + glob + "$")
	}
	return l
}

func (l *Log) matchesDebugEnv() bool {
	return l.namespace != nil && l.namespace.MatchString(l.Prefix())
}

// Debugf writes a colorized debug line, gated on both the global DEBUG
// flag and this logger's namespace matching the DEBUG environment
// pattern. Silent otherwise: this is the path the session engine, the
// reconnect loop, and the WebSocket transport use for one-line "what just
// happened" traces that must cost nothing when not watched.
func (l *Log) Debugf(format string, args ...any) {
	if DEBUG && l.matchesDebugEnv() {
		l.Logger.Println(color.Debug.Sprintf(format, args...))
	}
}

// Debug is an alias of Debugf; it takes the same format string and args.
func (l *Log) Debug(format string, args ...any) {
	l.Debugf(format, args...)
}

// Prefix returns the logger's current namespace prefix.
func (l *Log) Prefix() string {
	if p := l.prefix.Load(); p != nil {
		return *p
	}
	return ""
}

// SetPrefix changes the namespace prefix, both for display and for
// future Debug namespace matching.
func (l *Log) SetPrefix(prefix string) {
	l.prefix.Store(&prefix)
	l.Logger.SetPrefix(prefix + " ")
}
