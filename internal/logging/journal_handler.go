package logging

import (
	"context"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// journalIdentifier tags every journal entry, see journalctl -t.
const journalIdentifier = "procstream"

// journalSend delivers one entry. Tests replace it.
var journalSend = journal.Send

// JournalHandler is a slog.Handler that writes structured entries to the
// systemd journal. Attributes become journal fields, so a job can be
// followed with journalctl JOB_ID=... or REQUEST_ID=....
type JournalHandler struct {
	level  slog.Leveler
	fields map[string]string
	prefix string
}

// NewJournalHandler creates a journal handler. A *slog.LevelVar keeps the
// handler in step with runtime level changes.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{
		level:  level,
		fields: map[string]string{"SYSLOG_IDENTIFIER": journalIdentifier},
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle sends the record to the journal.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := maps.Clone(h.fields)
	r.Attrs(func(attr slog.Attr) bool {
		addJournalField(fields, h.prefix, attr)
		return true
	})
	return journalSend(r.Message, mapLevelToPriority(r.Level), fields)
}

// WithAttrs returns a handler that adds attrs to every entry. Attributes are
// rendered under the groups open at this point.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := maps.Clone(h.fields)
	for _, attr := range attrs {
		addJournalField(fields, h.prefix, attr)
	}
	return &JournalHandler{level: h.level, fields: fields, prefix: h.prefix}
}

// WithGroup returns a handler that prefixes later field names with name.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{level: h.level, fields: h.fields, prefix: h.prefix + journalKey(name) + "_"}
}

// mapLevelToPriority maps slog levels to journal priorities.
func mapLevelToPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// addJournalField renders attr into fields under prefix. Groups flatten into
// underscore-joined names.
func addJournalField(fields map[string]string, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			prefix += journalKey(attr.Key) + "_"
		}
		for _, a := range attr.Value.Group() {
			addJournalField(fields, prefix, a)
		}
		return
	}

	key := prefix + journalKey(attr.Key)
	switch attr.Value.Kind() {
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(attr.Value.Float64(), 'f', -1, 64)
	case slog.KindTime:
		fields[key] = attr.Value.Time().Format(time.RFC3339Nano)
	default:
		fields[key] = attr.Value.String()
	}
}

// journalKey turns an attribute key into a valid journal field name:
// upper case letters, digits and underscores, not starting with an
// underscore or a digit.
func journalKey(key string) string {
	key = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
	key = strings.TrimLeft(key, "_")
	if key == "" || (key[0] >= '0' && key[0] <= '9') {
		key = "F" + key
	}
	return key
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
