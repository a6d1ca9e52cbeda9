package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// ColoredJSONFormatter prints one line per entry: time, level and message,
// then the fields as key=value with JSON encoded values. Job identifiers
// come first so interleaved sessions stay readable.
type ColoredJSONFormatter struct {
	TimestampFormat string
	// DisableColors is set for pipes and files
	DisableColors bool
}

func NewColoredJSONFormatter() *ColoredJSONFormatter {
	return &ColoredJSONFormatter{TimestampFormat: time.RFC3339}
}

var (
	timeColor      = color.New(color.FgYellow)
	keyColor       = color.New(color.FgCyan)
	importantColor = color.New(color.FgGreen)
	valueColor     = color.New(color.FgWhite)

	levelColors = map[logrus.Level]*color.Color{
		logrus.TraceLevel: color.New(color.FgBlue),
		logrus.DebugLevel: color.New(color.FgBlue),
		logrus.InfoLevel:  color.New(color.FgGreen),
		logrus.WarnLevel:  color.New(color.FgYellow),
		logrus.ErrorLevel: color.New(color.FgRed),
		logrus.FatalLevel: color.New(color.FgRed, color.Bold),
		logrus.PanicLevel: color.New(color.FgRed, color.Bold),
	}
)

// fieldRank orders the leading fields; unranked fields follow by name.
var fieldRank = map[string]int{
	"job_id":        1,
	"stage":         2,
	"status":        3,
	"keyword":       4,
	logrus.ErrorKey: 5,
}

func (f *ColoredJSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	level := levelColors[entry.Level]
	if level == nil {
		level = valueColor
	}

	b.WriteString(f.paint(timeColor, entry.Time.Format(f.TimestampFormat)))
	b.WriteByte(' ')
	b.WriteString(f.paint(level, fmt.Sprintf("%-7s", strings.ToUpper(entry.Level.String()))))
	b.WriteByte(' ')
	b.WriteString(f.paint(level, entry.Message))
	b.WriteByte(' ')

	for _, k := range sortedKeys(entry.Data) {
		kc := keyColor
		if k == "job_id" || k == "status" || k == logrus.ErrorKey {
			kc = importantColor
		}
		b.WriteString(f.paint(kc, k+"="))
		b.WriteString(f.paint(valueColor, encodeValue(entry.Data[k])))
		b.WriteByte(' ')
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *ColoredJSONFormatter) paint(c *color.Color, s string) string {
	if f.DisableColors {
		return s
	}
	return c.Sprint(s)
}

func sortedKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := fieldRank[keys[i]], fieldRank[keys[j]]
		switch {
		case ri != 0 && rj != 0:
			return ri < rj
		case ri != 0 || rj != 0:
			return ri != 0
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

// encodeValue quotes strings, errors and Stringers and JSON encodes the rest.
func encodeValue(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case error:
		return strconv.Quote(v.Error())
	case fmt.Stringer:
		return strconv.Quote(v.String())
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

// New returns a logger writing to out at level. Format is "json" for
// logrus JSON output, "text" for the colored line format without colors,
// anything else for the colored line format.
func New(out io.Writer, level logrus.Level, format string) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)

	switch format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	case "text":
		f := NewColoredJSONFormatter()
		f.DisableColors = true
		log.SetFormatter(f)
	default:
		log.SetFormatter(NewColoredJSONFormatter())
	}
	return log
}

// ParseLevel parses name, falling back to info for empty or unknown names.
// ok is false when the fallback was used for a non-empty name.
func ParseLevel(name string) (level logrus.Level, ok bool) {
	if name == "" {
		return logrus.InfoLevel, true
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel, false
	}
	return level, true
}
