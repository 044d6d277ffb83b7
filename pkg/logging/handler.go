package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
)

// Handler writes leveled, timestamped log lines. Fields are sorted by name
// so lines stay diffable.
type Handler struct {
	mu     sync.Mutex
	Writer io.WriteCloser
}

var levelToStrings = [...]string{
	log.DebugLevel: "DEBUG",
	log.InfoLevel:  "INFO",
	log.WarnLevel:  "WARN",
	log.ErrorLevel: "ERROR",
	log.FatalLevel: "FATAL",
}

type field struct {
	Name  string
	Value interface{}
}

type byName []field

func (a byName) Len() int           { return len(a) }
func (a byName) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byName) Less(i, j int) bool { return a[i].Name < a[j].Name }

func NewHandler(w io.WriteCloser) *Handler {
	return &Handler{Writer: w}
}

func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Writer == nil {
		return
	}

	if h.Writer == os.Stdout || h.Writer == os.Stderr {
		return
	}

	_ = h.Writer.Close()
}

func (h *Handler) HandleLog(e *log.Entry) error {
	level := levelToStrings[e.Level]

	var fields []field
	for k, v := range e.Fields {
		fields = append(fields, field{k, v})
	}
	sort.Sort(byName(fields))

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %-5s %s", time.Now().Format(time.RFC3339), level, e.Message)
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Name, f.Value)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.Writer.Write(b.Bytes())

	return err
}
