package broadcast

import (
	"bufio"
	"bytes"
	"net/http"
)

// SSEListener writes frames as text/event-stream to an HTTP response.
type SSEListener struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSEListener sends the stream headers and returns a listener writing to w.
func NewSSEListener(w http.ResponseWriter) *SSEListener {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	l := &SSEListener{w: w, rc: http.NewResponseController(w)}
	_ = l.rc.Flush()
	return l
}

func (l *SSEListener) Send(f Frame) error {
	if _, err := l.w.Write(encodeSSE(f)); err != nil {
		return err
	}
	return l.rc.Flush()
}

func encodeSSE(f Frame) []byte {
	if f.KeepAlive {
		return []byte(": keep-alive\n\n")
	}

	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(f.Event)
	buf.WriteByte('\n')

	// JSON output has no raw newlines, but a multi-line payload still needs
	// one data field per line.
	sc := bufio.NewScanner(bytes.NewReader(f.Data))
	wrote := false
	for sc.Scan() {
		buf.WriteString("data: ")
		buf.Write(sc.Bytes())
		buf.WriteByte('\n')
		wrote = true
	}
	if !wrote {
		buf.WriteString("data: \n")
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}
