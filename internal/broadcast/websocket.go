package broadcast

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

type wsMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSListener writes frames to a WebSocket as {"event","payload"} JSON text
// messages. Keep-alives are sent as ping control frames.
type WSListener struct {
	conn *websocket.Conn
}

func NewWSListener(conn *websocket.Conn) *WSListener {
	return &WSListener{conn: conn}
}

func (l *WSListener) Send(f Frame) error {
	deadline := time.Now().Add(wsWriteWait)
	if f.KeepAlive {
		return l.conn.WriteControl(websocket.PingMessage, nil, deadline)
	}
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return l.conn.WriteJSON(wsMessage{Event: f.Event, Payload: f.Data})
}
