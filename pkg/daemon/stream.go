package daemon

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/psmon/pkg/panel"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The socket is local; access is controlled by its file mode.
	CheckOrigin: func(*http.Request) bool { return true },
}

// getEvents streams hub events as server-sent events.
func getEvents(c *gin.Context) {
	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	logrus.Debug("sse client connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			logrus.Debug("sse client disconnected")
			return false
		}
	})
}

// wsMessage is the websocket frame in both directions. Clients send
// {"type":"confirm"} or {"type":"reset"}.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// getWebsocket streams hub events to a websocket client and accepts
// confirm and reset commands from it.
func getWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	var writeMu sync.Mutex
	send := func(m wsMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(m)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := conn.ReadJSON(&m); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logrus.WithError(err).Debug("websocket read ended")
				}
				return
			}

			switch strings.ToLower(m.Type) {
			case "confirm":
				handleInput(panel.Confirm)
			case "reset":
				handleInput(panel.Reset)
			default:
				_ = send(wsMessage{Type: "error", Data: "unknown command " + m.Type})
				continue
			}
			_ = send(wsMessage{Type: "status", Data: getCalibrationStatus()})
		}
	}()

	if err := send(wsMessage{Type: "status", Data: getCalibrationStatus()}); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := send(wsMessage{Type: ev.Name, Data: ev.Data}); err != nil {
				logrus.WithError(err).Debug("websocket write failed")
				return
			}
		case <-done:
			return
		}
	}
}
