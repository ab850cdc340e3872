package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/hair-advisor/internal/capture"
	"github.com/kozaktomas/hair-advisor/internal/constants"
	"github.com/kozaktomas/hair-advisor/internal/flow"
	"github.com/kozaktomas/hair-advisor/internal/web/middleware"
)

const (
	cameraWriteWait  = 10 * time.Second
	cameraPongWait   = 60 * time.Second
	cameraPingPeriod = cameraPongWait * 9 / 10
)

// Camera control messages sent by the browser as text frames.
const (
	cameraPermissionDenied = "permission_denied"
	cameraUnavailable      = "unavailable"
)

type cameraControl struct {
	Type string `json:"type"`
}

// CameraHandler relays the browser camera into a session over a websocket. Binary
// messages are encoded frames (JPEG, PNG or WebP); text messages are control messages.
// Capture state changes are written back as JSON events.
type CameraHandler struct {
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewCameraHandler(allowedOrigins []string, log logrus.FieldLogger) *CameraHandler {
	return &CameraHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 4 << 10,
			CheckOrigin:     middleware.OriginChecker(allowedOrigins),
		},
		log: log,
	}
}

// Stream handles the websocket connection.
func (h *CameraHandler) Stream(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.log.WithError(err).Debug("camera websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.WithField("session", s.ID)
	log.Debug("camera connected")

	events := s.Flow.AddListener()
	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, s.Flow, events, done)
	}()

	h.readLoop(conn, s, log)

	close(done)
	s.Flow.RemoveListener(events)
	<-writerDone

	if s.Camera.Active() {
		s.Camera.Fail(capture.ErrDeviceUnavailable)
	}
	log.Debug("camera disconnected")
}

func (h *CameraHandler) readLoop(conn *websocket.Conn, s *middleware.Session, log logrus.FieldLogger) {
	conn.SetReadLimit(constants.MaxCameraFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(cameraPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cameraPongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("camera connection closed unexpectedly")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(cameraPongWait))

		switch mt {
		case websocket.BinaryMessage:
			img, _, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				log.WithError(err).Debug("dropping undecodable camera frame")
				continue
			}
			s.Camera.Push(img)
		case websocket.TextMessage:
			var ctl cameraControl
			if err := json.Unmarshal(data, &ctl); err != nil {
				log.WithError(err).Debug("ignoring malformed camera control message")
				continue
			}
			switch ctl.Type {
			case cameraPermissionDenied:
				s.Camera.Fail(capture.ErrPermissionDenied)
			case cameraUnavailable:
				s.Camera.Fail(capture.ErrDeviceUnavailable)
			default:
				log.WithField("type", sanitizeForLog(ctl.Type)).Debug("unknown camera control message")
			}
		}
	}
}

func (h *CameraHandler) writeLoop(conn *websocket.Conn, f *flow.Flow, events <-chan flow.Event, done <-chan struct{}) {
	ticker := time.NewTicker(cameraPingPeriod)
	defer ticker.Stop()

	if err := writeCameraEvent(conn, flow.Event{Type: flow.EventCapture, Data: f.View().Camera}); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(cameraWriteWait))
				return
			}
			if event.Type != flow.EventCapture {
				continue
			}
			if err := writeCameraEvent(conn, event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cameraWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeCameraEvent(conn *websocket.Conn, event flow.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(cameraWriteWait))
	return conn.WriteJSON(event)
}
