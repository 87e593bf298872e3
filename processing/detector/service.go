package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bakerycam/internal/models"
)

const remoteTimeout = 5 * time.Second

// RemoteDetector sends frames as JPEG to a websocket detection server and
// reads back a JSON array of models.DetectionResult per frame.
// The connection is dialed lazily and re-dialed after any failure.
type RemoteDetector struct {
	serverURL string
	dialer    *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	logger *zap.SugaredLogger
}

func NewRemoteDetector(host string, logger *zap.SugaredLogger) *RemoteDetector {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}

	return &RemoteDetector{
		serverURL: u.String(),
		dialer:    websocket.DefaultDialer,
		logger:    logger,
	}
}

func (d *RemoteDetector) connect(ctx context.Context) error {
	if d.conn != nil {
		return nil
	}

	d.logger.Infow("connecting to detector server", "url", d.serverURL)
	conn, _, err := d.dialer.DialContext(ctx, d.serverURL, nil)
	if err != nil {
		return errors.Wrap(err, "connection failed")
	}

	d.logger.Info("connected to detection server")
	d.conn = conn
	return nil
}

func (d *RemoteDetector) drop(err error) {
	d.logger.Warnw("connection lost", "error", err)
	d.conn.Close()
	d.conn = nil
}

func (d *RemoteDetector) Detect(ctx context.Context, frame image.Image, threshold float32) ([]models.Detection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, nil); err != nil {
		return nil, errors.Wrapf(ErrModelShape, "JPEG encode: %v", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.connect(ctx); err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(remoteTimeout)
	}

	if err := d.conn.SetWriteDeadline(deadline); err != nil {
		d.drop(err)
		return nil, err
	}
	if err := d.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		d.drop(err)
		return nil, errors.Wrap(err, "send frame")
	}

	if err := d.conn.SetReadDeadline(deadline); err != nil {
		d.drop(err)
		return nil, err
	}
	_, message, err := d.conn.ReadMessage()
	if err != nil {
		d.drop(err)
		return nil, errors.Wrap(err, "read detections")
	}

	var results []models.DetectionResult
	if err := json.Unmarshal(message, &results); err != nil {
		return nil, errors.Wrap(err, "JSON decode")
	}

	b := frame.Bounds()
	detections := make([]models.Detection, 0, len(results))
	for _, r := range results {
		det, ok := r.ToDetection(b.Dx(), b.Dy())
		if !ok {
			d.logger.Debugw("malformed detection", "result", r)
			continue
		}
		det.Box = det.Box.Add(b.Min)
		detections = append(detections, det)
	}

	return filterAndSort(detections, threshold), nil
}

func (d *RemoteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
