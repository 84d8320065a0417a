package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/pipeline"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/utils"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/vision"
)

var ErrWorkerDead = errors.New("plate worker is not running")

// maxResponse caps a single reply from the sidecar.
const maxResponse = 16 << 20

// PlateWorker talks to the Python detector/recognizer sidecar. Frames go in on stdin and
// replies come back on FD 3, each as [uint32 big-endian length][JSON body]. The sidecar
// handles one request at a time, so calls are serialized.
type PlateWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	mu   sync.Mutex
	dead error
	down atomic.Bool
	log  zerolog.Logger
}

func Start(id int, command string, args []string, log zerolog.Logger) (*PlateWorker, error) {
	py := utils.NewSafeCommand(command, args...)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}
	w.Close()

	return &PlateWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		log:      log.With().Str("component", "worker").Int("worker_id", id).Logger(),
	}, nil
}

type request struct {
	Op      string  `json:"op"`
	Image   []byte  `json:"image,omitempty"`
	Conf    float64 `json:"conf,omitempty"`
	ImgSize int     `json:"imgsz,omitempty"`
}

type wireBox struct {
	XYXY [4]float64 `json:"xyxy"`
	Conf float64    `json:"conf"`
	Cls  int        `json:"cls"`
}

type response struct {
	Error string    `json:"error,omitempty"`
	Boxes []wireBox `json:"boxes,omitempty"`
	Texts []string  `json:"texts,omitempty"`
	Ready bool      `json:"ready,omitempty"`
}

// Communicate sends one framed message and reads one framed reply.
func (w *PlateWorker) Communicate(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("worker reply of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

type exchange struct {
	raw []byte
	err error
}

func (w *PlateWorker) call(ctx context.Context, req request) (*response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode worker request: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dead != nil {
		return nil, w.dead
	}

	done := make(chan exchange, 1)
	go func() {
		raw, err := w.Communicate(payload)
		done <- exchange{raw: raw, err: err}
	}()

	var raw []byte
	select {
	case <-ctx.Done():
		// A reply may still arrive for this request, so the framing can no longer be trusted.
		w.kill(fmt.Errorf("%w: %s abandoned: %v", ErrWorkerDead, req.Op, ctx.Err()))
		w.log.Error().Err(ctx.Err()).Str("op", req.Op).Msg("plate worker call abandoned, stopping worker")
		return nil, ctx.Err()
	case ex := <-done:
		if ex.err != nil {
			// The stream is out of sync or the child is gone; nothing after this can be trusted.
			w.dead = fmt.Errorf("%w: %v", ErrWorkerDead, ex.err)
			w.down.Store(true)
			ev := w.log.Error().Err(ex.err).Str("op", req.Op)
			if w.Cmd != nil {
				ev = ev.Str("stderr", w.Cmd.StderrTail(2048))
			}
			ev.Msg("plate worker stream broken")
			return nil, w.dead
		}
		raw = ex.raw
	}

	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode worker reply: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("python worker error: %s", resp.Error)
	}
	return &resp, nil
}

// kill marks the worker dead and unblocks any in-flight exchange. Caller holds w.mu.
func (w *PlateWorker) kill(reason error) {
	w.dead = reason
	w.down.Store(true)
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil && w.Cmd.Process != nil {
		_ = w.Cmd.Process.Kill()
	}
}

// Alive reports whether the sidecar can still take requests. It does not wait for an
// in-flight call.
func (w *PlateWorker) Alive() bool {
	return !w.down.Load()
}

// Ping asks the sidecar whether its models are loaded.
func (w *PlateWorker) Ping(ctx context.Context) error {
	resp, err := w.call(ctx, request{Op: "ping"})
	if err != nil {
		return err
	}
	if !resp.Ready {
		return errors.New("plate worker reports models not loaded")
	}
	return nil
}

func (w *PlateWorker) Detect(ctx context.Context, img image.Image, opts pipeline.DetectOptions) ([]anpr.Candidate, error) {
	data, err := vision.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	resp, err := w.call(ctx, request{
		Op:      "detect",
		Image:   data,
		Conf:    opts.ConfidenceFloor,
		ImgSize: opts.InferenceSize,
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]anpr.Candidate, 0, len(resp.Boxes))
	for _, b := range resp.Boxes {
		candidates = append(candidates, anpr.Candidate{
			Box: anpr.Box{
				X1: int(b.XYXY[0]),
				Y1: int(b.XYXY[1]),
				X2: int(b.XYXY[2]),
				Y2: int(b.XYXY[3]),
			},
			Confidence: b.Conf,
			ClassID:    b.Cls,
		})
	}
	return candidates, nil
}

func (w *PlateWorker) Recognize(ctx context.Context, crop image.Image) ([]string, error) {
	data, err := vision.EncodeJPEG(crop)
	if err != nil {
		return nil, err
	}
	resp, err := w.call(ctx, request{Op: "recognize", Image: data})
	if err != nil {
		return nil, err
	}
	return resp.Texts, nil
}

func (w *PlateWorker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dead == nil {
		w.dead = ErrWorkerDead
	}
	w.down.Store(true)
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		return w.Cmd.Wait()
	}
	return nil
}
