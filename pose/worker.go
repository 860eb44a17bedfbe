package pose

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"fall-detection/fall"
	"fall-detection/utils"

	"github.com/mdobak/go-xerrors"
	"github.com/vmihailenco/msgpack/v5"
)

// maxMessageSize guards against a corrupt length prefix.
const maxMessageSize = 64 << 20

var errWorkerBroken = errors.New("pose worker is no longer usable")

type workerRequest struct {
	Seq    uint64 `msgpack:"seq"`
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
	JPEG   []byte `msgpack:"jpeg"`
}

type workerResponse struct {
	Seq       uint64          `msgpack:"seq"`
	Detected  bool            `msgpack:"detected"`
	Landmarks []fall.Landmark `msgpack:"landmarks"`
	Error     string          `msgpack:"error"`
}

// Worker runs pose estimation in a long-lived subprocess. Requests and
// responses are msgpack documents framed by a 4 byte big-endian length.
// Detect calls are serialised. A request that times out does not poison the
// worker: its late response is discarded by sequence number.
type Worker struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.Reader
	timeout time.Duration
	logger  *slog.Logger

	mu  sync.Mutex
	seq uint64

	requests  chan workerRequest
	responses chan workerResponse
	closed    chan struct{}
	closeOnce sync.Once

	failed   chan struct{}
	failOnce sync.Once
	failErr  error

	wg     sync.WaitGroup
	stderr sync.WaitGroup
}

// StartWorker spawns command and returns a Worker talking to it.
func StartWorker(ctx context.Context, command string, args ...string) (*Worker, error) {
	if command == "" {
		return nil, fmt.Errorf("pose worker command is required")
	}

	cmd := exec.CommandContext(ctx, command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start pose worker: %w", err)
	}

	w := newWorker(stdin, stdout)
	w.cmd = cmd
	w.logger.InfoContext(ctx, "pose worker started",
		slog.String("command", command),
		slog.Int("pid", cmd.Process.Pid),
	)

	w.stderr.Add(1)
	go w.logStderr(stderr)
	return w, nil
}

func newWorker(stdin io.WriteCloser, stdout io.Reader) *Worker {
	w := &Worker{
		stdin:     stdin,
		stdout:    bufio.NewReader(stdout),
		timeout:   5 * time.Second,
		logger:    utils.GetLogger(),
		requests:  make(chan workerRequest),
		responses: make(chan workerResponse),
		closed:    make(chan struct{}),
		failed:    make(chan struct{}),
	}
	w.wg.Add(2)
	go w.writeLoop()
	go w.readLoop()
	return w
}

func (w *Worker) fail(err error) {
	w.failOnce.Do(func() {
		w.failErr = err
		close(w.failed)
	})
}

func (w *Worker) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case req := <-w.requests:
			if err := writeMessage(w.stdin, req); err != nil {
				w.fail(err)
				return
			}
		case <-w.closed:
			return
		}
	}
}

func (w *Worker) readLoop() {
	defer w.wg.Done()
	for {
		var resp workerResponse
		if err := readMessage(w.stdout, &resp); err != nil {
			w.fail(err)
			return
		}
		select {
		case w.responses <- resp:
		case <-w.closed:
			return
		}
	}
}

// Detect implements fall.PoseSource.
func (w *Worker) Detect(ctx context.Context, frame fall.Frame) (fall.JointSet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.failed:
		return nil, fmt.Errorf("%w: %w", errWorkerBroken, w.failErr)
	default:
	}

	w.seq++
	req := workerRequest{
		Seq:    w.seq,
		Width:  frame.Width,
		Height: frame.Height,
		JPEG:   frame.Data,
	}

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case w.requests <- req:
	case <-w.failed:
		return nil, fmt.Errorf("%w: %w", errWorkerBroken, w.failErr)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("pose worker did not accept frame %d within %s", frame.Index, w.timeout)
	}

	for {
		select {
		case resp := <-w.responses:
			if resp.Seq < req.Seq {
				w.logger.DebugContext(ctx, "discarding late pose worker response",
					slog.Uint64("seq", resp.Seq),
					slog.Uint64("current", req.Seq),
				)
				continue
			}
			if resp.Seq > req.Seq {
				// A response from the future means the peer does not speak
				// this protocol; nothing can resynchronise it.
				w.fail(fmt.Errorf("response out of sequence: sent %d, got %d", req.Seq, resp.Seq))
				return nil, w.failErr
			}
			if resp.Error != "" {
				return nil, fmt.Errorf("pose worker: %s", resp.Error)
			}
			if !resp.Detected {
				return nil, nil
			}
			return fall.JointSetFromLandmarks(resp.Landmarks), nil
		case <-w.failed:
			return nil, fmt.Errorf("%w: %w", errWorkerBroken, w.failErr)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("pose worker gave no response for frame %d within %s", frame.Index, w.timeout)
		}
	}
}

// Close stops the worker process.
func (w *Worker) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closed)
		err = w.stdin.Close()
		w.wg.Wait()
		if w.cmd != nil {
			w.stderr.Wait()
			if waitErr := w.cmd.Wait(); waitErr != nil && err == nil {
				err = waitErr
			}
		}
	})
	return err
}

func (w *Worker) logStderr(stderr io.Reader) {
	defer w.stderr.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		w.logger.Debug("pose worker", slog.String("stderr", scanner.Text()))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		w.logger.Warn("pose worker stderr closed", slog.Any("error", xerrors.New(err)))
	}
}

func writeMessage(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal msgpack message: %w", err)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write msgpack data: %w", err)
	}
	return nil
}

func readMessage(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return fmt.Errorf("failed to read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("failed to read msgpack data: %w", err)
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal msgpack message: %w", err)
	}
	return nil
}
