package pose

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"fall-detection/fall"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorker answers requests the way the pose subprocess does.
func fakeWorker(t *testing.T, handle func(workerRequest) workerResponse) *Worker {
	t.Helper()

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	go func() {
		defer respW.Close()
		for {
			var req workerRequest
			if err := readMessage(reqR, &req); err != nil {
				return
			}
			if err := writeMessage(respW, handle(req)); err != nil {
				return
			}
		}
	}()

	w := newWorker(reqW, respR)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	req := workerRequest{Seq: 42, Width: 640, Height: 480, JPEG: []byte{0xff, 0xd8}}
	require.NoError(t, writeMessage(&buf, req))

	assert.Equal(t, byte(0), buf.Bytes()[0], "length prefix is big-endian")

	var got workerRequest
	require.NoError(t, readMessage(&buf, &got))
	assert.Equal(t, req, got)

	_, err := buf.Write([]byte{0x7f, 0xff, 0xff, 0xff})
	require.NoError(t, err)
	assert.Error(t, readMessage(&buf, &got), "oversized messages are rejected")
}

func TestWorkerDetect(t *testing.T) {
	w := fakeWorker(t, func(req workerRequest) workerResponse {
		if req.Seq == 2 {
			return workerResponse{Seq: req.Seq}
		}
		return workerResponse{
			Seq:       req.Seq,
			Detected:  true,
			Landmarks: fall.LandmarksFromJointSet(testJoints()),
		}
	})

	joints, err := w.Detect(context.Background(), fall.Frame{Index: 1, Width: 640, Height: 480, Data: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, testJoints()[fall.LeftHip], joints[fall.LeftHip])

	joints, err = w.Detect(context.Background(), fall.Frame{Index: 2, Data: []byte{1}})
	require.NoError(t, err)
	assert.Nil(t, joints, "no person detected")
}

func TestWorkerReportsErrors(t *testing.T) {
	w := fakeWorker(t, func(req workerRequest) workerResponse {
		return workerResponse{Seq: req.Seq, Error: "inference failed"}
	})

	_, err := w.Detect(context.Background(), fall.Frame{Index: 1, Data: []byte{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inference failed")

	// Worker-side errors leave the protocol in sync.
	_, err = w.Detect(context.Background(), fall.Frame{Index: 2, Data: []byte{1}})
	assert.Contains(t, err.Error(), "inference failed")
}

func TestWorkerOutOfSequenceBreaksWorker(t *testing.T) {
	w := fakeWorker(t, func(req workerRequest) workerResponse {
		return workerResponse{Seq: req.Seq + 10, Detected: true}
	})

	_, err := w.Detect(context.Background(), fall.Frame{Index: 1, Data: []byte{1}})
	require.Error(t, err)

	_, err = w.Detect(context.Background(), fall.Frame{Index: 2, Data: []byte{1}})
	assert.ErrorIs(t, err, errWorkerBroken)
}

func TestWorkerTimeoutDoesNotBreakWorker(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go func() { _, _ = io.Copy(io.Discard, reqR) }()

	w := newWorker(reqW, respR)
	w.timeout = 20 * time.Millisecond
	t.Cleanup(func() {
		_ = respW.Close()
		_ = w.Close()
	})

	_, err := w.Detect(context.Background(), fall.Frame{Index: 1, Data: []byte{1}})
	require.Error(t, err)

	_, err = w.Detect(context.Background(), fall.Frame{Index: 2, Data: []byte{1}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, errWorkerBroken)
}

func TestWorkerRecoversFromSlowResponse(t *testing.T) {
	lying := fall.JointSet{
		fall.LeftShoulder:  {X: 0.20, Y: 0.80},
		fall.RightShoulder: {X: 0.20, Y: 0.84},
		fall.LeftHip:       {X: 0.50, Y: 0.82},
		fall.RightHip:      {X: 0.50, Y: 0.86},
		fall.LeftAnkle:     {X: 0.80, Y: 0.85},
		fall.RightAnkle:    {X: 0.80, Y: 0.89},
	}

	w := fakeWorker(t, func(req workerRequest) workerResponse {
		if req.Seq == 1 {
			// Model warm-up on the first frame.
			time.Sleep(150 * time.Millisecond)
		}
		return workerResponse{
			Seq:       req.Seq,
			Detected:  true,
			Landmarks: fall.LandmarksFromJointSet(lying),
		}
	})
	w.timeout = 100 * time.Millisecond

	frames := make([]fall.Frame, 20)
	for i := range frames {
		frames[i] = fall.Frame{Width: 640, Height: 480, Data: []byte{0xff, 0xd8}}
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	result, err := fall.NewDetector(w, fall.DefaultConfig(),
		fall.WithLogger(quiet),
		fall.WithProgressInterval(0),
	).Run(context.Background(), &frameList{fps: 30, frames: frames})
	require.NoError(t, err)

	assert.Equal(t, 20, result.TotalFrames)
	assert.Equal(t, 1, result.Summary.InconclusiveFrames, "only the stalled frame is lost")
	require.Equal(t, 1, result.TotalFalls)
	assert.Equal(t, 6, result.FallEvents[0].FrameIndex)
}

// frameList is an in-memory fall.FrameSource.
type frameList struct {
	fps    int
	frames []fall.Frame
	next   int
}

func (l *frameList) FPS() int { return l.fps }

func (l *frameList) Next(context.Context) (fall.Frame, error) {
	if l.next >= len(l.frames) {
		return fall.Frame{}, io.EOF
	}
	f := l.frames[l.next]
	l.next++
	return f, nil
}

func (l *frameList) Close() error { return nil }

func TestStartWorkerRequiresCommand(t *testing.T) {
	_, err := StartWorker(context.Background(), "")
	assert.Error(t, err)
}
