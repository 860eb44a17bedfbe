package video

import (
	"context"
	"fmt"
	"io"
	"time"

	"fall-detection/fall"

	"gocv.io/x/gocv"
)

// Capture reads frames from a video file and hands them on as JPEG.
type Capture struct {
	capture    *gocv.VideoCapture
	img        gocv.Mat
	fps        int
	frameCount int
	width      int
	height     int
}

// Open opens the video at path. Errors wrap fall.ErrSourceUnavailable.
func Open(path string) (*Capture, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not open video %s: %w: %w", path, fall.ErrSourceUnavailable, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("could not open video %s: %w", path, fall.ErrSourceUnavailable)
	}

	return &Capture{
		capture: capture,
		img:     gocv.NewMat(),
		// Frame rates such as 29.97 are truncated.
		fps:        int(capture.Get(gocv.VideoCaptureFPS)),
		frameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
		width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}, nil
}

// FPS implements fall.FrameSource.
func (c *Capture) FPS() int { return c.fps }

// FrameCount implements fall.FrameCounter. It is the container's estimate
// and may differ from the number of frames actually decoded.
func (c *Capture) FrameCount() int { return c.frameCount }

// Size returns the frame dimensions in pixels.
func (c *Capture) Size() (width, height int) { return c.width, c.height }

// Next implements fall.FrameSource.
func (c *Capture) Next(ctx context.Context) (fall.Frame, error) {
	if err := ctx.Err(); err != nil {
		return fall.Frame{}, err
	}
	if ok := c.capture.Read(&c.img); !ok || c.img.Empty() {
		return fall.Frame{}, io.EOF
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, c.img)
	if err != nil {
		return fall.Frame{}, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	return fall.Frame{
		Width:     c.img.Cols(),
		Height:    c.img.Rows(),
		Data:      data,
		Timestamp: time.Now(),
	}, nil
}

// Close implements fall.FrameSource.
func (c *Capture) Close() error {
	if err := c.img.Close(); err != nil {
		c.capture.Close()
		return err
	}
	return c.capture.Close()
}
