package pose

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"fall-detection/fall"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "walk.jsonl")
	frames := []fall.JointSet{testJoints(), nil, testJoints()}
	header := RecordingHeader{FPS: 25, Width: 640, Height: 480, Source: "walk.mp4"}

	require.NoError(t, WriteRecording(path, header, frames))

	rec, err := OpenRecording(path)
	require.NoError(t, err)
	defer rec.Close()

	assert.Equal(t, 25, rec.FPS())
	assert.Equal(t, 3, rec.FrameCount())
	assert.Equal(t, "walk.mp4", rec.Header().Source)

	var got []fall.Frame
	for {
		frame, err := rec.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, frame)
	}

	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 640, got[0].Width)
	assert.Equal(t, testJoints()[fall.RightAnkle], got[0].Joints[fall.RightAnkle])
	assert.Nil(t, got[1].Joints)
	assert.NotNil(t, got[2].Joints)

	joints, err := Attached{}.Detect(context.Background(), got[2])
	require.NoError(t, err)
	assert.Equal(t, got[2].Joints, joints)
}

func TestOpenRecordingErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := OpenRecording(filepath.Join(dir, "missing.jsonl"))
	assert.ErrorIs(t, err, fall.ErrSourceUnavailable)

	empty := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = OpenRecording(empty)
	assert.ErrorIs(t, err, fall.ErrSourceUnavailable)

	broken := filepath.Join(dir, "broken.jsonl")
	require.NoError(t, os.WriteFile(broken, []byte("not json\n"), 0o644))
	_, err = OpenRecording(broken)
	assert.ErrorIs(t, err, fall.ErrSourceUnavailable)
}

func TestRecordingDrivesDetector(t *testing.T) {
	lying := fall.JointSet{
		fall.LeftShoulder:  {X: 0.20, Y: 0.80},
		fall.RightShoulder: {X: 0.20, Y: 0.84},
		fall.LeftHip:       {X: 0.50, Y: 0.82},
		fall.RightHip:      {X: 0.50, Y: 0.86},
		fall.LeftAnkle:     {X: 0.80, Y: 0.85},
		fall.RightAnkle:    {X: 0.80, Y: 0.89},
	}
	var frames []fall.JointSet
	for i := 0; i < 10; i++ {
		frames = append(frames, testJoints())
	}
	for i := 0; i < 10; i++ {
		frames = append(frames, lying)
	}

	path := filepath.Join(t.TempDir(), "fall.jsonl")
	require.NoError(t, WriteRecording(path, RecordingHeader{FPS: 10}, frames))

	rec, err := OpenRecording(path)
	require.NoError(t, err)
	defer rec.Close()

	copyPath := filepath.Join(t.TempDir(), "copy.jsonl")
	writer, err := NewRecordingWriter(copyPath, rec.Header())
	require.NoError(t, err)

	result, err := fall.NewDetector(Attached{}, fall.DefaultConfig(), fall.WithObserver(writer)).
		Run(context.Background(), rec)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	assert.Equal(t, 20, result.TotalFrames)
	require.Equal(t, 1, result.TotalFalls)
	assert.Equal(t, 15, result.FallEvents[0].FrameIndex)
	assert.InDelta(t, 1.5, result.FallEvents[0].TimestampSeconds, 1e-9)

	replay, err := OpenRecording(copyPath)
	require.NoError(t, err)
	defer replay.Close()
	again, err := fall.NewDetector(nil, fall.DefaultConfig()).Run(context.Background(), replay)
	require.NoError(t, err)
	assert.Equal(t, result.TotalFalls, again.TotalFalls)
	assert.Equal(t, result.FallEvents[0].FrameIndex, again.FallEvents[0].FrameIndex)
}
