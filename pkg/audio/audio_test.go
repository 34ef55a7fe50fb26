package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFormat(t *testing.T) {
	format := DefaultFormat()

	require.NoError(t, format.Validate())
	assert.Equal(t, 320, format.FrameSize())
	assert.Equal(t, 20*time.Millisecond, format.FrameDuration())
	assert.Equal(t, make([]byte, 320), format.Silence())
}

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Format)
	}{
		{"нулевая частота", func(f *Format) { f.SampleRate = 0 }},
		{"нулевой кадр", func(f *Format) { f.SamplesPerFrame = 0 }},
		{"нет каналов", func(f *Format) { f.Channels = 0 }},
		{"3 байта на сэмпл", func(f *Format) { f.BytesPerSample = 3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format := DefaultFormat()
			tt.modify(&format)
			assert.Error(t, format.Validate())
		})
	}
}

// TestReaderSourcePartialFrame проверяет выдачу последнего неполного кадра вместе с io.EOF
func TestReaderSourcePartialFrame(t *testing.T) {
	format := DefaultFormat()
	data := bytes.Repeat([]byte{1}, format.FrameSize()*2+100)
	source := NewReaderSource(bytes.NewReader(data), format)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		frame, err := source.CaptureFrame(ctx)
		require.NoError(t, err)
		assert.Len(t, frame, format.FrameSize())
	}

	frame, err := source.CaptureFrame(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, frame, 100)

	frame, err = source.CaptureFrame(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Empty(t, frame)
}

func TestReaderSourceError(t *testing.T) {
	readErr := errors.New("устройство отключено")
	source := NewReaderSource(io.MultiReader(bytes.NewReader([]byte{1, 2}), &failingReader{err: readErr}), DefaultFormat())

	_, err := source.CaptureFrame(context.Background())
	assert.ErrorIs(t, err, readErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = source.CaptureFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingReader struct {
	err error
}

func (r *failingReader) Read([]byte) (int, error) {
	return 0, r.err
}

func TestToneSource(t *testing.T) {
	format := DefaultFormat()
	source, err := NewToneSource(format, ToneConfig{Frequency: 1000, Amplitude: 0.5, Frames: 3})
	require.NoError(t, err)

	frame, err := source.CaptureFrame(context.Background())
	require.NoError(t, err)
	require.Len(t, frame, format.FrameSize())

	// 1 кГц при 8 кГц: второй сэмпл sin(pi/4) * 0.5 * 32767
	assert.Equal(t, int16(0), int16(binary.LittleEndian.Uint16(frame[0:])))
	assert.InDelta(t, 11584, int16(binary.LittleEndian.Uint16(frame[2:])), 1)
	assert.InDelta(t, 16383, int16(binary.LittleEndian.Uint16(frame[4:])), 1)

	_, err = source.CaptureFrame(context.Background())
	require.NoError(t, err)
	_, err = source.CaptureFrame(context.Background())
	require.NoError(t, err)
	_, err = source.CaptureFrame(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestToneSourceValidation(t *testing.T) {
	format := DefaultFormat()
	_, err := NewToneSource(format, ToneConfig{Frequency: 4000})
	assert.Error(t, err, "частота Найквиста недопустима")

	format.BytesPerSample = 1
	_, err = NewToneSource(format, ToneConfig{Frequency: 440})
	assert.Error(t, err)
}

// TestPacedSource проверяет темп выдачи кадров
func TestPacedSource(t *testing.T) {
	format := DefaultFormat()
	format.SamplesPerFrame = 80 // 10 мс
	tone, err := NewToneSource(format, ToneConfig{Frequency: 440})
	require.NoError(t, err)

	source := NewPacedSource(tone, format)
	defer source.Close()

	start := time.Now()
	for i := 0; i < 5; i++ {
		_, err := source.CaptureFrame(context.Background())
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = source.CaptureFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriterAndNullSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	require.NoError(t, sink.PlayFrame([]byte{1, 2}))
	require.NoError(t, sink.PlayFrame([]byte{3}))
	assert.Equal(t, []byte{1, 2, 3}, buf.Bytes())
	assert.NoError(t, sink.Close())

	null := NewNullSink()
	require.NoError(t, null.PlayFrame(make([]byte, 320)))
	assert.Equal(t, uint64(1), null.Frames())
	assert.Equal(t, uint64(320), null.Bytes())
}

// TestWAVSinkRoundTrip проверяет запись WAV и повторное чтение как источника
func TestWAVSinkRoundTrip(t *testing.T) {
	format := DefaultFormat()
	path := filepath.Join(t.TempDir(), "out.wav")

	sink, err := CreateWAVSink(path, format)
	require.NoError(t, err)
	require.NoError(t, sink.PlayFrame(bytes.Repeat([]byte{7}, format.FrameSize())))
	require.NoError(t, sink.PlayFrame(bytes.Repeat([]byte{8}, format.FrameSize())))
	assert.Equal(t, uint32(2*format.FrameSize()), sink.DataSize())
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.PlayFrame([]byte{1}), os.ErrClosed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, wavHeaderSize+2*format.FrameSize())
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, uint32(36+2*format.FrameSize()), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, uint32(2*format.FrameSize()), binary.LittleEndian.Uint32(data[40:44]))

	source, err := OpenWAVSource(path, format)
	require.NoError(t, err)
	defer source.Close()

	frame, err := source.CaptureFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(7), frame[0])

	other := format
	other.SampleRate = 16000
	_, err = OpenWAVSource(path, other)
	assert.Error(t, err)
}

func TestReadWAVHeaderInvalid(t *testing.T) {
	_, err := ReadWAVHeader(bytes.NewReader(make([]byte, wavHeaderSize)))
	assert.Error(t, err)

	_, err = ReadWAVHeader(bytes.NewReader([]byte("RIFF")))
	assert.Error(t, err)
}
