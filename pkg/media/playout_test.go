package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink запоминает воспроизведенные кадры
type recordingSink struct {
	mutex  sync.Mutex
	frames [][]byte
	err    error
}

func (s *recordingSink) PlayFrame(frame []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.err != nil {
		return s.err
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	s.frames = append(s.frames, buf)
	return nil
}

func (s *recordingSink) played() [][]byte {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([][]byte(nil), s.frames...)
}

func newTestPlayout(t *testing.T, jb *JitterBuffer, sink PlaybackSink, fill bool) *Playout {
	t.Helper()
	playout, err := NewPlayout(PlayoutConfig{
		JitterBuffer:  jb,
		Sink:          sink,
		FrameDuration: time.Millisecond,
		FrameSize:     testFrameSize,
		FillSilence:   fill,
	})
	require.NoError(t, err)
	return playout
}

func TestNewPlayoutValidation(t *testing.T) {
	jb, _ := newTestBuffer(t, nil)

	_, err := NewPlayout(PlayoutConfig{Sink: &recordingSink{}, FrameDuration: time.Millisecond, FrameSize: 1})
	assert.True(t, HasErrorCode(err, ErrorCodeSessionInvalidConfig))

	_, err = NewPlayout(PlayoutConfig{JitterBuffer: jb, Sink: &recordingSink{}, FrameSize: 1})
	assert.True(t, HasErrorCode(err, ErrorCodeSessionInvalidConfig))
}

func TestPlayoutStep(t *testing.T) {
	t.Run("Заполнение тишиной при пустом буфере", func(t *testing.T) {
		jb, _ := newTestBuffer(t, nil)
		sink := &recordingSink{}
		playout := newTestPlayout(t, jb, sink, true)

		frame, err := playout.Step()
		require.NoError(t, err)
		assert.Equal(t, FrameEmpty, frame.Kind)

		played := sink.played()
		require.Len(t, played, 1)
		assert.Equal(t, make([]byte, testFrameSize), played[0])

		stats := playout.Stats()
		assert.Equal(t, uint64(1), stats.Empty)
		assert.Equal(t, uint64(1), stats.Filled)
	})

	t.Run("Без заполнения пустой такт пропускается", func(t *testing.T) {
		jb, _ := newTestBuffer(t, nil)
		sink := &recordingSink{}
		playout := newTestPlayout(t, jb, sink, false)

		_, err := playout.Step()
		require.NoError(t, err)
		assert.Empty(t, sink.played())
		assert.Zero(t, playout.Stats().Filled)
	})

	t.Run("Принятые и замаскированные кадры", func(t *testing.T) {
		jb, _ := newTestBuffer(t, func(c *JitterBufferConfig) {
			c.PlayoutDelay = 0
			c.LossTolerance = 0
		})
		sink := &recordingSink{}
		playout := newTestPlayout(t, jb, sink, true)
		metrics := newRecordingMetrics()
		playout.metrics = metrics

		jb.Insert(testPacket(0))
		jb.Insert(testPacket(2))

		for i := 0; i < 3; i++ {
			_, err := playout.Step()
			require.NoError(t, err)
		}

		played := sink.played()
		require.Len(t, played, 3)
		assert.Equal(t, testPayload(0), played[0])
		assert.Equal(t, make([]byte, testFrameSize), played[1])
		assert.Equal(t, testPayload(2), played[2])

		stats := playout.Stats()
		assert.Equal(t, uint64(3), stats.Ticks)
		assert.Equal(t, uint64(2), stats.Audio)
		assert.Equal(t, uint64(1), stats.Concealed)
		assert.Equal(t, 2, metrics.played["audio"])
		assert.Equal(t, 1, metrics.played["silence"])
	})

	t.Run("Сбой приемника", func(t *testing.T) {
		jb, _ := newTestBuffer(t, nil)
		cause := errors.New("устройство воспроизведения отключено")
		playout := newTestPlayout(t, jb, &recordingSink{err: cause}, true)

		_, err := playout.Step()
		require.Error(t, err)
		assert.True(t, IsAudioDeviceError(err))
		assert.True(t, HasErrorCode(err, ErrorCodeAudioPlaybackFailed))
		assert.ErrorIs(t, err, cause)
	})
}

func TestPlayoutRun(t *testing.T) {
	t.Run("Тактирование до отмены контекста", func(t *testing.T) {
		jb, _ := newTestBuffer(t, nil)
		sink := &recordingSink{}
		playout := newTestPlayout(t, jb, sink, true)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- playout.Run(ctx)
		}()

		assert.Eventually(t, func() bool {
			return len(sink.played()) >= 5
		}, time.Second, time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run не завершился после отмены контекста")
		}
	})

	t.Run("Сбой приемника завершает цикл", func(t *testing.T) {
		jb, _ := newTestBuffer(t, nil)
		playout := newTestPlayout(t, jb, &recordingSink{err: errors.New("сбой")}, true)

		err := playout.Run(context.Background())
		assert.True(t, IsAudioDeviceError(err))
	})
}
