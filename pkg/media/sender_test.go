package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arzzra/voicechat/pkg/audio"
	"github.com/arzzra/voicechat/pkg/rtp"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyTransport отказывает на первых failures отправках
type flakyTransport struct {
	rtp.Transport
	failures atomic.Int32
}

func (t *flakyTransport) Send(data []byte) error {
	if t.failures.Add(-1) >= 0 {
		return &rtp.NetworkError{Type: rtp.ErrorTypeTemporary, Operation: "write", Err: errors.New("no buffer space")}
	}
	return t.Transport.Send(data)
}

// failingSource возвращает ошибку устройства после нескольких кадров
type failingSource struct {
	frames int
	err    error
}

func (s *failingSource) CaptureFrame(ctx context.Context) ([]byte, error) {
	if s.frames == 0 {
		return nil, s.err
	}
	s.frames--
	return make([]byte, testFrameSize), nil
}

// blockingSource блокируется до отмены контекста
type blockingSource struct{}

func (blockingSource) CaptureFrame(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type senderFixture struct {
	sender *Sender
	codec  *rtp.Codec
	local  *rtp.MemoryTransport
	remote *rtp.MemoryTransport
}

func newSenderFixture(t *testing.T, source CaptureSource, clockConfig rtp.SequenceClockConfig, wrap func(rtp.Transport) rtp.Transport) *senderFixture {
	t.Helper()

	codec, err := rtp.NewCodec(rtp.CodecConfig{FrameSize: testFrameSize})
	require.NoError(t, err)

	if clockConfig.SamplesPerFrame == 0 {
		clockConfig.SamplesPerFrame = testSamplesPerFrame
	}
	clock, err := rtp.NewSequenceClock(clockConfig)
	require.NoError(t, err)

	local, remote := rtp.NewMemoryTransportPair(rtp.MemoryTransportConfig{QueueSize: 1024, ReceiveTimeout: 50 * time.Millisecond})
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	var transport rtp.Transport = local
	if wrap != nil {
		transport = wrap(local)
	}

	sender, err := NewSender(SenderConfig{
		Source:    source,
		Transport: transport,
		Codec:     codec,
		Clock:     clock,
	})
	require.NoError(t, err)

	return &senderFixture{sender: sender, codec: codec, local: local, remote: remote}
}

// received разбирает все датаграммы, дошедшие до второго конца
func (f *senderFixture) received(t *testing.T) []*rtp.Packet {
	t.Helper()

	var packets []*rtp.Packet
	for {
		data, _, err := f.remote.Receive(context.Background())
		if rtp.IsTimeout(err) {
			return packets
		}
		require.NoError(t, err)

		packet, err := f.codec.Decode(data)
		require.NoError(t, err)
		packets = append(packets, packet)
	}
}

func TestNewSenderValidation(t *testing.T) {
	codec, err := rtp.NewCodec(rtp.CodecConfig{FrameSize: testFrameSize})
	require.NoError(t, err)
	clock, err := rtp.NewSequenceClock(rtp.SequenceClockConfig{SamplesPerFrame: testSamplesPerFrame})
	require.NoError(t, err)
	transport, _ := rtp.NewMemoryTransportPair(rtp.MemoryTransportConfig{})

	_, err = NewSender(SenderConfig{Transport: transport, Codec: codec, Clock: clock})
	assert.True(t, HasErrorCode(err, ErrorCodeSessionInvalidConfig))

	variable, err := rtp.NewCodec(rtp.CodecConfig{})
	require.NoError(t, err)
	_, err = NewSender(SenderConfig{Source: blockingSource{}, Transport: transport, Codec: variable, Clock: clock})
	assert.True(t, HasErrorCode(err, ErrorCodeSessionInvalidConfig))
}

func TestSenderPadsFinalFrame(t *testing.T) {
	format := audio.DefaultFormat()
	pcm := bytes.Repeat([]byte{0x11}, testFrameSize*2+100)

	f := newSenderFixture(t, audio.NewReaderSource(bytes.NewReader(pcm), format), rtp.SequenceClockConfig{
		SessionID:       0xFEED,
		InitialSequence: 65535,
	}, nil)

	require.NoError(t, f.sender.Run(context.Background()))

	packets := f.received(t)
	require.Len(t, packets, 3)

	assert.Equal(t, []uint16{65535, 0, 1}, []uint16{
		packets[0].SequenceNumber, packets[1].SequenceNumber, packets[2].SequenceNumber,
	})
	for i, packet := range packets {
		assert.Equal(t, uint32(0xFEED), packet.SessionID)
		assert.Equal(t, uint32(i)*testSamplesPerFrame, packet.Timestamp)
		assert.Len(t, packet.Payload, testFrameSize)
	}

	last := packets[2].Payload
	assert.Equal(t, bytes.Repeat([]byte{0x11}, 100), last[:100])
	assert.Equal(t, make([]byte, testFrameSize-100), last[100:])

	stats := f.sender.Stats()
	assert.Equal(t, uint64(3), stats.Frames)
	assert.Equal(t, uint64(3), stats.PacketsSent)
	assert.Equal(t, uint64(1), stats.PaddedFrames)
	assert.Equal(t, uint64(3*(rtp.HeaderSize+testFrameSize)), stats.BytesSent)
	assert.Equal(t, uint32(0xFEED), f.sender.SessionID())
}

func TestSenderSplitsLongCapture(t *testing.T) {
	// Источник может вернуть больше одного кадра за раз
	source := CaptureFunc(func(ctx context.Context) ([]byte, error) {
		return make([]byte, testFrameSize*3), io.EOF
	})

	f := newSenderFixture(t, source, rtp.SequenceClockConfig{}, nil)
	require.NoError(t, f.sender.Run(context.Background()))

	assert.Len(t, f.received(t), 3)
	assert.Zero(t, f.sender.Stats().PaddedFrames)
}

func TestSenderSurvivesSendFailures(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x22}, testFrameSize*10)
	flaky := &flakyTransport{}
	flaky.failures.Store(3)

	f := newSenderFixture(t, audio.NewReaderSource(bytes.NewReader(pcm), audio.DefaultFormat()),
		rtp.SequenceClockConfig{}, func(inner rtp.Transport) rtp.Transport {
			flaky.Transport = inner
			return flaky
		})
	metrics := newRecordingMetrics()
	f.sender.metrics = metrics
	logger, hook := logrustest.NewNullLogger()
	f.sender.logger = logger

	require.NoError(t, f.sender.Run(context.Background()))

	packets := f.received(t)
	require.Len(t, packets, 7)
	// Номера потерянных при отправке пакетов не переиспользуются
	assert.Equal(t, packets[0].SequenceNumber+6, packets[6].SequenceNumber)

	stats := f.sender.Stats()
	assert.Equal(t, uint64(10), stats.Frames)
	assert.Equal(t, uint64(7), stats.PacketsSent)
	assert.Equal(t, uint64(3), stats.SendErrors)
	assert.Equal(t, 3, metrics.sendErrors)
	assert.Equal(t, 7, metrics.sent)

	// Логируется только первая из подряд идущих ошибок
	var warnings []*logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings = append(warnings, entry)
		}
	}
	require.Len(t, warnings, 1)

	err, ok := warnings[0].Data[logrus.ErrorKey].(error)
	require.True(t, ok)
	assert.True(t, HasErrorCode(err, ErrorCodeRTPSendFailed))
	assert.True(t, IsRecoverableError(err))
	assert.Contains(t, err.Error(), sessionKey(f.sender.SessionID()))

	var netErr *rtp.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, rtp.ErrorTypeTemporary, netErr.Type)
}

func TestSenderDeviceError(t *testing.T) {
	cause := errors.New("устройство захвата отключено")
	f := newSenderFixture(t, &failingSource{frames: 2, err: cause}, rtp.SequenceClockConfig{}, nil)

	err := f.sender.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsAudioDeviceError(err))
	assert.True(t, HasErrorCode(err, ErrorCodeAudioCaptureFailed))
	assert.ErrorIs(t, err, cause)

	assert.Len(t, f.received(t), 2)
}

func TestSenderStopsOnCancel(t *testing.T) {
	f := newSenderFixture(t, blockingSource{}, rtp.SequenceClockConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.sender.Run(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}
