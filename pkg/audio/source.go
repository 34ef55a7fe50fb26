package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

// ReaderSource читает кадры сырого PCM из io.Reader.
// Последний неполный кадр возвращается вместе с io.EOF.
type ReaderSource struct {
	reader    io.Reader
	frameSize int
}

// NewReaderSource создает источник поверх reader
func NewReaderSource(reader io.Reader, format Format) *ReaderSource {
	return &ReaderSource{
		reader:    reader,
		frameSize: format.FrameSize(),
	}
}

// CaptureFrame читает один кадр. Блокируется, пока reader не отдаст данные:
// для прерывания ожидания закройте источник.
func (s *ReaderSource) CaptureFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame := make([]byte, s.frameSize)
	n, err := io.ReadFull(s.reader, frame)
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return frame[:n], io.EOF
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	default:
		return frame[:n], err
	}
}

// Close закрывает reader, если он это поддерживает
func (s *ReaderSource) Close() error {
	if closer, ok := s.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ToneSource генерирует синусоиду. Кадры выдаются без задержки,
// для темпа реального времени оберните источник в PacedSource.
type ToneSource struct {
	format    Format
	frequency float64
	amplitude float64
	limit     int // Количество кадров, 0 - бесконечно

	position int64 // Номер следующего сэмпла
	frames   int
}

// ToneConfig параметры генератора тона
type ToneConfig struct {
	Frequency float64 // Частота, Гц
	Amplitude float64 // Амплитуда 0..1
	Frames    int     // Ограничение длины, 0 - без ограничения
}

// NewToneSource создает генератор тона
func NewToneSource(format Format, config ToneConfig) (*ToneSource, error) {
	if format.BytesPerSample != 2 {
		return nil, fmt.Errorf("генератор тона поддерживает только 16-битный PCM")
	}
	if config.Frequency <= 0 || config.Frequency >= float64(format.SampleRate)/2 {
		return nil, fmt.Errorf("частота тона %.1f Гц вне диапазона (0, %d)", config.Frequency, format.SampleRate/2)
	}
	if config.Amplitude <= 0 || config.Amplitude > 1 {
		config.Amplitude = 0.5
	}

	return &ToneSource{
		format:    format,
		frequency: config.Frequency,
		amplitude: config.Amplitude,
		limit:     config.Frames,
	}, nil
}

// CaptureFrame генерирует следующий кадр
func (s *ToneSource) CaptureFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.limit > 0 && s.frames >= s.limit {
		return nil, io.EOF
	}

	frame := make([]byte, s.format.FrameSize())
	step := 2 * math.Pi * s.frequency / float64(s.format.SampleRate)
	offset := 0
	for i := 0; i < s.format.SamplesPerFrame; i++ {
		value := int16(s.amplitude * math.MaxInt16 * math.Sin(step*float64(s.position)))
		for ch := 0; ch < s.format.Channels; ch++ {
			binary.LittleEndian.PutUint16(frame[offset:], uint16(value))
			offset += 2
		}
		s.position++
	}
	s.frames++

	return frame, nil
}

// FrameSource источник кадров, который может обернуть PacedSource
type FrameSource interface {
	CaptureFrame(ctx context.Context) ([]byte, error)
}

// PacedSource выдает кадры вложенного источника не чаще одного за период кадра
type PacedSource struct {
	source FrameSource
	period time.Duration

	mutex  sync.Mutex
	ticker *time.Ticker
}

// NewPacedSource оборачивает источник, работающий быстрее реального времени
func NewPacedSource(source FrameSource, format Format) *PacedSource {
	return &PacedSource{
		source: source,
		period: format.FrameDuration(),
	}
}

// CaptureFrame ждет очередной тик и читает кадр из вложенного источника
func (s *PacedSource) CaptureFrame(ctx context.Context) ([]byte, error) {
	s.mutex.Lock()
	if s.ticker == nil {
		s.ticker = time.NewTicker(s.period)
		s.mutex.Unlock()
		// Первый кадр отдаем сразу
		return s.source.CaptureFrame(ctx)
	}
	ticker := s.ticker
	s.mutex.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ticker.C:
	}
	return s.source.CaptureFrame(ctx)
}

// Close останавливает таймер и закрывает вложенный источник
func (s *PacedSource) Close() error {
	s.mutex.Lock()
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.mutex.Unlock()

	if closer, ok := s.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
