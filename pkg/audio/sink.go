package audio

import (
	"io"
	"sync"
	"sync/atomic"
)

// WriterSink пишет кадры сырого PCM в io.Writer
type WriterSink struct {
	mutex  sync.Mutex
	writer io.Writer
}

// NewWriterSink создает приемник поверх writer
func NewWriterSink(writer io.Writer) *WriterSink {
	return &WriterSink{writer: writer}
}

// PlayFrame записывает кадр целиком
func (s *WriterSink) PlayFrame(frame []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, err := s.writer.Write(frame)
	return err
}

// Close закрывает writer, если он это поддерживает
func (s *WriterSink) Close() error {
	if closer, ok := s.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// NullSink отбрасывает кадры, считая их количество
type NullSink struct {
	frames atomic.Uint64
	bytes  atomic.Uint64
}

// NewNullSink создает пустой приемник
func NewNullSink() *NullSink {
	return &NullSink{}
}

// PlayFrame учитывает кадр
func (s *NullSink) PlayFrame(frame []byte) error {
	s.frames.Add(1)
	s.bytes.Add(uint64(len(frame)))
	return nil
}

// Frames количество принятых кадров
func (s *NullSink) Frames() uint64 {
	return s.frames.Load()
}

// Bytes количество принятых байт
func (s *NullSink) Bytes() uint64 {
	return s.bytes.Load()
}
