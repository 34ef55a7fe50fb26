package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// wavHeaderSize размер канонического заголовка PCM WAV
const wavHeaderSize = 44

// WAVHeader заголовок RIFF/WAVE файла с одним блоком fmt и data
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // Размер файла - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 для PCM
	AudioFormat   uint16  // 1 для PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Размер аудио данных
}

func newWAVHeader(format Format, dataSize uint32) WAVHeader {
	bits := uint16(format.BytesPerSample * 8)
	channels := uint16(format.Channels)
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.SampleRate) * uint32(channels) * uint32(bits) / 8,
		BlockAlign:    channels * bits / 8,
		BitsPerSample: bits,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// ReadWAVHeader читает и проверяет заголовок WAV файла.
// После успешного вызова reader указывает на начало аудио данных.
func ReadWAVHeader(reader io.Reader) (Format, error) {
	var header WAVHeader
	if err := binary.Read(reader, binary.LittleEndian, &header); err != nil {
		return Format{}, fmt.Errorf("ошибка чтения WAV заголовка: %w", err)
	}

	switch {
	case string(header.ChunkID[:]) != "RIFF":
		return Format{}, fmt.Errorf("некорректный WAV файл: нет RIFF заголовка")
	case string(header.Format[:]) != "WAVE":
		return Format{}, fmt.Errorf("некорректный WAV файл: нет формата WAVE")
	case string(header.Subchunk1ID[:]) != "fmt ":
		return Format{}, fmt.Errorf("некорректный WAV файл: нет блока fmt")
	case string(header.Subchunk2ID[:]) != "data":
		return Format{}, fmt.Errorf("некорректный WAV файл: нет блока data")
	case header.AudioFormat != 1:
		return Format{}, fmt.Errorf("неподдерживаемый формат аудио: %d (только PCM)", header.AudioFormat)
	}

	return Format{
		SampleRate:     int(header.SampleRate),
		Channels:       int(header.NumChannels),
		BytesPerSample: int(header.BitsPerSample / 8),
	}, nil
}

// OpenWAVSource открывает WAV файл как источник захвата.
// Формат файла должен совпадать с форматом потока.
func OpenWAVSource(path string, format Format) (*ReaderSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия %s: %w", path, err)
	}

	fileFormat, err := ReadWAVHeader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	if fileFormat.SampleRate != format.SampleRate ||
		fileFormat.Channels != format.Channels ||
		fileFormat.BytesPerSample != format.BytesPerSample {
		file.Close()
		return nil, fmt.Errorf("формат файла (%d Гц, %d кан., %d бит) не совпадает с потоком (%s)",
			fileFormat.SampleRate, fileFormat.Channels, fileFormat.BytesPerSample*8, format)
	}

	return NewReaderSource(file, format), nil
}

// WAVSink пишет принятый звук в WAV файл.
// Размеры в заголовке исправляются при закрытии.
type WAVSink struct {
	mutex    sync.Mutex
	writer   io.WriteSeeker
	format   Format
	dataSize uint32
	closed   bool
}

// NewWAVSink записывает заголовок и возвращает приемник
func NewWAVSink(writer io.WriteSeeker, format Format) (*WAVSink, error) {
	header := newWAVHeader(format, 0)
	if err := binary.Write(writer, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("ошибка записи WAV заголовка: %w", err)
	}
	return &WAVSink{writer: writer, format: format}, nil
}

// CreateWAVSink создает файл и приемник в нем
func CreateWAVSink(path string, format Format) (*WAVSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания %s: %w", path, err)
	}
	sink, err := NewWAVSink(file, format)
	if err != nil {
		file.Close()
		return nil, err
	}
	return sink, nil
}

// PlayFrame дописывает кадр в блок data
func (s *WAVSink) PlayFrame(frame []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return os.ErrClosed
	}
	n, err := s.writer.Write(frame)
	s.dataSize += uint32(n)
	return err
}

// Close исправляет размеры в заголовке и закрывает файл
func (s *WAVSink) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if _, err := s.writer.Seek(0, io.SeekStart); err != nil {
		errs = append(errs, fmt.Errorf("ошибка перемотки WAV файла: %w", err))
	} else if err := binary.Write(s.writer, binary.LittleEndian, newWAVHeader(s.format, s.dataSize)); err != nil {
		errs = append(errs, fmt.Errorf("ошибка обновления WAV заголовка: %w", err))
	}

	if closer, ok := s.writer.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DataSize количество записанных байт аудио
func (s *WAVSink) DataSize() uint32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.dataSize
}
