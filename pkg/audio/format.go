// Package audio содержит параметры аудио потока, источники захвата и
// приемники воспроизведения для голосового транспорта.
//
// Все источники выдают кадры линейного PCM (signed, little-endian) фиксированного
// размера Format.FrameSize(). Реальные звуковые устройства подключаются через
// стандартный ввод/вывод или файлы (например, arecord/aplay).
package audio

import (
	"fmt"
	"time"
)

// Format описывает параметры несжатого аудио потока
type Format struct {
	SampleRate      int // Частота дискретизации, Гц
	SamplesPerFrame int // Сэмплов в одном кадре (на канал)
	Channels        int // Количество каналов
	BytesPerSample  int // Байт на сэмпл одного канала
}

// DefaultFormat возвращает формат по умолчанию: 8 кГц, моно, 16 бит, кадр 20 мс
func DefaultFormat() Format {
	return Format{
		SampleRate:      8000,
		SamplesPerFrame: 160,
		Channels:        1,
		BytesPerSample:  2,
	}
}

// FrameSize размер кадра в байтах
func (f Format) FrameSize() int {
	return f.SamplesPerFrame * f.BytesPerSample * f.Channels
}

// FrameDuration длительность одного кадра
func (f Format) FrameDuration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.SamplesPerFrame) * time.Second / time.Duration(f.SampleRate)
}

// Silence возвращает кадр тишины
func (f Format) Silence() []byte {
	return make([]byte, f.FrameSize())
}

// Validate проверяет корректность формата
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("частота дискретизации должна быть положительной: %d", f.SampleRate)
	}
	if f.SamplesPerFrame <= 0 {
		return fmt.Errorf("количество сэмплов в кадре должно быть положительным: %d", f.SamplesPerFrame)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("количество каналов должно быть положительным: %d", f.Channels)
	}
	if f.BytesPerSample != 1 && f.BytesPerSample != 2 && f.BytesPerSample != 4 {
		return fmt.Errorf("неподдерживаемый размер сэмпла: %d байт", f.BytesPerSample)
	}
	if f.FrameDuration() <= 0 {
		return fmt.Errorf("длительность кадра меньше 1 нс")
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%d Гц, %d кан., %d бит, %d сэмплов/кадр", f.SampleRate, f.Channels, f.BytesPerSample*8, f.SamplesPerFrame)
}
