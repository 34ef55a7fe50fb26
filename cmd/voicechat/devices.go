package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arzzra/voicechat/pkg/audio"
	"github.com/arzzra/voicechat/pkg/media"
)

// openSource открывает источник захвата:
//   - tone        синусоида audio.tone_frequency в темпе реального времени
//   - stdin, -    сырой PCM со стандартного ввода (например, arecord -t raw)
//   - *.wav       WAV файл в темпе реального времени
//   - иначе       файл сырого PCM в темпе реального времени
func openSource(name string, format audio.Format, toneFrequency int) (media.CaptureSource, error) {
	switch {
	case name == "tone":
		tone, err := audio.NewToneSource(format, audio.ToneConfig{Frequency: float64(toneFrequency)})
		if err != nil {
			return nil, err
		}
		return audio.NewPacedSource(tone, format), nil

	case name == "stdin" || name == "-":
		// Устройство за стандартным вводом само задает темп
		return audio.NewReaderSource(os.Stdin, format), nil

	case strings.EqualFold(filepath.Ext(name), ".wav"):
		source, err := audio.OpenWAVSource(name, format)
		if err != nil {
			return nil, err
		}
		return audio.NewPacedSource(source, format), nil

	default:
		file, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("ошибка открытия источника %s: %w", name, err)
		}
		return audio.NewPacedSource(audio.NewReaderSource(file, format), format), nil
	}
}

// openSink открывает приемник воспроизведения:
//   - null        отбрасывает кадры
//   - stdout, -   сырой PCM на стандартный вывод (например, в aplay -t raw)
//   - *.wav       WAV файл
//   - иначе       файл сырого PCM
func openSink(name string, format audio.Format) (media.PlaybackSink, error) {
	switch {
	case name == "null":
		return audio.NewNullSink(), nil

	case name == "stdout" || name == "-":
		return audio.NewWriterSink(os.Stdout), nil

	case strings.EqualFold(filepath.Ext(name), ".wav"):
		return audio.CreateWAVSink(name, format)

	default:
		file, err := os.Create(name)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания приемника %s: %w", name, err)
		}
		return audio.NewWriterSink(file), nil
	}
}
