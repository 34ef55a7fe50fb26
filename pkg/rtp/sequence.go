package rtp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// SequenceClockConfig параметры генератора номеров и временных меток
type SequenceClockConfig struct {
	SamplesPerFrame uint32 // Приращение timestamp на каждый кадр

	// SessionID идентификатор потока, 0 - сгенерировать случайно
	SessionID uint32

	InitialSequence  uint16
	InitialTimestamp uint32

	// RandomizeSequence игнорирует InitialSequence и выбирает случайное
	// начальное значение (RFC 3550, раздел 5.1)
	RandomizeSequence bool
}

// SequenceClock выдает пары (seq, ts) для исходящих пакетов.
// Принадлежит одному отправителю, синхронизация не требуется.
type SequenceClock struct {
	sessionID       uint32
	samplesPerFrame uint32
	seq             uint16
	ts              uint32
}

// NewSequenceClock создает генератор
func NewSequenceClock(config SequenceClockConfig) (*SequenceClock, error) {
	if config.SamplesPerFrame == 0 {
		return nil, fmt.Errorf("количество сэмплов в кадре должно быть положительным")
	}

	sessionID := config.SessionID
	if sessionID == 0 {
		var err error
		sessionID, err = generateSessionID()
		if err != nil {
			return nil, fmt.Errorf("ошибка генерации идентификатора сессии: %w", err)
		}
	}

	seq := config.InitialSequence
	if config.RandomizeSequence {
		if err := binary.Read(rand.Reader, binary.BigEndian, &seq); err != nil {
			return nil, fmt.Errorf("ошибка генерации начального номера: %w", err)
		}
	}

	return &SequenceClock{
		sessionID:       sessionID,
		samplesPerFrame: config.SamplesPerFrame,
		seq:             seq,
		ts:              config.InitialTimestamp,
	}, nil
}

// Next возвращает текущую пару и продвигает счетчики.
// Переполнение обоих счетчиков - штатное поведение.
func (c *SequenceClock) Next() (uint16, uint32) {
	seq, ts := c.seq, c.ts
	c.seq++
	c.ts += c.samplesPerFrame
	return seq, ts
}

// SessionID возвращает идентификатор потока
func (c *SequenceClock) SessionID() uint32 {
	return c.sessionID
}

// SamplesPerFrame возвращает шаг timestamp
func (c *SequenceClock) SamplesPerFrame() uint32 {
	return c.samplesPerFrame
}

// MaxSeqWindow наибольшее окно номеров, в котором SeqDelta однозначна.
// Буфер большего размера принял бы пакет далеко впереди за опоздавший.
const MaxSeqWindow = 1<<15 - 1

// SeqDelta знаковая разница a-b по модулю 2^16.
// Номер, отстающий больше чем на половину диапазона, считается ушедшим вперед.
func SeqDelta(a, b uint16) int16 {
	return int16(a - b)
}

// IsSeqNewer проверяет, что a новее b с учетом переполнения
func IsSeqNewer(a, b uint16) bool {
	return SeqDelta(a, b) > 0
}

// generateSessionID генерирует случайный идентификатор потока (SSRC)
func generateSessionID() (uint32, error) {
	var sid uint32
	for sid == 0 {
		if err := binary.Read(rand.Reader, binary.BigEndian, &sid); err != nil {
			return 0, err
		}
	}
	return sid, nil
}
