package media

import (
	"fmt"
	"strings"
	"sync"

	"github.com/arzzra/voicechat/pkg/rtp"
	"github.com/huandu/skiplist"
	"github.com/samber/lo"
)

// FrameKind тип кадра, выданного Pull
type FrameKind int

const (
	FrameEmpty   FrameKind = iota // Нечего воспроизводить (буферизация или недогрузка)
	FrameAudio                    // Принятый кадр
	FrameSilence                  // Маскировка потерянного кадра
)

func (k FrameKind) String() string {
	switch k {
	case FrameEmpty:
		return "empty"
	case FrameAudio:
		return "audio"
	case FrameSilence:
		return "silence"
	default:
		return "unknown"
	}
}

// Frame результат Pull
type Frame struct {
	Kind           FrameKind
	SequenceNumber uint16
	Timestamp      uint32
	Payload        []byte
}

// OverflowPolicy поведение при превышении емкости буфера
type OverflowPolicy int

const (
	// OverflowAdvance сдвигает окно вперед, отбрасывая самые старые кадры
	OverflowAdvance OverflowPolicy = iota
	// OverflowDropNewest отклоняет пришедший пакет
	OverflowDropNewest
)

func (p OverflowPolicy) String() string {
	if p == OverflowDropNewest {
		return "drop_newest"
	}
	return "advance"
}

// ParseOverflowPolicy разбирает политику из конфигурации
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "advance":
		return OverflowAdvance, nil
	case "drop_newest":
		return OverflowDropNewest, nil
	default:
		return OverflowAdvance, fmt.Errorf("неизвестная политика переполнения: %q", s)
	}
}

// ConcealmentMode содержимое кадра маскировки потери
type ConcealmentMode int

const (
	ConcealSilence    ConcealmentMode = iota // Нули
	ConcealRepeatLast                        // Повтор последнего воспроизведенного кадра
)

func (m ConcealmentMode) String() string {
	if m == ConcealRepeatLast {
		return "repeat"
	}
	return "silence"
}

// ParseConcealmentMode разбирает режим маскировки из конфигурации
func ParseConcealmentMode(s string) (ConcealmentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "silence":
		return ConcealSilence, nil
	case "repeat", "repeat_last":
		return ConcealRepeatLast, nil
	default:
		return ConcealSilence, fmt.Errorf("неизвестный режим маскировки: %q", s)
	}
}

// BufferEventType тип события jitter buffer
type BufferEventType int

const (
	EventLate      BufferEventType = iota // Пакет пришел после воспроизведения своего слота
	EventDuplicate                        // Повторный пакет
	EventLoss                             // Слот замаскирован
	EventOverflow                         // Кадры отброшены из-за переполнения
)

func (t BufferEventType) String() string {
	switch t {
	case EventLate:
		return "late"
	case EventDuplicate:
		return "duplicate"
	case EventLoss:
		return "loss"
	case EventOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// BufferEvent событие jitter buffer
type BufferEvent struct {
	Type           BufferEventType
	SequenceNumber uint16 // Номер пакета или первого отброшенного слота
	Count          int    // Количество затронутых слотов
	SessionID      uint32
}

// InsertResult результат Insert
type InsertResult int

const (
	InsertStored    InsertResult = iota // Пакет сохранен
	InsertDuplicate                     // Пакет уже был, перезаписан
	InsertLate                          // Пакет опоздал и отброшен
	InsertRejected                      // Пакет отклонен политикой переполнения
)

func (r InsertResult) String() string {
	switch r {
	case InsertStored:
		return "stored"
	case InsertDuplicate:
		return "duplicate"
	case InsertLate:
		return "late"
	case InsertRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// JitterBufferConfig параметры jitter buffer. Все размеры в кадрах.
type JitterBufferConfig struct {
	FrameSize       int    // Размер payload в байтах
	SamplesPerFrame uint32 // Шаг timestamp

	PlayoutDelay  int // Кадров до начала воспроизведения
	Capacity      int // Максимальное окно от nextExpected
	LossTolerance int // Сколько Pull ждать пропущенный пакет перед маскировкой

	OverflowPolicy OverflowPolicy
	Concealment    ConcealmentMode
	Listener       JitterListener
}

// DefaultJitterBufferConfig конфигурация для 20 мс кадров 8 кГц/16 бит
func DefaultJitterBufferConfig() JitterBufferConfig {
	return JitterBufferConfig{
		FrameSize:       320,
		SamplesPerFrame: 160,
		PlayoutDelay:    3,
		Capacity:        50,
		LossTolerance:   2,
	}
}

// Validate проверяет корректность конфигурации
func (c JitterBufferConfig) Validate() error {
	switch {
	case c.FrameSize <= 0:
		return fmt.Errorf("размер кадра должен быть положительным")
	case c.SamplesPerFrame == 0:
		return fmt.Errorf("количество сэмплов в кадре должно быть положительным")
	case c.Capacity <= 0:
		return fmt.Errorf("емкость буфера должна быть положительной")
	case c.Capacity > rtp.MaxSeqWindow:
		return fmt.Errorf("емкость буфера %d больше окна номеров %d", c.Capacity, rtp.MaxSeqWindow)
	case c.PlayoutDelay < 0 || c.PlayoutDelay > c.Capacity:
		return fmt.Errorf("задержка воспроизведения %d вне диапазона 0-%d", c.PlayoutDelay, c.Capacity)
	case c.LossTolerance < 0:
		return fmt.Errorf("допуск потерь не может быть отрицательным")
	}
	return nil
}

// JitterBufferStatistics статистика jitter buffer
type JitterBufferStatistics struct {
	Received   uint64 // Сохранено новых пакетов
	Played     uint64 // Выдано принятых кадров
	Concealed  uint64 // Выдано кадров маскировки
	Late       uint64 // Отброшено опоздавших
	Duplicates uint64 // Повторных пакетов
	Overflow   uint64 // Слотов, потерянных из-за переполнения
	Underruns  uint64 // Pull при пустом буфере после старта

	Depth        int    // Пакетов в буфере
	NextExpected uint16 // Ожидаемый номер
	Started      bool
	SessionID    uint32
}

// JitterBuffer восстанавливает порядок пакетов и выдает по одному кадру на Pull.
//
// Слоты хранятся в skiplist по расширенному (int64) номеру последовательности,
// который вычисляется относительно nextExpected через знаковую 16-битную
// разницу, поэтому переход 65535→0 не нарушает порядок.
// Все состояние защищено одним мьютексом; слушатель вызывается после его освобождения.
type JitterBuffer struct {
	config JitterBufferConfig

	mutex    sync.Mutex
	slots    *skiplist.SkipList
	session  uint32
	anchored bool
	started  bool
	next     int64 // Расширенный nextExpected
	maxExt   int64 // Максимальный расширенный номер среди принятых

	pullsSinceFirst int
	missingPulls    int
	lastPayload     []byte

	stats JitterBufferStatistics
}

// NewJitterBuffer создает jitter buffer
func NewJitterBuffer(config JitterBufferConfig) (*JitterBuffer, error) {
	if err := config.Validate(); err != nil {
		return nil, WrapMediaError(ErrorCodeJitterBufferConfigInvalid, "", "неверная конфигурация jitter buffer", err)
	}

	return &JitterBuffer{
		config: config,
		slots:  skiplist.New(skiplist.Int64),
	}, nil
}

// Bind начинает прием нового потока: буферизованные кадры прошлой сессии
// отбрасываются, следующий пакет задает точку отсчета
func (jb *JitterBuffer) Bind(session *Session) {
	jb.mutex.Lock()
	defer jb.mutex.Unlock()

	jb.resetLocked()
	if session != nil {
		jb.session = session.ID
	}
}

// Reset сбрасывает состояние потока, сохраняя счетчики
func (jb *JitterBuffer) Reset() {
	jb.mutex.Lock()
	defer jb.mutex.Unlock()
	jb.resetLocked()
}

func (jb *JitterBuffer) resetLocked() {
	jb.slots = skiplist.New(skiplist.Int64)
	jb.session = 0
	jb.anchored = false
	jb.started = false
	jb.next = 0
	jb.maxExt = 0
	jb.pullsSinceFirst = 0
	jb.missingPulls = 0
	jb.lastPayload = nil
}

// Insert помещает пакет в буфер. Никогда не блокируется на ввод-вывод
// и не возвращает ошибок: опоздания и переполнения сообщаются событиями.
func (jb *JitterBuffer) Insert(packet *rtp.Packet) InsertResult {
	jb.mutex.Lock()
	result, events := jb.insertLocked(packet)
	jb.mutex.Unlock()

	jb.notify(events)
	return result
}

func (jb *JitterBuffer) insertLocked(packet *rtp.Packet) (InsertResult, []BufferEvent) {
	var events []BufferEvent

	if !jb.anchored {
		jb.anchored = true
		jb.next = int64(packet.SequenceNumber)
		jb.maxExt = jb.next
	}

	delta := rtp.SeqDelta(packet.SequenceNumber, uint16(jb.next))
	ext := jb.next + int64(delta)

	if delta < 0 {
		// До старта воспроизведения перестановка в начале потока сдвигает
		// точку отсчета назад, если окно не превышает емкость
		if jb.started || jb.maxExt-ext+1 > int64(jb.config.Capacity) {
			jb.stats.Late++
			events = append(events, jb.event(EventLate, packet.SequenceNumber, 1))
			return InsertLate, events
		}
		jb.next = ext
	}

	if ext-jb.next+1 > int64(jb.config.Capacity) {
		if jb.config.OverflowPolicy == OverflowDropNewest {
			jb.stats.Overflow++
			events = append(events, jb.event(EventOverflow, packet.SequenceNumber, 1))
			return InsertRejected, events
		}

		newNext := ext - int64(jb.config.Capacity) + 1
		skipped := int(newNext - jb.next)
		events = append(events, jb.event(EventOverflow, uint16(jb.next), skipped))
		jb.stats.Overflow += uint64(skipped)
		removeLessThan(jb.slots, newNext)
		jb.next = newNext
		jb.missingPulls = 0
	}

	payload := make([]byte, len(packet.Payload))
	copy(payload, packet.Payload)
	stored := &rtp.Packet{
		SessionID:      packet.SessionID,
		SequenceNumber: packet.SequenceNumber,
		Timestamp:      packet.Timestamp,
		Payload:        payload,
	}

	result := InsertStored
	if jb.slots.Get(ext) != nil {
		result = InsertDuplicate
		jb.stats.Duplicates++
		events = append(events, jb.event(EventDuplicate, packet.SequenceNumber, 1))
	} else {
		jb.stats.Received++
	}
	jb.slots.Set(ext, stored)
	jb.maxExt = lo.Max([]int64{jb.maxExt, ext})

	return result, events
}

// Pull выдает следующий кадр воспроизведения. Вызывается раз в период кадра.
func (jb *JitterBuffer) Pull() Frame {
	jb.mutex.Lock()
	frame, events := jb.pullLocked()
	jb.mutex.Unlock()

	jb.notify(events)
	return frame
}

func (jb *JitterBuffer) pullLocked() (Frame, []BufferEvent) {
	if !jb.anchored {
		return Frame{Kind: FrameEmpty}, nil
	}

	if !jb.started {
		jb.pullsSinceFirst++
		span := int(jb.maxExt - jb.next + 1)
		if span < jb.config.PlayoutDelay && jb.pullsSinceFirst < jb.config.PlayoutDelay {
			return Frame{Kind: FrameEmpty, SequenceNumber: uint16(jb.next)}, nil
		}
		jb.started = true
	}

	front := jb.slots.Front()
	if front == nil {
		// Недогрузка: пропускать нечего, ждем следующий пакет
		jb.missingPulls = 0
		jb.stats.Underruns++
		return Frame{Kind: FrameEmpty, SequenceNumber: uint16(jb.next)}, nil
	}

	key := front.Key().(int64)
	packet := front.Value.(*rtp.Packet)

	if key == jb.next {
		jb.slots.RemoveFront()
		jb.next++
		jb.missingPulls = 0
		jb.lastPayload = packet.Payload
		jb.stats.Played++
		return Frame{
			Kind:           FrameAudio,
			SequenceNumber: packet.SequenceNumber,
			Timestamp:      packet.Timestamp,
			Payload:        packet.Payload,
		}, nil
	}

	// Пропуск: более поздний пакет уже в буфере
	jb.missingPulls++
	if jb.missingPulls <= jb.config.LossTolerance {
		return Frame{Kind: FrameEmpty, SequenceNumber: uint16(jb.next)}, nil
	}

	seq := uint16(jb.next)
	frame := Frame{
		Kind:           FrameSilence,
		SequenceNumber: seq,
		Timestamp:      packet.Timestamp - uint32(key-jb.next)*jb.config.SamplesPerFrame,
		Payload:        jb.concealmentPayload(),
	}
	jb.next++
	jb.missingPulls = 0
	jb.stats.Concealed++

	return frame, []BufferEvent{jb.event(EventLoss, seq, 1)}
}

func (jb *JitterBuffer) concealmentPayload() []byte {
	payload := make([]byte, jb.config.FrameSize)
	if jb.config.Concealment == ConcealRepeatLast && jb.lastPayload != nil {
		copy(payload, jb.lastPayload)
	}
	return payload
}

func (jb *JitterBuffer) event(t BufferEventType, seq uint16, count int) BufferEvent {
	return BufferEvent{Type: t, SequenceNumber: seq, Count: count, SessionID: jb.session}
}

func (jb *JitterBuffer) notify(events []BufferEvent) {
	if jb.config.Listener == nil {
		return
	}
	for _, event := range events {
		jb.config.Listener.OnBufferEvent(event)
	}
}

// Len количество пакетов в буфере
func (jb *JitterBuffer) Len() int {
	jb.mutex.Lock()
	defer jb.mutex.Unlock()
	return jb.slots.Len()
}

// NextExpected номер, которого ждет воспроизведение
func (jb *JitterBuffer) NextExpected() uint16 {
	jb.mutex.Lock()
	defer jb.mutex.Unlock()
	return uint16(jb.next)
}

// Started сообщает, началось ли воспроизведение
func (jb *JitterBuffer) Started() bool {
	jb.mutex.Lock()
	defer jb.mutex.Unlock()
	return jb.started
}

// Stats возвращает копию статистики
func (jb *JitterBuffer) Stats() JitterBufferStatistics {
	jb.mutex.Lock()
	defer jb.mutex.Unlock()

	stats := jb.stats
	stats.Depth = jb.slots.Len()
	stats.NextExpected = uint16(jb.next)
	stats.Started = jb.started
	stats.SessionID = jb.session
	return stats
}

// removeLessThan удаляет слоты с ключом меньше key
func removeLessThan(list *skiplist.SkipList, key int64) {
	for {
		front := list.Front()
		if front == nil || front.Key().(int64) >= key {
			return
		}
		list.RemoveFront()
	}
}
