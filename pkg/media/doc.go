// Package media реализует путь звука голосового узла: отправку кадров,
// прием датаграмм, восстановление порядка и тактирование воспроизведения.
//
// # Основные возможности
//
//   - Нумерация и отправка кадров фиксированного размера
//   - Привязка к одной сессии удаленного узла, отбрасывание чужих пакетов
//   - Jitter buffer с упорядочиванием по номеру с учетом переполнения 65535→0
//   - Маскировка потерь тишиной или повтором последнего кадра
//   - Оценка межпакетного джиттера по RFC 3550
//   - Ограничение частоты пакетов от одного источника
//
// # Архитектура
//
//	CaptureSource → Sender → Transport ~~~ Transport → Receiver → JitterBuffer → Playout → PlaybackSink
//
//   - Sender - захват кадра, SequenceClock, Codec, отправка
//   - Receiver - чтение транспорта, разбор, проверка сессии, вставка в буфер
//   - JitterBuffer - единственная точка синхронизации между приемом и воспроизведением
//   - Playout - раз в период кадра забирает один кадр и передает в приемник
//
// Sender, Receiver и Playout работают в отдельных горутинах. Источник, приемник
// и сокет никогда не вызываются под мьютексом jitter buffer.
//
// # Быстрый старт
//
//	buffer, err := media.NewJitterBuffer(media.DefaultJitterBufferConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	receiver, err := media.NewReceiver(media.ReceiverConfig{
//	    Transport:    transport,
//	    Codec:        codec,
//	    JitterBuffer: buffer,
//	    SampleRate:   8000,
//	})
//
//	playout, err := media.NewPlayout(media.PlayoutConfig{
//	    JitterBuffer:  buffer,
//	    Sink:          sink,
//	    FrameDuration: 20 * time.Millisecond,
//	    FrameSize:     320,
//	    FillSilence:   true,
//	})
//
//	go receiver.Run(ctx)
//	go playout.Run(ctx)
//
// Сборка всех компонентов по конфигурации выполняется в пакете voice.
//
// # Jitter Buffer
//
// Воспроизведение начинается после накопления PlayoutDelay кадров. Пропущенный
// номер ожидается LossTolerance вызовов Pull, затем выдается кадр маскировки
// и событие EventLoss. Опоздавший пакет после маскировки отбрасывается.
// При переполнении окна Capacity политика advance сдвигает окно вперед,
// drop_newest отбрасывает новый пакет.
//
// # Обработка ошибок
//
// Пакет использует типизированные ошибки:
//
//	if err != nil {
//	    var mediaErr *media.MediaError
//	    if media.AsMediaError(err, &mediaErr) {
//	        fmt.Printf("Код ошибки: %d\n", mediaErr.Code)
//	    }
//	    if media.IsAudioDeviceError(err) {
//	        // Устройство недоступно, узел нужно остановить
//	    }
//	}
//
// Insert и Pull не возвращают ошибок: потери, опоздания и переполнения
// сообщаются через JitterListener и статистику.
//
// # Ссылки
//
//   - RFC 3550 - RTP: A Transport Protocol for Real-Time Applications
//   - RFC 3551 - RTP Profile for Audio and Video Conferences
package media
