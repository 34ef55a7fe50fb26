package media

import (
	"errors"
	"fmt"
)

// MediaErrorCode определяет типизированные коды ошибок для медиа слоя.
// Позволяет классифицировать ошибки по категориям и обрабатывать их соответствующим образом.
type MediaErrorCode int

const (
	// Ошибки жизненного цикла
	ErrorCodeSessionNotStarted MediaErrorCode = iota + 1000
	ErrorCodeSessionAlreadyStarted
	ErrorCodeSessionClosed
	ErrorCodeSessionInvalidConfig

	// Ошибки аудио устройств
	ErrorCodeAudioCaptureFailed
	ErrorCodeAudioPlaybackFailed

	// Ошибки транспорта и входящих пакетов
	ErrorCodeRTPSendFailed
	ErrorCodeRTPReceiveFailed
	ErrorCodeRTPDecodeFailed
	ErrorCodeRTPSessionMismatch
	ErrorCodeRTPRateLimited

	// Ошибки Jitter Buffer
	ErrorCodeJitterBufferConfigInvalid
)

// String возвращает строковое представление кода ошибки
func (code MediaErrorCode) String() string {
	switch code {
	case ErrorCodeSessionNotStarted:
		return "SessionNotStarted"
	case ErrorCodeSessionAlreadyStarted:
		return "SessionAlreadyStarted"
	case ErrorCodeSessionClosed:
		return "SessionClosed"
	case ErrorCodeSessionInvalidConfig:
		return "SessionInvalidConfig"
	case ErrorCodeAudioCaptureFailed:
		return "AudioCaptureFailed"
	case ErrorCodeAudioPlaybackFailed:
		return "AudioPlaybackFailed"
	case ErrorCodeRTPSendFailed:
		return "RTPSendFailed"
	case ErrorCodeRTPReceiveFailed:
		return "RTPReceiveFailed"
	case ErrorCodeRTPDecodeFailed:
		return "RTPDecodeFailed"
	case ErrorCodeRTPSessionMismatch:
		return "RTPSessionMismatch"
	case ErrorCodeRTPRateLimited:
		return "RTPRateLimited"
	case ErrorCodeJitterBufferConfigInvalid:
		return "JitterBufferConfigInvalid"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// MediaError базовая структура ошибок медиа слоя.
// Содержит типизированный код, идентификатор сессии для сопоставления
// с логами, контекст и обернутую ошибку.
type MediaError struct {
	Code      MediaErrorCode
	Message   string
	SessionID string
	Context   map[string]interface{}
	Wrapped   error
}

// Error реализует интерфейс error, возвращая форматированное сообщение об ошибке.
func (e *MediaError) Error() string {
	msg := fmt.Sprintf("[медиа:%d] %s", e.Code, e.Message)
	if e.SessionID != "" {
		msg = fmt.Sprintf("[медиа:%d] сессия %s: %s", e.Code, e.SessionID, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap возвращает обернутую ошибку, поддерживая errors.Unwrap.
func (e *MediaError) Unwrap() error {
	return e.Wrapped
}

// Is поддерживает errors.Is, позволяя сравнивать ошибки по коду.
func (e *MediaError) Is(target error) bool {
	if t, ok := target.(*MediaError); ok {
		return e.Code == t.Code
	}
	return false
}

// GetContext возвращает значение из контекста ошибки по ключу.
func (e *MediaError) GetContext(key string) interface{} {
	if e.Context == nil {
		return nil
	}
	return e.Context[key]
}

// NewMediaError создает ошибку с кодом
func NewMediaError(code MediaErrorCode, message string) *MediaError {
	return &MediaError{Code: code, Message: message}
}

// WrapMediaError оборачивает существующую ошибку в MediaError
func WrapMediaError(code MediaErrorCode, sessionID, message string, err error) *MediaError {
	return &MediaError{
		Code:      code,
		Message:   message,
		SessionID: sessionID,
		Wrapped:   err,
	}
}

// AudioDeviceError сбой захвата или воспроизведения.
// Фатальна для активности и приводит к остановке пира.
type AudioDeviceError struct {
	*MediaError
	Operation string // "capture" или "playback"
}

// NewAudioDeviceError создает ошибку аудио устройства
func NewAudioDeviceError(operation string, err error) *AudioDeviceError {
	code := ErrorCodeAudioCaptureFailed
	if operation == "playback" {
		code = ErrorCodeAudioPlaybackFailed
	}
	return &AudioDeviceError{
		MediaError: &MediaError{
			Code:    code,
			Message: fmt.Sprintf("ошибка аудио устройства (%s)", operation),
			Context: map[string]interface{}{
				"operation": operation,
			},
			Wrapped: err,
		},
		Operation: operation,
	}
}

// Sentinel ошибки для сравнения через errors.Is
var (
	ErrNotStarted      = NewMediaError(ErrorCodeSessionNotStarted, "не запущено")
	ErrAlreadyStarted  = NewMediaError(ErrorCodeSessionAlreadyStarted, "уже запущено")
	ErrSessionClosed   = NewMediaError(ErrorCodeSessionClosed, "закрыто")
	ErrRateLimited     = NewMediaError(ErrorCodeRTPRateLimited, "превышен лимит пакетов от источника")
	ErrSessionMismatch = NewMediaError(ErrorCodeRTPSessionMismatch, "пакет чужой сессии")
)

// HasErrorCode проверяет, содержит ли цепочка ошибок указанный код
func HasErrorCode(err error, code MediaErrorCode) bool {
	var mediaErr *MediaError
	if AsMediaError(err, &mediaErr) {
		return mediaErr.Code == code
	}
	return false
}

// AsMediaError пытается привести ошибку к MediaError
func AsMediaError(err error, target **MediaError) bool {
	if err == nil {
		return false
	}

	var audioErr *AudioDeviceError
	if errors.As(err, &audioErr) {
		*target = audioErr.MediaError
		return true
	}

	return errors.As(err, target)
}

// IsAudioDeviceError проверяет, что ошибка вызвана аудио устройством
func IsAudioDeviceError(err error) bool {
	var audioErr *AudioDeviceError
	return errors.As(err, &audioErr)
}

// IsRecoverableError определяет, можно ли продолжить работу после ошибки
func IsRecoverableError(err error) bool {
	var mediaErr *MediaError
	if !AsMediaError(err, &mediaErr) {
		return false
	}

	switch mediaErr.Code {
	case ErrorCodeRTPSendFailed, ErrorCodeRTPReceiveFailed, ErrorCodeRTPDecodeFailed,
		ErrorCodeRTPSessionMismatch, ErrorCodeRTPRateLimited:
		return true
	}
	return false
}
