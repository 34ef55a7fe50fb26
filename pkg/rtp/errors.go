package rtp

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Базовые ошибки декодирования, пригодные для errors.Is
var (
	ErrTruncated = errors.New("пакет обрезан")
	ErrMalformed = errors.New("пакет поврежден")
)

// EncodingError возвращается кодеком при попытке упаковать кадр неверного размера.
// В нормальной работе не возникает: Sender всегда дополняет кадр до FrameSize.
type EncodingError struct {
	Expected int
	Actual   int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("неверный размер payload: %d байт (ожидается %d)", e.Actual, e.Expected)
}

// DecodeErrorKind классифицирует ошибку разбора входящего датаграммы
type DecodeErrorKind int

const (
	DecodeTruncated DecodeErrorKind = iota // Данных меньше, чем заявлено заголовком
	DecodeMalformed                        // Заголовок или длина противоречат формату
)

func (k DecodeErrorKind) String() string {
	switch k {
	case DecodeTruncated:
		return "truncated"
	case DecodeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// DecodeError описывает отброшенный входящий пакет
type DecodeError struct {
	Kind   DecodeErrorKind
	Reason string
	Size   int // Размер датаграммы в байтах
	Err    error
}

func newDecodeError(kind DecodeErrorKind, size int, format string, args ...interface{}) *DecodeError {
	return &DecodeError{
		Kind:   kind,
		Reason: fmt.Sprintf(format, args...),
		Size:   size,
	}
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ошибка декодирования (%s, %d байт): %s: %v", e.Kind, e.Size, e.Reason, e.Err)
	}
	return fmt.Sprintf("ошибка декодирования (%s, %d байт): %s", e.Kind, e.Size, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is позволяет сравнивать с ErrTruncated и ErrMalformed
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrTruncated:
		return e.Kind == DecodeTruncated
	case ErrMalformed:
		return e.Kind == DecodeMalformed
	}
	return false
}

// NetworkErrorType определяет типы сетевых ошибок для улучшенной обработки
type NetworkErrorType int

const (
	ErrorTypeTemporary  NetworkErrorType = iota // Временная ошибка
	ErrorTypePermanent                          // Постоянная ошибка
	ErrorTypeTimeout                            // Таймаут (нормальное поведение при чтении)
	ErrorTypeConnection                         // Проблемы соединения (ICMP unreachable и т.п.)
	ErrorTypeClosed                             // Транспорт закрыт
	ErrorTypeUnknown                            // Неклассифицированная ошибка
)

func (t NetworkErrorType) String() string {
	switch t {
	case ErrorTypeTemporary:
		return "temporary"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeConnection:
		return "connection"
	case ErrorTypeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// NetworkError обертка для сетевых ошибок с классификацией.
// Ни одна из них не прерывает поток: отправитель и получатель логируют и продолжают.
type NetworkError struct {
	Type      NetworkErrorType
	Operation string
	Err       error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v (type: %s)", e.Operation, e.Err, e.Type)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout сообщает, что ошибка вызвана истечением дедлайна чтения
func (e *NetworkError) Timeout() bool {
	return e.Type == ErrorTypeTimeout
}

// Closed сообщает, что транспорт был закрыт
func (e *NetworkError) Closed() bool {
	return e.Type == ErrorTypeClosed
}

// IsTimeout проверяет, является ли err таймаутом транспорта
func IsTimeout(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsClosed проверяет, что err означает закрытый транспорт
func IsClosed(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.Closed()
}

// classifyNetworkError анализирует сетевую ошибку и возвращает классифицированную версию
func classifyNetworkError(operation string, err error) error {
	if err == nil {
		return nil
	}

	classified := &NetworkError{
		Operation: operation,
		Err:       err,
		Type:      ErrorTypeUnknown,
	}

	if errors.Is(err, net.ErrClosed) {
		classified.Type = ErrorTypeClosed
		return classified
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		classified.Type = ErrorTypeTimeout
		return classified
	}

	switch {
	case isTemporaryError(err):
		classified.Type = ErrorTypeTemporary
	case isConnectionError(err):
		classified.Type = ErrorTypeConnection
	case isPermanentError(err):
		classified.Type = ErrorTypePermanent
	}

	return classified
}

// isConnectionError проверяет является ли ошибка связанной с соединением
func isConnectionError(err error) bool {
	return containsAny(err.Error(), []string{
		"connection refused",
		"connection reset",
		"network is unreachable",
		"host is unreachable",
		"no route to host",
	})
}

// isPermanentError проверяет является ли ошибка постоянной
func isPermanentError(err error) bool {
	return containsAny(err.Error(), []string{
		"invalid argument",
		"address family not supported",
		"permission denied",
		"operation not supported",
	})
}

func containsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
