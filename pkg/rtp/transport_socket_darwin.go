//go:build darwin

package rtp

import (
	"golang.org/x/sys/unix"
)

// setSockOptBuffers устанавливает размеры буферов сокета
func setSockOptBuffers(fd, bufferSize int) error {
	recvBufSize, sendBufSize := socketBufferSizes(bufferSize)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, recvBufSize); err != nil {
		return err
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, sendBufSize)
}

// setSockOptReusePort на macOS SO_REUSEADDR стабильнее, SO_REUSEPORT включаем если доступен
func setSockOptReusePort(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	return nil
}

// setSockOptBindToDevice на macOS нет аналога SO_BINDTODEVICE.
// Для привязки к интерфейсу используется его IP адрес в LocalAddr.
func setSockOptBindToDevice(fd int, device string) error {
	return nil
}

// setSockOptVoiceOptimizations отключает SIGPIPE на сокете
func setSockOptVoiceOptimizations(fd int) {
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_NOSIGPIPE, 1)
}

// setSockOptDSCP устанавливает DSCP маркировку для QoS (macOS)
func setSockOptDSCP(fd, dscp int) error {
	tos := dscp << 2
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, tos); err != nil {
		return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
	}
	return nil
}
