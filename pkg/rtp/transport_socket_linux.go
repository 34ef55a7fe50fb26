//go:build linux

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

// setSockOptReusePort включает SO_REUSEPORT (Linux)
func setSockOptReusePort(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// setSockOptBindToDevice привязывает сокет к сетевому интерфейсу (только Linux)
func setSockOptBindToDevice(fd int, device string) error {
	return unix.SetsockoptString(fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, device)
}

// setSockOptVoiceOptimizations повышает приоритет сокета.
// В контейнерах без CAP_NET_ADMIN вызов может не пройти, это не критично.
func setSockOptVoiceOptimizations(fd int) {
	// 6 - приоритет интерактивного аудио
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PRIORITY, 6)
}

// setSockOptDSCP устанавливает DSCP маркировку для QoS (Linux)
func setSockOptDSCP(fd, dscp int) error {
	// DSCP находится в старших 6 битах TOS
	tos := dscp << 2

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, tos); err != nil {
		// Сокет может быть только IPv6
		return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
	return nil
}
