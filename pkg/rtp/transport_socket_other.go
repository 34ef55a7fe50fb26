//go:build !linux && !darwin

package rtp

// На остальных платформах сокет используется с настройками ОС по умолчанию

func setSockOptBuffers(fd, bufferSize int) error {
	return nil
}

func setSockOptReusePort(fd int) error {
	return nil
}

func setSockOptBindToDevice(fd int, device string) error {
	return nil
}

func setSockOptVoiceOptimizations(fd int) {}

func setSockOptDSCP(fd, dscp int) error {
	return nil
}
