package media_sdp

import (
	"net"
	"strconv"
	"strings"
)

// ParseMediaAddress формирует host:port из строки connection ("IN IP4 192.168.1.100" или просто IP)
func ParseMediaAddress(connection string, mediaPort int) (string, error) {
	if connection == "" {
		return "", NewSDPError(ErrorCodeSDPParsing, "connection информация отсутствует")
	}
	if mediaPort <= 0 || mediaPort > 65535 {
		return "", NewSDPError(ErrorCodeSDPParsing, "порт вне диапазона: %d", mediaPort)
	}

	parts := strings.Fields(connection)
	var ip string

	if len(parts) >= 3 && parts[0] == "IN" && (parts[1] == "IP4" || parts[1] == "IP6") {
		ip = parts[2]
	} else if len(parts) == 1 {
		ip = parts[0]
	} else {
		return "", NewSDPError(ErrorCodeSDPParsing,
			"некорректный формат connection: %s", connection)
	}

	// Адрес multicast может содержать TTL: 224.2.1.1/127
	if i := strings.IndexByte(ip, '/'); i >= 0 {
		ip = ip[:i]
	}

	if net.ParseIP(ip) == nil {
		return "", NewSDPError(ErrorCodeSDPParsing,
			"некорректный IP адрес: %s", ip)
	}

	// JoinHostPort сам добавит скобки для IPv6
	return net.JoinHostPort(ip, strconv.Itoa(mediaPort)), nil
}

// AdvertisedAddress выбирает адрес для описания локального потока:
// при привязке к 0.0.0.0 или :: берется адрес интерфейса, через который
// идет трафик к удаленному узлу
func AdvertisedAddress(localHost, remoteHost string) string {
	ip := net.ParseIP(localHost)
	if ip != nil && !ip.IsUnspecified() {
		return localHost
	}

	if remoteHost != "" {
		// UDP "соединение" не отправляет пакетов, только выбирает маршрут
		conn, err := net.Dial("udp", net.JoinHostPort(remoteHost, "9"))
		if err == nil {
			defer conn.Close()
			if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
				return addr.IP.String()
			}
		}
	}
	return "127.0.0.1"
}
