package media_sdp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arzzra/voicechat/pkg/rtp"
	"github.com/pion/sdp/v3"
)

// ParseRemote разбирает SDP удаленного узла
func ParseRemote(data []byte) (*RemoteDescription, error) {
	var description sdp.SessionDescription
	if err := description.Unmarshal(data); err != nil {
		return nil, WrapSDPError(ErrorCodeSDPParsing, err, "не удалось разобрать SDP")
	}
	return FromDescription(&description)
}

// FromDescription извлекает параметры первого аудио потока
func FromDescription(description *sdp.SessionDescription) (*RemoteDescription, error) {
	// Ищем аудио медиа описание
	var audioMedia *sdp.MediaDescription
	for _, media := range description.MediaDescriptions {
		if media.MediaName.Media == "audio" {
			audioMedia = media
			break
		}
	}
	if audioMedia == nil {
		return nil, NewSDPError(ErrorCodeSDPParsing, "аудио медиа описание не найдено в SDP")
	}
	if len(audioMedia.MediaName.Formats) == 0 {
		return nil, NewSDPError(ErrorCodeSDPParsing, "в медиа описании нет форматов")
	}

	remote := &RemoteDescription{
		Ptime:      20 * time.Millisecond,
		Direction:  rtp.DirectionSendRecv,
		WireFormat: rtp.WireFormatRTP,
	}

	address, err := extractConnectionInfo(description, audioMedia)
	if err != nil {
		return nil, err
	}
	remote.Address = address

	pt, err := strconv.Atoi(audioMedia.MediaName.Formats[0])
	if err != nil || pt < 0 || pt > 127 {
		return nil, NewSDPError(ErrorCodeSDPParsing, "некорректный payload type: %q", audioMedia.MediaName.Formats[0])
	}
	remote.PayloadType = uint8(pt)

	if err := parseRtpmap(audioMedia, remote); err != nil {
		return nil, err
	}
	if err := parseMediaDirection(audioMedia, remote); err != nil {
		return nil, err
	}
	parsePtime(audioMedia, remote)

	if value, ok := audioMedia.Attribute(WireFormatAttribute); ok {
		format, err := rtp.ParseWireFormat(value)
		if err != nil {
			return nil, WrapSDPError(ErrorCodeIncompatibleCodec, err, "неизвестный формат пакетов")
		}
		remote.WireFormat = format
	} else if strings.Join(audioMedia.MediaName.Protos, "/") == protoNative {
		remote.WireFormat = rtp.WireFormatNative
	}

	return remote, nil
}

// extractConnectionInfo извлекает адрес: сначала уровень медиа, затем сессии
func extractConnectionInfo(description *sdp.SessionDescription, mediaDesc *sdp.MediaDescription) (string, error) {
	var connectionInfo *sdp.ConnectionInformation
	if mediaDesc.ConnectionInformation != nil {
		connectionInfo = mediaDesc.ConnectionInformation
	} else if description.ConnectionInformation != nil {
		connectionInfo = description.ConnectionInformation
	} else {
		return "", NewSDPError(ErrorCodeSDPParsing, "информация о соединении не найдена в SDP")
	}
	if connectionInfo.Address == nil {
		return "", NewSDPError(ErrorCodeSDPParsing, "в информации о соединении нет адреса")
	}

	address, err := ParseMediaAddress(
		fmt.Sprintf("%s %s %s", connectionInfo.NetworkType, connectionInfo.AddressType, connectionInfo.Address.Address),
		mediaDesc.MediaName.Port.Value)
	if err != nil {
		return "", WrapSDPError(ErrorCodeSDPParsing, err, "не удалось разобрать адрес соединения")
	}
	return address, nil
}

// parseRtpmap разбирает rtpmap выбранного payload type: "<pt> L16/8000[/1]"
func parseRtpmap(mediaDesc *sdp.MediaDescription, remote *RemoteDescription) error {
	prefix := strconv.Itoa(int(remote.PayloadType)) + " "
	for _, attr := range mediaDesc.Attributes {
		if attr.Key != "rtpmap" || !strings.HasPrefix(attr.Value, prefix) {
			continue
		}

		parts := strings.Split(strings.TrimPrefix(attr.Value, prefix), "/")
		if len(parts) < 2 {
			return NewSDPError(ErrorCodeSDPParsing, "некорректный rtpmap: %q", attr.Value)
		}

		clockRate, err := strconv.Atoi(parts[1])
		if err != nil || clockRate <= 0 {
			return NewSDPError(ErrorCodeSDPParsing, "некорректная частота в rtpmap: %q", attr.Value)
		}

		channels := 1
		if len(parts) > 2 {
			channels, err = strconv.Atoi(parts[2])
			if err != nil || channels <= 0 {
				return NewSDPError(ErrorCodeSDPParsing, "некорректное число каналов в rtpmap: %q", attr.Value)
			}
		}

		remote.Encoding = strings.ToUpper(parts[0])
		remote.ClockRate = clockRate
		remote.Channels = channels

		if remote.Encoding != "L16" && remote.Encoding != "L8" {
			return NewSDPError(ErrorCodeIncompatibleCodec, "кодек %s не поддерживается, нужен L16 или L8", remote.Encoding)
		}
		return nil
	}

	return NewSDPError(ErrorCodeIncompatibleCodec, "rtpmap для payload type %d не найден", remote.PayloadType)
}

// parseMediaDirection разбирает направление, объявленное удаленным узлом
func parseMediaDirection(mediaDesc *sdp.MediaDescription, remote *RemoteDescription) error {
	for _, attr := range mediaDesc.Attributes {
		switch attr.Key {
		case "sendonly", "recvonly", "sendrecv":
			direction, err := rtp.ParseDirection(attr.Key)
			if err != nil {
				return err
			}
			remote.Direction = direction
		case "inactive":
			return NewSDPError(ErrorCodeInvalidDirection, "удаленный узел не принимает и не отправляет звук")
		}
	}
	return nil
}

// parsePtime разбирает ptime атрибут
func parsePtime(mediaDesc *sdp.MediaDescription, remote *RemoteDescription) {
	if value, ok := mediaDesc.Attribute("ptime"); ok {
		if ptimeMs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && ptimeMs > 0 {
			remote.Ptime = time.Duration(ptimeMs) * time.Millisecond
		}
	}
}
