package media_sdp

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/arzzra/voicechat/pkg/rtp"
	"github.com/pion/sdp/v3"
)

// Describe создает SDP описание локального потока
func Describe(config DescribeConfig) (*sdp.SessionDescription, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	version := config.SessionVersion
	if version == 0 {
		version = uint64(time.Now().Unix())
	}
	username := config.Username
	if username == "" {
		username = "-"
	}
	addressType := addressTypeOf(config.Address)

	description := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       username,
			SessionID:      version,
			SessionVersion: version,
			NetworkType:    "IN",
			AddressType:    addressType,
			UnicastAddress: config.Address,
		},
		SessionName: sdp.SessionName(config.SessionName),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addressType,
			Address:     &sdp.Address{Address: config.Address},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{
				Timing: sdp.Timing{
					StartTime: 0,
					StopTime:  0,
				},
			},
		},
	}

	proto := strings.Split(protoRTP, "/")
	if config.WireFormat == rtp.WireFormatNative {
		proto = []string{protoNative}
	}

	mediaDesc := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   "audio",
			Port:    sdp.RangedPort{Value: config.Port},
			Protos:  proto,
			Formats: []string{strconv.Itoa(int(config.PayloadType))},
		},
	}

	attributes, err := buildMediaAttributes(config)
	if err != nil {
		return nil, err
	}
	mediaDesc.Attributes = attributes
	description.MediaDescriptions = []*sdp.MediaDescription{mediaDesc}

	return description, nil
}

// Marshal создает описание и сериализует его в текст SDP
func Marshal(config DescribeConfig) ([]byte, error) {
	description, err := Describe(config)
	if err != nil {
		return nil, err
	}

	data, err := description.Marshal()
	if err != nil {
		return nil, WrapSDPError(ErrorCodeSDPGeneration, err, "не удалось сериализовать SDP")
	}
	return data, nil
}

// buildMediaAttributes создает атрибуты для медиа описания
func buildMediaAttributes(config DescribeConfig) ([]sdp.Attribute, error) {
	encoding, err := encodingName(config.BytesPerSample)
	if err != nil {
		return nil, err
	}

	var attributes []sdp.Attribute

	rtpmap := fmt.Sprintf("%d %s/%d", config.PayloadType, encoding, config.SampleRate)
	if config.Channels > 1 {
		rtpmap += "/" + strconv.Itoa(config.Channels)
	}
	attributes = append(attributes, sdp.NewAttribute("rtpmap", rtpmap))

	if config.Ptime > 0 {
		attributes = append(attributes, sdp.NewAttribute("ptime", strconv.Itoa(int(config.Ptime.Milliseconds()))))
	}

	// Направление медиа потока
	attributes = append(attributes, sdp.NewPropertyAttribute(config.Direction.String()))

	attributes = append(attributes, sdp.NewAttribute(WireFormatAttribute, config.WireFormat.String()))

	return attributes, nil
}

func addressTypeOf(address string) string {
	if ip := net.ParseIP(address); ip != nil && ip.To4() == nil {
		return "IP6"
	}
	return "IP4"
}
