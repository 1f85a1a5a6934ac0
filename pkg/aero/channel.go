package aero

import (
	"fmt"
	"strings"
)

// Channel URIs take the form "aeron:<media>[?key=value[|key=value]*]".
// The client validates structure only; interpretation belongs to the
// driver.
const channelScheme = "aeron:"

// ChannelURI is a parsed channel address.
type ChannelURI struct {
	Media  string
	Params map[string]string
}

// ParseChannel parses and validates a channel URI.
func ParseChannel(channel string) (*ChannelURI, error) {
	if !strings.HasPrefix(channel, channelScheme) {
		return nil, fmt.Errorf("channel must start with %q: %s", channelScheme, channel)
	}

	rest := channel[len(channelScheme):]
	uri := &ChannelURI{Params: make(map[string]string)}

	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		uri.Media = rest[:idx]
		for _, pair := range strings.Split(rest[idx+1:], "|") {
			key, value, found := strings.Cut(pair, "=")
			if !found || key == "" {
				return nil, fmt.Errorf("invalid channel parameter %q in %s", pair, channel)
			}
			uri.Params[key] = value
		}
	} else {
		uri.Media = rest
	}

	switch uri.Media {
	case "ipc":
		if len(uri.Params) != 0 {
			return nil, fmt.Errorf("ipc channel takes no parameters: %s", channel)
		}
	case "udp":
		if uri.Params["endpoint"] == "" && uri.Params["control"] == "" {
			return nil, fmt.Errorf("udp channel requires an endpoint or control address: %s", channel)
		}
	default:
		return nil, fmt.Errorf("unknown channel media %q: %s", uri.Media, channel)
	}

	return uri, nil
}

// ValidateChannel checks a channel URI without returning the parse.
func ValidateChannel(channel string) error {
	_, err := ParseChannel(channel)
	return err
}
