package relay

import (
	"bytes"
	"strconv"
)

const (
	DefaultWeatherUserAgent = "esp-idf/1.0 esp32 curl"
	DefaultRelayUserAgent   = "esp-idf/1.0 esp32"
)

// WeatherRequest formats HTTP/1.0 GET without body.
func WeatherRequest(e Endpoint) []byte {
	var b bytes.Buffer
	writeRequestHead(&b, "GET", e)
	b.WriteString("\r\n")
	return b.Bytes()
}

// RelayRequest formats HTTP/1.0 POST with text body, payload copied verbatim.
func RelayRequest(e Endpoint, payload []byte) []byte {
	var b bytes.Buffer
	b.Grow(256 + len(payload))
	writeRequestHead(&b, "POST", e)
	b.WriteString("Content-Type: text/plain\r\n")
	b.WriteString("Content-Length: ")
	b.WriteString(strconv.Itoa(len(payload)))
	b.WriteString("\r\n\r\n")
	b.Write(payload)
	return b.Bytes()
}

func writeRequestHead(b *bytes.Buffer, method string, e Endpoint) {
	path := e.Path
	if path == "" {
		path = "/"
	}
	b.WriteString(method + " " + path + " HTTP/1.0\r\n")
	b.WriteString("Host: " + e.HostPort() + "\r\n")
	if e.UserAgent != "" {
		b.WriteString("User-Agent: " + e.UserAgent + "\r\n")
	}
}
