package utils

import (
	"errors"
	"net/url"
)

// Parses a string of the form tcp://<host>[:<port>] and returns the
// host and port as a string. The default port is applied when the
// port is not specified.
func parseTcpUrl(urlstr, defaultPort string) (string, error) {
	uri, err := url.Parse(urlstr)
	if err != nil {
		return "", err
	}

	if uri.Scheme != "tcp" {
		return "", errors.New("Unsupported protocol: " + uri.Scheme)
	}

	if uri.Port() == "" {
		uri.Host += ":" + defaultPort
	}

	return uri.Host, nil
}

// Listen address of the introspection HTTP endpoint, port 8080 by
// default.
func ParseHttpUrl(urlstr string) (string, error) {
	return parseTcpUrl(urlstr, "8080")
}

// Listen address of the scheduler link, port 9090 by default.
func ParseLinkUrl(urlstr string) (string, error) {
	return parseTcpUrl(urlstr, "9090")
}
