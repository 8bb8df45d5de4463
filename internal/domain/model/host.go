package model

import "strings"

// NormalizeHostURL trims whitespace and trailing slashes so that
// "http://sonar:9000/" and "http://sonar:9000" identify the same host.
func NormalizeHostURL(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}
