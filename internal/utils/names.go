package utils

import (
	"os"
	"strings"
	"time"

	"github.com/goombaio/namegenerator"
)

// GenerateDeviceName creates a memorable device name such as "wispy-dust",
// prefixed with the host name when one is available
func GenerateDeviceName() string {
	nameGenerator := namegenerator.NewNameGenerator(time.Now().UTC().UnixNano())
	name := strings.ReplaceAll(nameGenerator.Generate(), "_", "-")

	host, err := os.Hostname()
	if err != nil {
		return name
	}
	host = SanitizeName(strings.Split(host, ".")[0])
	if host == "" {
		return name
	}
	return host + "-" + name
}

// SanitizeName lowercases s and collapses anything that is not a letter,
// digit or hyphen into single hyphens
func SanitizeName(s string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}
