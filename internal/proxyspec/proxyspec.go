package proxyspec

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrInvalidFormat is returned for any line that does not match
// username:password@host:port exactly.
var ErrInvalidFormat = fmt.Errorf("invalid proxy format, expected username:password@host:port")

// Spec is a parsed proxy credential record. Immutable once parsed.
type Spec struct {
	Host     string
	Port     int
	Username string
	Password string
	Raw      string
}

// Parse validates one input line into a Spec. Pure function, no I/O.
func Parse(line string) (Spec, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Spec{}, ErrInvalidFormat
	}

	cred, addr, ok := strings.Cut(line, "@")
	if !ok || strings.Contains(addr, "@") {
		return Spec{}, ErrInvalidFormat
	}

	username, password, ok := strings.Cut(cred, ":")
	if !ok || username == "" || password == "" {
		return Spec{}, ErrInvalidFormat
	}
	// A second ':' in the credential half makes the split ambiguous.
	if strings.Contains(password, ":") {
		return Spec{}, ErrInvalidFormat
	}

	host, portStr, ok := strings.Cut(addr, ":")
	if !ok || host == "" || strings.Contains(portStr, ":") {
		return Spec{}, ErrInvalidFormat
	}

	if portStr == "" || !isDigits(portStr) {
		return Spec{}, ErrInvalidFormat
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Spec{}, ErrInvalidFormat
	}

	return Spec{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		Raw:      line,
	}, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Addr returns the host:port dial address.
func (s Spec) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// URL returns the proxy URL with embedded credentials, suitable for
// http.Transport.Proxy.
func (s Spec) URL() *url.URL {
	return &url.URL{
		Scheme: "http",
		Host:   s.Addr(),
		User:   url.UserPassword(s.Username, s.Password),
	}
}

// ParseAll reads newline-separated proxy lines, returning the valid specs
// and the malformed lines in input order. Blank lines and comments are
// skipped without being counted as malformed.
func ParseAll(r io.Reader) ([]Spec, []string, error) {
	specs := make([]Spec, 0)
	malformed := make([]string, 0)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		spec, err := Parse(line)
		if err != nil {
			log.Warnf("Skipping malformed proxy on line %d: %q", lineNo, line)
			malformed = append(malformed, line)
			continue
		}
		specs = append(specs, spec)
	}

	if err := scanner.Err(); err != nil {
		return specs, malformed, fmt.Errorf("scan input: %w", err)
	}

	return specs, malformed, nil
}
