package proxyspec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		line     string
		host     string
		port     int
		username string
		password string
	}{
		{"user:pass@10.0.0.1:8080", "10.0.0.1", 8080, "user", "pass"},
		{"a:b@1.2.3.4:1", "1.2.3.4", 1, "a", "b"},
		{"long-user.name:p4$$w0rd@proxy.example.com:65535", "proxy.example.com", 65535, "long-user.name", "p4$$w0rd"},
		{"  user:pass@10.0.0.1:3128  ", "10.0.0.1", 3128, "user", "pass"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			spec, err := Parse(tt.line)
			require.NoError(t, err)
			require.Equal(t, tt.host, spec.Host)
			require.Equal(t, tt.port, spec.Port)
			require.Equal(t, tt.username, spec.Username)
			require.Equal(t, tt.password, spec.Password)
			require.Equal(t, strings.TrimSpace(tt.line), spec.Raw)
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"no-at-sign",
		"1.2.3.4:8080",                // missing credentials
		"user@host:8080",              // missing password
		":pass@host:8080",             // empty username
		"user:@host:8080",             // empty password
		"user:pass@host",              // missing port
		"user:pass@:8080",             // empty host
		"user:pass@host:",             // empty port
		"user:pass@host:abc",          // non-numeric port
		"user:pass@host:-1",           // signed port
		"user:pass@host:0",            // port below range
		"user:pass@host:70000",        // port above range
		"user:pa:ss@host:8080",        // extra colon in credentials
		"user:pass@ho:st:8080",        // extra colon in address
		"user:pass@host:8080@extra",   // extra at-sign
		"user:pass@host:8080:socks5",  // trailing segment
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			_, err := Parse(line)
			require.ErrorIs(t, err, ErrInvalidFormat)
		})
	}
}

func TestSpecHelpers(t *testing.T) {
	spec, err := Parse("user:pass@10.0.0.1:8080")
	require.NoError(t, err)

	require.Equal(t, "10.0.0.1:8080", spec.Addr())

	u := spec.URL()
	require.Equal(t, "http", u.Scheme)
	require.Equal(t, "10.0.0.1:8080", u.Host)
	require.Equal(t, "user", u.User.Username())
	pass, set := u.User.Password()
	require.True(t, set)
	require.Equal(t, "pass", pass)
}

func TestParseAllFiltersMalformed(t *testing.T) {
	input := strings.Join([]string{
		"a:b@1.2.3.4:8080",
		"",
		"# comment line",
		"bad-line",
		"c:d@5.6.7.8:3128",
	}, "\n")

	specs, malformed, err := ParseAll(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, specs, 2)
	require.Equal(t, "1.2.3.4", specs[0].Host)
	require.Equal(t, "5.6.7.8", specs[1].Host)
	require.Equal(t, []string{"bad-line"}, malformed)
}
