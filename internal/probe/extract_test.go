package probe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractIdentity(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Identity
		ok   bool
	}{
		{
			name: "direct ip field",
			body: `{"ip": "1.2.3.4"}`,
			want: Identity{IP: "1.2.3.4", Country: UnknownLocation, City: UnknownLocation},
			ok:   true,
		},
		{
			name: "ip field with geo",
			body: `{"ip": "1.2.3.4", "country": "Norway", "city": "Oslo"}`,
			want: Identity{IP: "1.2.3.4", Country: "Norway", City: "Oslo"},
			ok:   true,
		},
		{
			name: "httpbin origin field",
			body: `{"origin": "5.6.7.8"}`,
			want: Identity{IP: "5.6.7.8", Country: UnknownLocation, City: UnknownLocation},
			ok:   true,
		},
		{
			name: "origin with forwarded client",
			body: `{"origin": "10.0.0.1, 5.6.7.8"}`,
			want: Identity{IP: "10.0.0.1", Country: UnknownLocation, City: UnknownLocation},
			ok:   true,
		},
		{
			name: "ip-api query field",
			body: `{"query": "9.9.9.9", "country": "Germany", "city": "Berlin", "status": "success"}`,
			want: Identity{IP: "9.9.9.9", Country: "Germany", City: "Berlin"},
			ok:   true,
		},
		{
			name: "ip field wins over query",
			body: `{"ip": "1.1.1.1", "query": "2.2.2.2"}`,
			want: Identity{IP: "1.1.1.1", Country: UnknownLocation, City: UnknownLocation},
			ok:   true,
		},
		{
			name: "no identity field",
			body: `{"status": "ok", "message": "hello"}`,
			ok:   false,
		},
		{
			name: "empty ip field",
			body: `{"ip": "  "}`,
			ok:   false,
		},
		{
			name: "non-string ip field",
			body: `{"ip": 1234}`,
			ok:   false,
		},
		{
			name: "not json",
			body: `<html>Access denied</html>`,
			ok:   false,
		},
		{
			name: "empty body",
			body: ``,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ident, ok := ExtractIdentity([]byte(tt.body))
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, tt.want, ident)
			}
		})
	}
}
