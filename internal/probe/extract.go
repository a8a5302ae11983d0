package probe

import (
	"encoding/json"
	"strings"
)

// UnknownLocation is substituted when a check endpoint reports no
// geolocation for the proxy's exit IP.
const UnknownLocation = "Unknown"

// Identity is the exit IP plus whatever geolocation the endpoint returned.
type Identity struct {
	IP      string
	Country string
	City    string
}

// Each check service returns a different JSON shape. Extractors are tried
// in order against the decoded body; the first one that finds an IP wins.
type extractor func(doc map[string]any) (Identity, bool)

var extractors = []extractor{
	extractIPField,     // {"ip": "1.2.3.4", ...} (ipify and friends)
	extractOriginField, // {"origin": "1.2.3.4"} (httpbin)
	extractQueryField,  // {"query": "1.2.3.4", "country": ..., "city": ...} (ip-api)
}

// ExtractIdentity parses a check-endpoint response body and pulls out the
// exit identity. Returns false if the body is not JSON or no known shape
// carries an IP.
func ExtractIdentity(body []byte) (Identity, bool) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Identity{}, false
	}

	for _, ex := range extractors {
		if ident, ok := ex(doc); ok {
			return ident, true
		}
	}

	return Identity{}, false
}

func extractIPField(doc map[string]any) (Identity, bool) {
	ip, ok := stringField(doc, "ip")
	if !ok {
		return Identity{}, false
	}
	return identityWithGeo(doc, ip), true
}

func extractOriginField(doc map[string]any) (Identity, bool) {
	origin, ok := stringField(doc, "origin")
	if !ok {
		return Identity{}, false
	}
	// httpbin reports "client, proxy" when X-Forwarded-For is set
	ip, _, _ := strings.Cut(origin, ",")
	return identityWithGeo(doc, strings.TrimSpace(ip)), true
}

func extractQueryField(doc map[string]any) (Identity, bool) {
	ip, ok := stringField(doc, "query")
	if !ok {
		return Identity{}, false
	}
	return identityWithGeo(doc, ip), true
}

func identityWithGeo(doc map[string]any, ip string) Identity {
	ident := Identity{
		IP:      ip,
		Country: UnknownLocation,
		City:    UnknownLocation,
	}
	if country, ok := stringField(doc, "country"); ok {
		ident.Country = country
	}
	if city, ok := stringField(doc, "city"); ok {
		ident.City = city
	}
	return ident
}

func stringField(doc map[string]any, key string) (string, bool) {
	v, ok := doc[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return strings.TrimSpace(s), true
}
