package helpers

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

var trackingQueryParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"gclid":        {},
	"fbclid":       {},
	"msclkid":      {},
}

// CanonicalURL normalises a URL string so that the same page submitted
// twice maps to one document. It lowercases scheme/host, removes default
// ports, strips fragments and tracking query parameters (utm_*, fbclid,
// etc.) and sorts remaining query parameters deterministically. A missing
// scheme defaults to https; anything other than http(s) is rejected.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		if strings.HasPrefix(raw, "//") {
			parsed, err = url.Parse("https:" + raw)
		} else {
			parsed, err = url.Parse("https://" + raw)
		}
		if err != nil {
			return "", err
		}
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("unsupported url scheme: " + parsed.Scheme)
	}

	host := strings.ToLower(parsed.Host)
	if host == "" {
		return "", errors.New("url missing host")
	}
	if (parsed.Scheme == "http" && strings.HasSuffix(host, ":80")) ||
		(parsed.Scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	parsed.Host = host

	cleanPath := path.Clean(parsed.Path)
	if cleanPath == "." || cleanPath == "" {
		cleanPath = "/"
	}
	if cleanPath != "/" && strings.HasSuffix(parsed.Path, "/") {
		cleanPath += "/"
	}
	parsed.Path = cleanPath

	parsed.Fragment = ""
	query := parsed.Query()
	for key := range query {
		if _, drop := trackingQueryParams[strings.ToLower(key)]; drop {
			query.Del(key)
		}
	}
	if len(query) == 0 {
		parsed.RawQuery = ""
	} else {
		keys := make([]string, 0, len(query))
		for key := range query {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, key := range keys {
			values := append([]string(nil), query[key]...)
			sort.Strings(values)
			for _, value := range values {
				if b.Len() > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(key))
				if value != "" {
					b.WriteByte('=')
					b.WriteString(url.QueryEscape(value))
				}
			}
		}
		parsed.RawQuery = b.String()
	}

	return parsed.String(), nil
}
