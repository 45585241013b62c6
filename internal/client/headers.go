package client

import (
	"net/http"
	"strings"
)

const ndjsonContentType = "application/x-ndjson"

func prepareRequestHeaders(extra http.Header, apiKey string) http.Header {
	h := make(http.Header)
	for k, vv := range extra {
		for _, v := range vv {
			h.Add(k, v)
		}
	}

	h.Set("Content-Type", "application/json")
	h.Set("Accept", ndjsonContentType)

	// Inject auth if API key provided and no existing auth
	if apiKey != "" && h.Get("Authorization") == "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}

	// Compressed bodies would hide record boundaries from the decoder.
	h.Del("Accept-Encoding")

	return h
}

// redactedHeaders returns a copy of h that is safe to log.
func redactedHeaders(h http.Header) map[string][]string {
	m := make(map[string][]string, len(h))
	for k, v := range h {
		lower := strings.ToLower(k)
		if lower == "authorization" || lower == "x-api-key" {
			m[k] = []string{"[REDACTED]"}
		} else {
			m[k] = v
		}
	}
	return m
}
