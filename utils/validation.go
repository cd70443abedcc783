package utils

import (
	"net/http"
	"strings"

	"scaler-service/models"
)

// countryHeaders are checked in order. CF-IPCountry is set by Cloudflare.
var countryHeaders = []string{"CF-IPCountry", "X-Country-Code"}

// ExtractCountry returns the ISO 3166 alpha-2 country of the request,
// or models.UnknownCountry when no trustworthy header is present
func ExtractCountry(r *http.Request) string {
	for _, h := range countryHeaders {
		if c := NormalizeCountry(r.Header.Get(h)); c != models.UnknownCountry {
			return c
		}
	}
	return models.UnknownCountry
}

// NormalizeCountry upper-cases a two-letter code. Cloudflare's XX (unknown)
// and T1 (Tor) and anything that is not two letters map to Unknown.
func NormalizeCountry(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 || code == "XX" || code == "T1" {
		return models.UnknownCountry
	}
	for i := 0; i < 2; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return models.UnknownCountry
		}
	}
	return code
}
