package trends

import "strings"

const defaultRegionCode = "us"

var regionCodes = map[string]string{
	"germany":        "de",
	"united states":  "us",
	"usa":            "us",
	"united kingdom": "gb",
	"england":        "gb",
	"france":         "fr",
	"italy":          "it",
	"spain":          "es",
	"japan":          "jp",
	"canada":         "ca",
	"australia":      "au",
	"brazil":         "br",
	"india":          "in",
	"china":          "cn",
	"netherlands":    "nl",
	"turkey":         "tr",
	"mexico":         "mx",
}

// RegionCode maps a country name (or an already known geo code) to the
// provider geo code. Unknown locations map to "us".
func RegionCode(location string) string {
	key := strings.ToLower(strings.TrimSpace(location))
	if code, ok := regionCodes[key]; ok {
		return code
	}
	if len(key) == 2 {
		for _, code := range regionCodes {
			if code == key {
				return code
			}
		}
	}
	return defaultRegionCode
}
