package csv

import "strings"

// StripHeaderBOM drops a leading byte order mark from the first header, which
// Excel writes when saving "CSV UTF-8". headers is modified in place.
func StripHeaderBOM(headers []string) []string {
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
	}
	return headers
}
