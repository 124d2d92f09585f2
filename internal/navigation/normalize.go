package navigation

import "strings"

// Normalize turns user input into a fetchable URL. Input already starting
// with http:// or https:// is returned as is, anything else gets https://.
func Normalize(input string) string {
	s := strings.TrimSpace(input)
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return "https://" + s
}
