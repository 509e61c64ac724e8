package types

// Truncate cuts s to at most n runes. Rune-based so multi-byte content is
// never split mid-character.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
