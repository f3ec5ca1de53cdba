package utils

// MaskSecret keeps a short prefix of long credentials so they can be told apart
// in logs. Short values are hidden entirely.
func MaskSecret(s string) string {
	if len(s) < 8 {
		return "*****"
	}
	return s[:4] + "*****"
}
