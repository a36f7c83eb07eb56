package text

// ValidateKey checks that key is usable on the text protocol: 1 to 250 bytes,
// with no whitespace or control characters.
// It returns a reason describing the violation, or "" when the key is valid.
func ValidateKey(key string) string {
	if len(key) < MinKeyLength {
		return "key is empty"
	}

	if len(key) > MaxKeyLength {
		return "key exceeds maximum length of 250 bytes"
	}

	for i := 0; i < len(key); i++ {
		b := key[i]
		if b <= ' ' || b == 0x7f {
			return "key contains whitespace or control character"
		}
	}

	return ""
}

// IsValidKey reports whether key passes ValidateKey.
func IsValidKey(key string) bool {
	return ValidateKey(key) == ""
}
