package utils

// ShortDigest abbreviates a digest for display.
func ShortDigest(digest string) string {
	if len(digest) <= 8 {
		return digest
	}
	return digest[:8]
}
