package utils

// SafeDeref safely dereferences a string pointer and returns empty string if nil
func SafeDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SafeDerefInt32 returns 0 for a nil pointer
func SafeDerefInt32(n *int32) int32 {
	if n == nil {
		return 0
	}
	return *n
}
