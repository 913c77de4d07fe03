package utils

import "strings"

func IsIn(s string, arr []string) bool {
	for _, x := range arr {
		if s == x {
			return true
		}
	}
	return false
}

// IsInFold is IsIn under Unicode case folding.
func IsInFold(s string, arr []string) bool {
	for _, x := range arr {
		if strings.EqualFold(s, x) {
			return true
		}
	}
	return false
}
