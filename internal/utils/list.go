package utils

import "strings"

func IsStringInSlice(s string, slice []string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

func SliceToString(slice []string) string {
	return strings.Join(slice, ",")
}

func StringToSlice(str string) []string {
	if str == "" {
		return []string{}
	}
	return strings.Split(str, ",")
}

// AppendUnique appends the values not already present, keeping first-seen order.
func AppendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !IsStringInSlice(v, dst) {
			dst = append(dst, v)
		}
	}
	return dst
}
