package wire

import "strings"

// StatusOK is the status of a successful reply.
const StatusOK = "ok"

// IsOK reports whether a reply status denotes success.
// Receivers are not consistent about case, so the comparison ignores it.
func IsOK(status string) bool {
	return strings.EqualFold(status, StatusOK)
}
