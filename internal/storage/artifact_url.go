package storage

import "strings"

// ArtifactURL builds the public reference of an artifact key served under baseURL.
func ArtifactURL(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + "/artifacts/" + strings.TrimLeft(key, "/")
}
