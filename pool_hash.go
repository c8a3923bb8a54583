//go:build !race

package sharedfile

import "github.com/spaolacci/murmur3"

// get the hash value according to the path
func getPathHash(path string) uint32 {
	return murmur3.Sum32([]byte(path))
}
