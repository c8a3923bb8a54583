//go:build race

package sharedfile

import "hash/fnv"

// murmur3 turns a uintptr back into a pointer in its block loop, which
// checkptr rejects under -race.
func getPathHash(path string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(path))
	return h.Sum32()
}
