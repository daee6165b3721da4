package dispatch

import (
	"crypto/sha512"

	"github.com/btcsuite/btcutil/base58"
)

// Key derives the cache key for a queue/path/query tuple:
//
//	queueName + "/" + base58(sha384(path+query))
//
// The host is never part of the digest input — aliasing is canonicalized
// through queueName before Key is called, so two aliases of the same host
// collide on purpose. path and query are concatenated with no separator:
// callers must pass them exactly as received so that two requests share
// a key iff they are byte-identical.
func Key(queueName, path, query string) string {
	sum := sha512.Sum384([]byte(path + query))
	return queueName + "/" + base58.Encode(sum[:])
}
