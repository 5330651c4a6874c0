package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver so
	// every connection gets vec_distance_cosine.
	vec.Auto()
}
