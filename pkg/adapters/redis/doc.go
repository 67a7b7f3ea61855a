// Package redis provides a shared annotation record store and a distributed
// locker backed by Redis, for replicas serving the same surfaces.
package redis
