/*
Package session manages one annotation workspace per session.

It serializes commands per session with reference-counted local locks and,
when replicas share a record store, an optional distributed lock.
*/
package session
