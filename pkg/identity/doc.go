/*
Package identity assigns uids to completed annotations and rejects
re-processing of uids already registered in the current image session.
*/
package identity
