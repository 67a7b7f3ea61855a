/*
Package store is the only component that talks to the external annotation
store. It translates uid-based operations into positional calls against a
ports.RecordStore and masks the store's inconsistent identity scheme.

Identity is canonical: every admitted record is stamped with the "uid" field.
Records written by older tool versions are still matched through an ordered
list of legacy fields, and records that cannot be stamped are tracked in a
side table keyed by position.

Removal tries, in order:

 1. Exact: splice every record matching the uid out of the store.
 2. Single record: clear a store holding one record that carries no identity.
 3. Rebuild: re-insert every record except those matching the uid.

Tiers 2 and 3 form a compatibility shim and can be disabled with
WithLegacyRemoval(false). A removal with no matching record always fails;
it never guesses a target.
*/
package store
