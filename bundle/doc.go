/*
Package bundle packs all records of a storage.Storage into a single file
and unpacks such file into a new storage directory.

A bundle is meant for moving a store around (backups, shipping defaults with
an app), it's not a live store.

Format (all integers little-endian):

	magic        8 bytes  "BSTBNDL\x00"
	version      uint32   currently 1
	record_count uint64
	record_count times:
	  key_len    uint32
	  key        key_len bytes
	  value_len  uint64
	  value      value_len bytes

Values are copied verbatim from record files, they are never decoded.
Unpacking validates the whole framing: a bad header, a truncated record or
trailing bytes all result in ErrCorruptBundle.
*/
package bundle
