// Package storage is a persistent key/value store for settings and other
// small data sets.
//
// Every record lives in its own file in the storage directory. The file name
// is derived from the key (see KeyToFileName) and the content is the value
// serialized with a codec.Codec.
//
// Writes are atomic: the value is written to a temporary file, synced to disk
// and renamed over the record file. A reader sees either the old or the new
// value, never a partial one. There is no locking: concurrent writers to
// different keys are fine, anything more needs external coordination.
//
//	s, err := storage.Create("./settings", nil)
//	if err != nil {
//	    return err
//	}
//	err = s.Set("settings", Settings{Theme: "dark", Volume: 7})
//	v, ok, err := storage.Get[Settings](s, "settings")
//
// Files in the directory that don't look like records (e.g. created by other
// programs) are ignored by Keys and never removed by Clear.
package storage
