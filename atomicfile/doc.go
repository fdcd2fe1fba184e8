/*
Package atomicfile writes files so that readers never see partial content.

Data goes to a temporary file created next to the destination. Close() flushes
it to disk, renames it over the destination and syncs the directory. If any
step fails (or Cancel() was called) the temporary file is removed and the
destination is left as it was.

	func save(path string, d []byte) error {
		f, err := atomicfile.New(path)
		if err != nil {
			return err
		}
		// Close() after Close() is a no-op
		defer f.Cancel()

		if _, err = f.Write(d); err != nil {
			return err
		}
		return f.Close()
	}

For the common case use WriteFile.

Temporary files are named ".tmp-<name>-<random>" so that directory scanners can
tell them apart from finished files (see IsTempName).
*/
package atomicfile
