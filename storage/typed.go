package storage

// Get returns value of a record for key decoded as T.
// Returns false (and no error) if there's no record for key.
func Get[T any](s *Storage, key string) (T, bool, error) {
	var v T
	d, ok, err := s.GetRaw(key)
	if err != nil || !ok {
		return v, false, err
	}
	if err = s.Unmarshal(key, d, &v); err != nil {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

// GetOrDefault is like Get but returns def if there's no record for key
// (or if the record can't be read, together with the error)
func GetOrDefault[T any](s *Storage, key string, def T) (T, error) {
	v, ok, err := Get[T](s, key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}
