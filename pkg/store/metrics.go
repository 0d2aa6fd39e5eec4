package store

// DiskUsage returns the total on-disk size of the database in bytes,
// best-effort (zero when the store is closed).
func DiskUsage() uint64 {
	if db == nil {
		return 0
	}
	m := db.Metrics()
	if m == nil {
		return 0
	}
	return m.DiskSpaceUsage()
}
