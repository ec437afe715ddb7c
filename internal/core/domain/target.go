package domain

// StreamTarget is a stream source under test: a primary URL plus an ordered
// list of backup URLs for the same format.
type StreamTarget struct {
	Format     StreamFormat
	PrimaryURL string
	BackupURLs []string

	// ActiveIndex selects the URL currently in use: -1 means the primary,
	// otherwise it is an index into BackupURLs.
	ActiveIndex int
}

// NewStreamTarget builds a target pointed at its primary URL.
func NewStreamTarget(format StreamFormat, primary string, backups []string) StreamTarget {
	return StreamTarget{
		Format:      format,
		PrimaryURL:  primary,
		BackupURLs:  backups,
		ActiveIndex: -1,
	}
}

// ActiveURL returns the URL selected by ActiveIndex.
func (t StreamTarget) ActiveURL() string {
	if t.ActiveIndex >= 0 && t.ActiveIndex < len(t.BackupURLs) {
		return t.BackupURLs[t.ActiveIndex]
	}
	return t.PrimaryURL
}

// OnPrimary reports whether the target still points at its primary source.
func (t StreamTarget) OnPrimary() bool {
	return t.ActiveIndex < 0
}

// WithFormat returns a copy switched to another format. Switching formats
// always resets the backup selection to the primary source.
func (t StreamTarget) WithFormat(format StreamFormat, primary string, backups []string) StreamTarget {
	if format == t.Format {
		return t
	}
	return NewStreamTarget(format, primary, backups)
}

// NextBackupIndex returns the backup index a single fallback step would
// select, wrapping around the backup list. Returns -1 when there are no
// backups to rotate to.
func (t StreamTarget) NextBackupIndex() int {
	if len(t.BackupURLs) == 0 {
		return -1
	}
	return (t.ActiveIndex + 1) % len(t.BackupURLs)
}
