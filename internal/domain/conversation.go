package domain

// ArchivedEntry is a single transcript entry of a concluded session as stored
// in the archive table.
type ArchivedEntry struct {
	PK        string
	SK        string
	SessionID string
	Seq       int
	Role      Role
	Text      string
	TTL       int64
}

// ArchivedVerdict stores the verdict and aggregate data of a concluded session.
type ArchivedVerdict struct {
	PK          string
	SK          string
	SessionID   string
	ConcludedAt string
	Turns       int
	Verdict     Verdict
	TTL         int64
}
