package mvcc

// Snapshot is the set of transactions considered committed at the moment a
// reader began, in the Postgres xmin/xmax/xip shape: any xid < xmin is
// committed, any xid >= xmax hasn't started yet, and xids in xip are the
// ones that were still active in [xmin, xmax) when the snapshot was taken.
type Snapshot struct {
	Self  XID
	Xmin  XID
	Xmax  XID
	Xip   map[XID]bool
	Level IsolationLevel
}

// NewSnapshot defensively copies the active-id set into the snapshot.
func NewSnapshot(self, xmin, xmax XID, active map[XID]bool, level IsolationLevel) *Snapshot {
	xip := make(map[XID]bool, len(active))
	for x := range active {
		xip[x] = true
	}
	return &Snapshot{Self: self, Xmin: xmin, Xmax: xmax, Xip: xip, Level: level}
}

// IsActive reports whether xid was uncommitted-and-unaborted at snapshot time.
func (s *Snapshot) IsActive(xid XID) bool {
	return s.Xip[xid]
}

// CommittedAt reports whether xid is known to have committed strictly
// before this snapshot was taken (ignores later commits).
func (s *Snapshot) CommittedAt(xid XID, aborted map[XID]bool) bool {
	if xid == XIDNone {
		return false
	}
	if xid == s.Self {
		return true
	}
	if xid < s.Xmin {
		return !aborted[xid]
	}
	if xid >= s.Xmax {
		return false
	}
	return !s.IsActive(xid) && !aborted[xid]
}

// Visible implements the MVCC visibility rule for a row created
// by createdBy and (optionally) deleted by deletedBy, evaluated against this
// snapshot. aborted is the manager's set of aborted transaction ids.
func (s *Snapshot) Visible(createdBy, deletedBy XID, aborted map[XID]bool) bool {
	if s.Level == ReadUncommitted {
		return deletedBy == XIDNone || deletedBy == s.Self
	}

	createdVisible := createdBy == s.Self || s.CommittedAt(createdBy, aborted)
	if !createdVisible {
		return false
	}

	if deletedBy == XIDNone {
		return true
	}
	if deletedBy == s.Self {
		return false
	}
	// Deleted by someone else: visible unless that delete is committed.
	return !s.CommittedAt(deletedBy, aborted)
}
