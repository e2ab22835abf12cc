package tracker

// UserChange reports that a user applied an edit to a pad
type UserChange struct {
	DocID    string
	UserID   string
	Revision int64
	ClientIP string
}

// RevisionCommit reports that a revision was persisted by the host
type RevisionCommit struct {
	DocID    string
	AuthorID string
	Head     int64
}

// Disconnect reports that a user left a pad
type Disconnect struct {
	DocID  string
	UserID string
}

// Stats is a point-in-time view of pending work
type Stats struct {
	Docs         int  `json:"docs"`
	Records      int  `json:"records"`
	BurstPending bool `json:"burst_pending"`
}

// Event kinds used as metric labels
const (
	KindClientReady = "client_ready"
	KindUserChanges = "user_changes"
	KindRevision    = "revision"
	KindDisconnect  = "disconnect"
)

// Reasons an event is dropped, used as metric labels
const (
	DropMissingIdentity = "missing_identity"
	DropFiltered        = "filtered"
	DropUnknownSession  = "unknown_session"
	DropNotLoaded       = "not_loaded"
)
