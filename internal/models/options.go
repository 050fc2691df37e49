package models

// Login carries credentials for a protocol or back-end.
type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Empty reports whether no credentials were supplied.
func (l *Login) Empty() bool {
	return l == nil || (l.Username == "" && l.Password == "")
}

// ImportOptions are the recognised import configuration options.
type ImportOptions struct {
	Login         *Login `json:"login,omitempty"`
	RequiresLogin bool   `json:"requires_login,omitempty"`
	// Queue defers the import to the next queue drain.
	Queue bool `json:"-"`
	// TermID attributes imported files to a directory term.
	TermID string `json:"term_id,omitempty"`
}

// URLResult is the outcome of importing one URL.
type URLResult struct {
	URL    string
	Title  string
	FileID string
	// Imported counts the files created; a directory URL may create several.
	Imported int
	OK       bool
	Reason   string
}

// ImportReport aggregates the per-URL results of one import call.
type ImportReport struct {
	Success bool
	Results []URLResult
}
