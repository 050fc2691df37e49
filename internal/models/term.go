package models

// DirectoryTerm is one configured remote directory kept in sync.
// The files it produced carry its ID in File.TermID.
type DirectoryTerm struct {
	ID           string
	Name         string
	Service      string
	DirectoryURL string
	Enabled      bool
	Recursive    bool
}
