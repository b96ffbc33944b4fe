package store

import (
	"errors"
	"fmt"
)

// Integrity compares an artifact file against its journal entry.
type Integrity struct {
	Artifact    string `json:"artifact"`
	InJournal   bool   `json:"in_journal"`
	FileExists  bool   `json:"file_exists"`
	JournalRows int    `json:"journal_rows"`
	FileRows    int    `json:"file_rows"`
	JournalHash string `json:"journal_hash,omitempty"`
	FileHash    string `json:"file_hash,omitempty"`
	RowCountOK  bool   `json:"row_count_ok"`
	HashOK      bool   `json:"hash_ok"`
	SchemaOK    bool   `json:"schema_ok"`
	Error       string `json:"error,omitempty"`
}

// OK reports whether file and journal agree.
func (i Integrity) OK() bool {
	return i.InJournal && i.FileExists && i.RowCountOK && i.HashOK
}

// Verify re-reads the local artifact and checks it against the journal.
func (s *Store) Verify(name string) Integrity {
	out := Integrity{Artifact: name}
	meta, ok, err := s.Metadata(name)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.InJournal = ok
	out.JournalRows = meta.RowCount
	out.JournalHash = meta.Hash
	out.SchemaOK = !ok || meta.SchemaVersion == "" || meta.SchemaVersion == s.schemaVersion

	f, err := s.LoadLocal(name)
	if errors.Is(err, ErrNotFound) {
		return out
	}
	if err != nil {
		out.Error = fmt.Sprintf("read: %v", err)
		return out
	}
	out.FileExists = true
	out.FileRows = f.Len()
	out.FileHash = f.Hash(LoadColumn)
	out.RowCountOK = ok && out.FileRows == meta.RowCount
	out.HashOK = ok && out.FileHash == meta.Hash
	return out
}
