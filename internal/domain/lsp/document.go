package lsp

// DocumentState tracks the open/closed lifecycle of one document handle as
// seen by a language server, including its synchronization version.
type DocumentState struct {
	Open    bool
	Version int
}

// DocumentAction is the synchronization step the caller must perform next.
type DocumentAction int

const (
	// ActionOpen opens the document for the first time at version 1.
	ActionOpen DocumentAction = iota
	// ActionReopen closes the stale handle and reopens at version 1. Used
	// when the file was deleted and recreated between calls.
	ActionReopen
	// ActionUpdate sends a didChange with the incremented version.
	ActionUpdate
)

// Next returns the synchronization action for the upcoming content push and
// the resulting state. The version strictly increases by 1 per update while
// the file exists on disk; a detected external deletion resets it to 1 via
// close+reopen.
func (d DocumentState) Next(existsOnDisk bool) (DocumentAction, DocumentState) {
	if !d.Open {
		return ActionOpen, DocumentState{Open: true, Version: 1}
	}
	if !existsOnDisk {
		return ActionReopen, DocumentState{Open: true, Version: 1}
	}
	return ActionUpdate, DocumentState{Open: true, Version: d.Version + 1}
}
