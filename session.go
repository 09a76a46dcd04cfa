// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package teleimport

import (
	"context"
)

// PeerID identifies a target conversation on the remote service.
type PeerID int64

// Session is an opaque handle for a server-side import transaction. It is
// scoped to one target conversation and one expected media count, and is
// required for every entry upload and for the final commit.
type Session struct {
	ID   string
	Peer PeerID
}

// SessionClient is the remote import API consumed by the ImportManager.
//
// UploadEntry must call onProgress with monotonically non-decreasing
// fractions in [0,1] and return nil only after the server has accepted the
// whole entry. All methods must respect context cancellation.
type SessionClient interface {
	InitiateSession(ctx context.Context, peer PeerID, primaryFile string, entryCount int) (*Session, error)
	UploadEntry(ctx context.Context, session *Session, filePath, displayName, mimeType string, media MediaType, onProgress func(fraction float64)) error
	CommitSession(ctx context.Context, session *Session) error
}

// Extractor extracts a single entry from the import archive into a fresh
// temporary file and returns its path. Temp files are owned by the platform
// temp-file facility; the manager never deletes them itself.
type Extractor interface {
	ExtractEntry(ctx context.Context, logicalPath string) (string, error)
}

// PeerResolver normalizes the target conversation before session initiation.
// The remote service requires basic groups to be upgraded to supergroups
// before history can be imported into them; this resolution is attempted
// exactly once, and any failure aborts the import with a generic error.
type PeerResolver interface {
	ResolveImportPeer(ctx context.Context, peer PeerID) (PeerID, error)
}
