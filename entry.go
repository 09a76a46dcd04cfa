// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package teleimport

import (
	"strings"
)

// MediaType represents how an archive entry is classified for the remote
// import API. The server stores imported attachments under this type.
type MediaType string

// The known media types
const (
	MediaPhoto    MediaType = "photo"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
)

// MediaTypeForMIME maps a sniffed MIME type to the classifier sent alongside
// an entry upload. Unrecognized MIME types are imported as plain documents.
func MediaTypeForMIME(mime string) MediaType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MediaPhoto
	case strings.HasPrefix(mime, "video/"):
		return MediaVideo
	case strings.HasPrefix(mime, "audio/"):
		return MediaAudio
	default:
		return MediaDocument
	}
}

// EntryDescriptor describes one unit of import work: a file embedded in the
// chat export archive. Size must be the uncompressed size; it is used to
// weight this entry in the aggregate progress percentage, so a wrong value
// skews the percentage but nothing else.
type EntryDescriptor struct {
	// Path is the logical path of the entry inside the archive. It also keys
	// the manager's active-upload map, so it must be unique per archive.
	Path string
	// Name is the display name sent to the server with the upload.
	Name string
	// Size is the uncompressed size of the entry in bytes.
	Size int64
	// MIMEType is the sniffed content type of the entry.
	MIMEType string
	// Media is the coarse classifier derived from MIMEType.
	Media MediaType
}

// importEntry is the manager-owned record for one entry: immutable identity
// plus a mutable uploaded-byte counter. It only ever lives in the manager's
// queue and is mutated only under the manager's state lock.
type importEntry struct {
	EntryDescriptor
	uploadedBytes int64
}
