// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package archive reads chat export archives and implements the extraction
// primitive consumed by the import manager.
package archive

import (
	"archive/zip"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/gabriel-vasile/mimetype"
	"go.mau.fi/util/random"

	"github.com/lgilyazov/teleimport"
)

var (
	ErrEntryNotFound = errors.New("entry not found in archive")
)

// Archive is a zip-backed chat export. Entry reads are safe to run
// concurrently: the underlying zip reader serves each entry from its own
// section of the file.
type Archive struct {
	path   string
	reader *zip.ReadCloser
	files  map[string]*zip.File
}

// Open opens the export archive at the given path and indexes its entries.
func Open(archivePath string) (*Archive, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	a := &Archive{
		path:   archivePath,
		reader: reader,
		files:  make(map[string]*zip.File, len(reader.File)),
	}
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		a.files[file.Name] = file
	}
	return a, nil
}

func (a *Archive) Close() error {
	return a.reader.Close()
}

// Path returns the on-disk path the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// Manifest enumerates every regular file in the archive except the named
// primary export file, sniffs its content type, and returns descriptors in
// name order suitable for the import manager's queue. Sizes come from the
// zip central directory, so they are the uncompressed sizes the aggregate
// progress is weighted by.
func (a *Archive) Manifest(primaryFile string) ([]teleimport.EntryDescriptor, error) {
	names := make([]string, 0, len(a.files))
	for name := range a.files {
		if name == primaryFile {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	entries := make([]teleimport.EntryDescriptor, 0, len(names))
	for _, name := range names {
		file := a.files[name]
		mime, err := a.sniffMIME(file)
		if err != nil {
			return nil, fmt.Errorf("failed to sniff %s: %w", name, err)
		}
		entries = append(entries, teleimport.EntryDescriptor{
			Path:     name,
			Name:     path.Base(name),
			Size:     int64(file.UncompressedSize64),
			MIMEType: mime,
			Media:    teleimport.MediaTypeForMIME(mime),
		})
	}
	return entries, nil
}

func (a *Archive) sniffMIME(file *zip.File) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	mime, err := mimetype.DetectReader(rc)
	if err != nil {
		return "", err
	}
	return mime.String(), nil
}

// ExtractEntry extracts one entry into a fresh temporary file named after the
// entry's logical path and returns the temp file's path. The caller owns
// nothing: temp files live in the platform temp directory and are cleaned up
// by it, not by this package.
func (a *Archive) ExtractEntry(ctx context.Context, logicalPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	file, ok := a.files[logicalPath]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrEntryNotFound, logicalPath)
	}
	rc, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open archive entry: %w", err)
	}
	defer rc.Close()

	temp, err := os.CreateTemp("", fmt.Sprintf("import-%s-%s", hex.EncodeToString(random.Bytes(4)), path.Base(logicalPath)))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer temp.Close()
	if _, err = io.Copy(temp, rc); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", logicalPath, err)
	}
	return temp.Name(), nil
}
