// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package teleimport

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// maxActiveUploads is the ceiling on simultaneous entry uploads. It is a
// fixed policy constant, not runtime configuration: two transfers keep the
// pipe busy without overwhelming the remote service or local disk I/O.
const maxActiveUploads = 2

// Config carries the dependencies and inputs of an ImportManager.
type Config struct {
	// Client talks to the remote import API. Required.
	Client SessionClient
	// Extractor pulls entries out of the archive. Required.
	Extractor Extractor
	// Resolver optionally normalizes the target peer before initiation.
	Resolver PeerResolver

	// Peer is the target conversation for the import.
	Peer PeerID
	// PrimaryFile is the logical path of the main text export inside the
	// archive, sent with the initiation call.
	PrimaryFile string
	// Entries is the ordered list of media entries to upload. Entries are
	// started in exactly this order, subject only to the concurrency ceiling.
	Entries []EntryDescriptor

	// Log can be a zerolog.Nop() logger if the caller doesn't want output.
	Log zerolog.Logger
}

// ImportManager owns the upload lifecycle of one chat-history import attempt:
// it initiates a server-side session, extracts and uploads each entry with
// bounded concurrency, aggregates byte progress, and commits the session once
// the queue drains.
//
// A manager is single-use. After an error the whole pipeline must be
// restarted by discarding the manager and constructing a new one, which
// resets all entry progress and requests a fresh session.
type ImportManager struct {
	client    SessionClient
	extractor Extractor
	resolver  PeerResolver

	peer        PeerID
	primaryFile string
	log         zerolog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// mu guards the state machine below. It is held only across transitions
	// and scheduling decisions, never across extraction or upload bodies.
	mu         sync.Mutex
	session    *Session
	entries    []*importEntry
	pending    []*importEntry
	active     map[string]context.CancelFunc
	totalBytes int64
	state      ImportState
	started    bool
	finalizing bool
	failed     bool
	done       bool
	closed     bool

	// dispatchMu serializes publishes so observers always see progress in
	// non-decreasing order.
	dispatchMu sync.Mutex

	stateHandlers     []wrappedStateHandler
	stateHandlersLock sync.RWMutex
}

// NewImportManager validates the config and builds a manager. The queue and
// byte totals are computed here; nothing talks to the network until Start.
func NewImportManager(cfg Config) (*ImportManager, error) {
	if cfg.Client == nil {
		return nil, ErrNoClient
	} else if cfg.Extractor == nil {
		return nil, ErrNoExtractor
	}
	m := &ImportManager{
		client:      cfg.Client,
		extractor:   cfg.Extractor,
		resolver:    cfg.Resolver,
		peer:        cfg.Peer,
		primaryFile: cfg.PrimaryFile,
		log:         cfg.Log,
		active:      make(map[string]context.CancelFunc, maxActiveUploads),
		entries:     make([]*importEntry, 0, len(cfg.Entries)),
	}
	for _, desc := range cfg.Entries {
		entry := &importEntry{EntryDescriptor: desc}
		m.entries = append(m.entries, entry)
		m.totalBytes += desc.Size
	}
	m.pending = append(m.pending, m.entries...)
	m.state = StateProgress{TotalBytes: m.totalBytes}
	return m, nil
}

// State returns the most recently published state.
func (m *ImportManager) State() ImportState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start publishes the initial progress state and kicks off peer resolution
// and session initiation in the background. The given context parents every
// operation the manager runs; canceling it is equivalent to Close.
func (m *ImportManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	} else if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.baseCtx, m.baseCancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.publishProgress()
	go m.initialize(m.baseCtx)
	return nil
}

// Close tears down the manager: the initiation call and every active entry
// upload are canceled immediately and no further states are published.
// Close is idempotent.
func (m *ImportManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancels := m.drainActiveLocked()
	m.pending = nil
	cancel := m.baseCancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	for _, c := range cancels {
		c()
	}
	m.log.Debug().Msg("Import manager closed")
}

// drainActiveLocked empties the active map and returns the cancel funcs so
// they can be invoked without holding mu.
func (m *ImportManager) drainActiveLocked() []context.CancelFunc {
	cancels := make([]context.CancelFunc, 0, len(m.active))
	for _, c := range m.active {
		cancels = append(cancels, c)
	}
	m.active = make(map[string]context.CancelFunc)
	return cancels
}

func (m *ImportManager) initialize(ctx context.Context) {
	peer := m.peer
	if m.resolver != nil {
		resolved, err := m.resolver.ResolveImportPeer(ctx, peer)
		if err != nil {
			m.fail(ErrorGeneric, fmt.Errorf("failed to resolve import peer: %w", err))
			return
		}
		peer = resolved
	}
	session, err := m.client.InitiateSession(ctx, peer, m.primaryFile, len(m.entries))
	if err != nil {
		if ctx.Err() != nil {
			// Superseded by teardown, not a real failure.
			return
		}
		m.fail(KindOf(err), fmt.Errorf("failed to initiate import session: %w", err))
		return
	}
	m.mu.Lock()
	if m.closed || m.failed {
		m.mu.Unlock()
		return
	}
	m.session = session
	m.mu.Unlock()
	m.log.Debug().Str("session_id", session.ID).Int("entries", len(m.entries)).Msg("Import session initiated")
	m.fillSlots()
}

// fillSlots is the scheduling step. It runs at session-ready time and after
// every entry completion, and enforces the invariants: never more than
// maxActiveUploads in flight, FIFO start order, no new work after an error,
// finalize only once the queue is empty and the active set has drained.
func (m *ImportManager) fillSlots() {
	for {
		m.mu.Lock()
		if m.session == nil || m.failed || m.done || m.closed || m.finalizing {
			m.mu.Unlock()
			return
		}
		if len(m.active) >= maxActiveUploads {
			m.mu.Unlock()
			return
		}
		if len(m.pending) == 0 {
			if len(m.active) > 0 {
				m.mu.Unlock()
				return
			}
			m.finalizing = true
			m.mu.Unlock()
			m.finalize()
			return
		}
		entry := m.pending[0]
		m.pending = m.pending[1:]
		entryCtx, cancel := context.WithCancel(m.baseCtx)
		m.active[entry.Path] = cancel
		m.mu.Unlock()
		go m.processEntry(entryCtx, entry)
	}
}

// processEntry runs one entry's pipeline: extract to a temp file, then upload
// it under the open session, forwarding fractional progress into the
// aggregate counters.
func (m *ImportManager) processEntry(ctx context.Context, entry *importEntry) {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	tempPath, err := m.extractor.ExtractEntry(ctx, entry.Path)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.entryFailed(entry, ErrorGeneric, fmt.Errorf("failed to extract %s: %w", entry.Path, err))
		return
	}
	err = m.client.UploadEntry(ctx, session, tempPath, entry.Name, entry.MIMEType, entry.Media, func(fraction float64) {
		m.entryProgress(entry, fraction)
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.entryFailed(entry, KindOf(err), fmt.Errorf("failed to upload %s: %w", entry.Path, err))
		return
	}
	m.entryDone(entry)
}

// entryProgress converts an upload fraction into this entry's uploaded-byte
// counter. The counter is clamped so it never moves backwards and never
// exceeds the entry size, which keeps the aggregate monotonic and bounded.
func (m *ImportManager) entryProgress(entry *importEntry, fraction float64) {
	m.mu.Lock()
	if m.failed || m.done || m.closed {
		m.mu.Unlock()
		return
	}
	uploaded := int64(math.Round(fraction * float64(entry.Size)))
	if uploaded > entry.Size {
		uploaded = entry.Size
	}
	if uploaded > entry.uploadedBytes {
		entry.uploadedBytes = uploaded
	}
	m.mu.Unlock()
	m.publishProgress()
}

func (m *ImportManager) entryDone(entry *importEntry) {
	m.mu.Lock()
	entry.uploadedBytes = entry.Size
	cancel, ok := m.active[entry.Path]
	delete(m.active, entry.Path)
	m.mu.Unlock()
	if ok {
		cancel()
	}
	m.log.Debug().Str("entry", entry.Path).Msg("Entry upload finished")
	m.publishProgress()
	m.fillSlots()
}

// entryFailed implements the fail-fast policy: the first entry error moves
// the manager to the terminal error state and cancels every other active
// upload. The failed entry is not retried here; retry is a caller-initiated
// restart of the whole pipeline.
func (m *ImportManager) entryFailed(entry *importEntry, kind ErrorKind, err error) {
	m.mu.Lock()
	cancel, ok := m.active[entry.Path]
	delete(m.active, entry.Path)
	m.mu.Unlock()
	if ok {
		cancel()
	}
	m.fail(kind, err)
}

func (m *ImportManager) fail(kind ErrorKind, err error) {
	m.mu.Lock()
	if m.failed || m.done || m.closed {
		m.mu.Unlock()
		return
	}
	m.failed = true
	cancels := m.drainActiveLocked()
	m.pending = nil
	m.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	m.log.Err(err).Stringer("kind", kind).Msg("Import failed")
	m.publishState(StateError{Kind: kind})
}

// finalize commits the open session. It is reached exactly once, when the
// pending queue is empty and no uploads remain active.
func (m *ImportManager) finalize() {
	m.mu.Lock()
	session := m.session
	ctx := m.baseCtx
	m.mu.Unlock()
	if session == nil {
		// Unreachable given the session gate in fillSlots, but the state
		// machine must not hang if it ever happens.
		m.fail(ErrorGeneric, ErrSessionNotInitialized)
		return
	}
	if err := m.client.CommitSession(ctx, session); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.fail(ErrorGeneric, fmt.Errorf("failed to commit import session: %w", err))
		return
	}
	m.mu.Lock()
	if m.failed || m.closed {
		m.mu.Unlock()
		return
	}
	m.done = true
	m.mu.Unlock()
	m.log.Info().Str("session_id", session.ID).Msg("Import committed")
	m.publishState(StateDone{})
}

func (m *ImportManager) uploadedBytesLocked() int64 {
	var uploaded int64
	for _, entry := range m.entries {
		uploaded += entry.uploadedBytes
	}
	return uploaded
}

// publishProgress recomputes the aggregate under the dispatch lock so that
// concurrent per-entry callbacks can't publish totals out of order.
func (m *ImportManager) publishProgress() {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	m.mu.Lock()
	if m.failed || m.done || m.closed {
		m.mu.Unlock()
		return
	}
	state := StateProgress{TotalBytes: m.totalBytes, UploadedBytes: m.uploadedBytesLocked()}
	m.state = state
	m.mu.Unlock()
	m.dispatchState(state)
}

func (m *ImportManager) publishState(state ImportState) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.state = state
	m.mu.Unlock()
	m.dispatchState(state)
}
