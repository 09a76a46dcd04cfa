// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package teleimport

import (
	"sync/atomic"
)

// ImportState is the externally observable status of an import. Exactly three
// variants exist: StateProgress, StateError and StateDone. StateError and
// StateDone are terminal: after either is published the manager is quiescent
// and schedules no further work.
type ImportState interface {
	isImportState()
}

// StateProgress reports aggregate upload progress in bytes. UploadedBytes is
// never negative and never exceeds TotalBytes.
type StateProgress struct {
	TotalBytes    int64
	UploadedBytes int64
}

// StateError is the terminal failure state.
type StateError struct {
	Kind ErrorKind
}

// StateDone is the terminal success state, reached only after every entry has
// uploaded and the session has been committed.
type StateDone struct{}

func (StateProgress) isImportState() {}
func (StateError) isImportState()    {}
func (StateDone) isImportState()     {}

// StateHandler is a function that can handle state updates from an ImportManager.
type StateHandler func(state ImportState)

var nextStateHandlerID uint32

type wrappedStateHandler struct {
	fn StateHandler
	id uint32
}

// AddStateHandler registers a new function to receive all state updates
// published by this manager.
//
// The returned integer is the handler ID, which can be passed to
// RemoveStateHandler to remove it.
func (m *ImportManager) AddStateHandler(handler StateHandler) uint32 {
	nextID := atomic.AddUint32(&nextStateHandlerID, 1)
	m.stateHandlersLock.Lock()
	m.stateHandlers = append(m.stateHandlers, wrappedStateHandler{handler, nextID})
	m.stateHandlersLock.Unlock()
	return nextID
}

// RemoveStateHandler removes a previously registered state handler function.
// If a handler with the given ID is found, this returns true.
func (m *ImportManager) RemoveStateHandler(id uint32) bool {
	m.stateHandlersLock.Lock()
	defer m.stateHandlersLock.Unlock()
	for index := range m.stateHandlers {
		if m.stateHandlers[index].id == id {
			if index == 0 {
				m.stateHandlers[0].fn = nil
				m.stateHandlers = m.stateHandlers[1:]
				return true
			} else if index < len(m.stateHandlers)-1 {
				copy(m.stateHandlers[index:], m.stateHandlers[index+1:])
			}
			m.stateHandlers[len(m.stateHandlers)-1].fn = nil
			m.stateHandlers = m.stateHandlers[:len(m.stateHandlers)-1]
			return true
		}
	}
	return false
}

func (m *ImportManager) dispatchState(state ImportState) {
	m.stateHandlersLock.RLock()
	for _, handler := range m.stateHandlers {
		handler.fn(state)
	}
	m.stateHandlersLock.RUnlock()
}
