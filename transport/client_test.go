// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package transport

import (
	"context"
	"crypto/aes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgilyazov/teleimport"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	return NewClient(server.URL, "test-token", zerolog.Nop()), server
}

func TestClient_InitiateSession(t *testing.T) {
	var gotAuth, gotIdempotency string
	var gotBody initiateRequest
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/import/init", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotIdempotency = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(initiateResponse{SessionID: "abc123"})
	}))
	defer server.Close()

	session, err := client.InitiateSession(context.Background(), 42, "_chat.txt", 7)
	require.NoError(t, err)
	assert.Equal(t, "abc123", session.ID)
	assert.Equal(t, teleimport.PeerID(42), session.Peer)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.NotEmpty(t, gotIdempotency)
	assert.Equal(t, initiateRequest{Peer: 42, PrimaryFile: "_chat.txt", MediaCount: 7}, gotBody)
}

func TestClient_InitiateSessionErrorMapping(t *testing.T) {
	for _, test := range []struct {
		name     string
		status   int
		body     string
		expected error
	}{
		{"AdminRequired", http.StatusForbidden, `{"error":"CHAT_ADMIN_REQUIRED"}`, teleimport.ErrChatAdminRequired},
		{"InvalidPeer", http.StatusBadRequest, `{"error":"IMPORT_PEER_INVALID"}`, teleimport.ErrInvalidChatType},
	} {
		t.Run(test.name, func(t *testing.T) {
			client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
				_, _ = w.Write([]byte(test.body))
			}))
			defer server.Close()

			_, err := client.InitiateSession(context.Background(), 42, "_chat.txt", 1)
			assert.ErrorIs(t, err, test.expected)
		})
	}
}

func TestClient_InitiateSessionGenericError(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := client.InitiateSession(context.Background(), 42, "_chat.txt", 1)
	require.Error(t, err)
	assert.Equal(t, teleimport.ErrorGeneric, teleimport.KindOf(err))
}

func TestClient_UploadEntry(t *testing.T) {
	plaintext := make([]byte, 1000)
	for i := range plaintext {
		plaintext[i] = byte(i)
	}
	tempPath := filepath.Join(t.TempDir(), "entry.bin")
	require.NoError(t, os.WriteFile(tempPath, plaintext, 0o600))

	var gotQuery map[string]string
	var gotLength int
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/import/sess1/media", r.URL.Path)
		gotQuery = map[string]string{
			"name":  r.URL.Query().Get("name"),
			"mime":  r.URL.Query().Get("mime"),
			"media": r.URL.Query().Get("media"),
		}
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotLength = len(body)
	}))
	defer server.Close()

	var mu sync.Mutex
	var fractions []float64
	session := &teleimport.Session{ID: "sess1", Peer: 42}
	err := client.UploadEntry(context.Background(), session, tempPath, "photo.jpg", "image/jpeg", teleimport.MediaPhoto, func(fraction float64) {
		mu.Lock()
		fractions = append(fractions, fraction)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"name": "photo.jpg", "mime": "image/jpeg", "media": "photo"}, gotQuery)

	// IV + padded ciphertext + truncated MAC.
	padded := len(plaintext) + aes.BlockSize - len(plaintext)%aes.BlockSize
	assert.Equal(t, aes.BlockSize+padded+10, gotLength)

	// Progress is monotone and ends at completion.
	require.NotEmpty(t, fractions)
	last := 0.0
	for _, fraction := range fractions {
		require.GreaterOrEqual(t, fraction, last)
		require.LessOrEqual(t, fraction, 1.0)
		last = fraction
	}
	assert.Equal(t, 1.0, last)
}

func TestClient_UploadEntryAdminError(t *testing.T) {
	tempPath := filepath.Join(t.TempDir(), "entry.bin")
	require.NoError(t, os.WriteFile(tempPath, []byte("data"), 0o600))

	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"CHAT_ADMIN_REQUIRED"}`))
	}))
	defer server.Close()

	err := client.UploadEntry(context.Background(), &teleimport.Session{ID: "s"}, tempPath, "a", "text/plain", teleimport.MediaDocument, nil)
	assert.ErrorIs(t, err, teleimport.ErrChatAdminRequired)
}

func TestClient_CommitSession(t *testing.T) {
	var committed string
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		committed = r.URL.Path
	}))
	defer server.Close()

	err := client.CommitSession(context.Background(), &teleimport.Session{ID: "sess9"})
	require.NoError(t, err)
	assert.Equal(t, "/import/sess9/complete", committed)
}

func TestClient_CommitSessionFailure(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	err := client.CommitSession(context.Background(), &teleimport.Session{ID: "sess9"})
	require.Error(t, err)
	assert.Equal(t, teleimport.ErrorGeneric, teleimport.KindOf(err))
}

func TestClient_ResolveImportPeer(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/import/resolve-peer", r.URL.Path)
		var req resolvePeerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// Basic group upgraded to a supergroup ID.
		_ = json.NewEncoder(w).Encode(resolvePeerResponse{Peer: req.Peer + 1000000})
	}))
	defer server.Close()

	peer, err := client.ResolveImportPeer(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, teleimport.PeerID(1000042), peer)
}

func TestExpandMediaKey(t *testing.T) {
	iv, cipherKey, macKey, err := expandMediaKey(make([]byte, 32))
	require.NoError(t, err)
	assert.Len(t, iv, 16)
	assert.Len(t, cipherKey, 32)
	assert.Len(t, macKey, 32)
	// Derivation is deterministic per media key.
	iv2, _, _, err := expandMediaKey(make([]byte, 32))
	require.NoError(t, err)
	assert.Equal(t, iv, iv2)
}
