// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package transport implements the remote import API over HTTP: session
// initiation, entry uploads with byte-level progress, peer resolution and
// the final commit.
package transport

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/hkdf"

	"github.com/lgilyazov/teleimport"
	"github.com/lgilyazov/teleimport/crypto/cbc"
)

// historyKeyInfo is the HKDF info string used to expand per-upload media keys.
const historyKeyInfo = "Chat History Import Keys"

// Client talks to the import endpoints of the messaging service. It
// implements teleimport.SessionClient and teleimport.PeerResolver.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Token   string
	Log     zerolog.Logger
}

var (
	_ teleimport.SessionClient = (*Client)(nil)
	_ teleimport.PeerResolver  = (*Client)(nil)
)

func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	return &Client{
		HTTP:    http.DefaultClient,
		BaseURL: baseURL,
		Token:   token,
		Log:     log,
	}
}

type initiateRequest struct {
	Peer        teleimport.PeerID `json:"peer"`
	PrimaryFile string            `json:"primary_file"`
	MediaCount  int               `json:"media_count"`
}

type initiateResponse struct {
	SessionID string `json:"session_id"`
}

// InitiateSession opens a server-side import transaction for the target
// conversation. Each call carries a fresh idempotency key, so a restarted
// pipeline always gets a distinct session.
func (c *Client) InitiateSession(ctx context.Context, peer teleimport.PeerID, primaryFile string, entryCount int) (*teleimport.Session, error) {
	body, err := json.Marshal(initiateRequest{Peer: peer, PrimaryFile: primaryFile, MediaCount: entryCount})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initiate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/import/init", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.responseError(resp)
	}
	var parsed initiateResponse
	if err = json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse initiate response: %w", err)
	}
	c.Log.Debug().Str("session_id", parsed.SessionID).Int64("peer", int64(peer)).Msg("Initiated import session")
	return &teleimport.Session{ID: parsed.SessionID, Peer: peer}, nil
}

// UploadEntry encrypts the extracted entry with a fresh media key and streams
// it to the server under the open session. onProgress receives the fraction
// of the request body written so far; the last callback before a successful
// return reports 1.
func (c *Client) UploadEntry(ctx context.Context, session *teleimport.Session, filePath, displayName, mimeType string, media teleimport.MediaType, onProgress func(float64)) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read extracted entry: %w", err)
	}
	mediaKey := make([]byte, 32)
	if _, err = rand.Read(mediaKey); err != nil {
		return err
	}
	iv, cipherKey, macKey, err := expandMediaKey(mediaKey)
	if err != nil {
		return err
	}
	enc, err := cbc.Encrypt(cipherKey, iv, data)
	if err != nil {
		return fmt.Errorf("failed to encrypt entry: %w", err)
	}
	h := hmac.New(sha256.New, macKey)
	h.Write(iv)
	h.Write(enc)
	mac := h.Sum(nil)[:10]

	payload := make([]byte, 0, len(iv)+len(enc)+len(mac))
	payload = append(payload, iv...)
	payload = append(payload, enc...)
	payload = append(payload, mac...)

	q := url.Values{
		"name":  []string{displayName},
		"mime":  []string{mimeType},
		"media": []string{string(media)},
	}
	uploadURL := fmt.Sprintf("%s/import/%s/media?%s", c.BaseURL, url.PathEscape(session.ID), q.Encode())
	body := &progressReader{
		reader:     bytes.NewReader(payload),
		total:      int64(len(payload)),
		onProgress: onProgress,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, body)
	if err != nil {
		return fmt.Errorf("failed to prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(payload))
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.responseError(resp)
	}
	c.Log.Debug().Str("session_id", session.ID).Str("name", displayName).Int("bytes", len(data)).Msg("Uploaded entry")
	return nil
}

// CommitSession finalizes the import transaction. After a successful commit
// the session is spent and cannot be reused.
func (c *Client) CommitSession(ctx context.Context, session *teleimport.Session) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/import/"+url.PathEscape(session.ID)+"/complete", nil)
	if err != nil {
		return fmt.Errorf("failed to prepare request: %w", err)
	}
	c.authorize(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.responseError(resp)
	}
	c.Log.Debug().Str("session_id", session.ID).Msg("Committed import session")
	return nil
}

type resolvePeerRequest struct {
	Peer teleimport.PeerID `json:"peer"`
}

type resolvePeerResponse struct {
	Peer teleimport.PeerID `json:"peer"`
}

// ResolveImportPeer asks the server to normalize the target conversation,
// upgrading basic groups to supergroups where import requires it.
func (c *Client) ResolveImportPeer(ctx context.Context, peer teleimport.PeerID) (teleimport.PeerID, error) {
	body, err := json.Marshal(resolvePeerRequest{Peer: peer})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal resolve request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/import/resolve-peer", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, c.responseError(resp)
	}
	var parsed resolvePeerResponse
	if err = json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to parse resolve response: %w", err)
	}
	return parsed.Peer, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.Token)
}

// responseError maps the server's error payload to the sentinel errors the
// manager classifies on. Unknown payloads become plain status-code errors,
// which the manager treats as generic.
func (c *Client) responseError(resp *http.Response) error {
	var parsed struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	switch parsed.Error {
	case "CHAT_ADMIN_REQUIRED":
		return teleimport.ErrChatAdminRequired
	case "IMPORT_PEER_INVALID":
		return teleimport.ErrInvalidChatType
	}
	return fmt.Errorf("request failed with status code %d", resp.StatusCode)
}

func expandMediaKey(mediaKey []byte) (iv, cipherKey, macKey []byte, err error) {
	h := hkdf.New(sha256.New, mediaKey, nil, []byte(historyKeyInfo))
	expanded := make([]byte, 80)
	if _, err = io.ReadFull(h, expanded); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to expand media key: %w", err)
	}
	return expanded[:16], expanded[16:48], expanded[48:80], nil
}

// progressReader counts bytes handed to the HTTP transport and reports them
// as a fraction of the payload size.
type progressReader struct {
	reader     *bytes.Reader
	total      int64
	read       int64
	onProgress func(float64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		if pr.onProgress != nil && pr.total > 0 {
			fraction := float64(pr.read) / float64(pr.total)
			if fraction > 1 {
				fraction = 1
			}
			pr.onProgress(fraction)
		}
	}
	return n, err
}
