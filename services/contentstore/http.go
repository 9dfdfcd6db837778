package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"vitrine/core/types"
)

// GatewayCredentials are the account headers the storage gateway expects on
// uploads.
type GatewayCredentials struct {
	Territory string
	Account   string
	Message   string
	Signature string
}

// HTTPStore talks to a decentralised storage gateway: uploads are multipart
// PUT /file and downloads are GET /file/download/{fid}.
type HTTPStore struct {
	baseURL     string
	client      *http.Client
	credentials GatewayCredentials
	maxPayload  int64
}

// NewHTTPStore constructs a gateway client. A nil client uses a 30 second
// timeout.
func NewHTTPStore(baseURL string, creds GatewayCredentials, client *http.Client) (*HTTPStore, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("contentstore: gateway url required")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("contentstore: invalid gateway url: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPStore{baseURL: trimmed, client: client, credentials: creds, maxPayload: 32 << 20}, nil
}

type uploadResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		FID string `json:"fid"`
	} `json:"data"`
}

// Store uploads data and returns the gateway's file id.
func (s *HTTPStore) Store(ctx context.Context, data []byte) (types.ContentID, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "vitrine_"+uuid.NewString()+".json")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL+"/file", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	s.setCredentials(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("contentstore: upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("contentstore: upload: gateway returned %d", resp.StatusCode)
	}
	var decoded uploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("contentstore: decode upload response: %w", err)
	}
	fid := types.NormalizeContentID(decoded.Data.FID)
	if fid.IsZero() {
		return "", fmt.Errorf("contentstore: gateway response missing fid")
	}
	return fid, nil
}

// Fetch downloads the payload for id.
func (s *HTTPStore) Fetch(ctx context.Context, id types.ContentID) ([]byte, error) {
	if id.IsZero() {
		return nil, ErrInvalidID
	}
	endpoint := s.baseURL + "/file/download/" + url.PathEscape(id.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contentstore: download: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("contentstore: download: gateway returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxPayload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxPayload {
		return nil, fmt.Errorf("contentstore: payload exceeds %d bytes", s.maxPayload)
	}
	return data, nil
}

func (s *HTTPStore) setCredentials(req *http.Request) {
	c := s.credentials
	for header, value := range map[string]string{
		"Territory": c.Territory,
		"Account":   c.Account,
		"Message":   c.Message,
		"Signature": c.Signature,
	} {
		if value != "" {
			req.Header.Set(header, value)
		}
	}
}
