// Package remote talks to the TrailSync HTTP backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

// ErrRemoteRejected is returned for non-2xx responses and for bodies carrying success:false.
var ErrRemoteRejected = errors.New("remote: request rejected")

// Doer is the part of *http.Client the store needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StaticAuth is an AuthProvider with fixed credentials, typically taken from config or env.
type StaticAuth struct {
	BearerToken string
	User        string
}

func (a StaticAuth) Token() string  { return a.BearerToken }
func (a StaticAuth) UserID() string { return a.User }

// Store implements ports.RemoteStore against the JSON API.
type Store struct {
	baseURL string
	client  Doer
	auth    ports.AuthProvider
}

func NewStore(baseURL string, client Doer, auth ports.AuthProvider) *Store {
	if client == nil {
		client = http.DefaultClient
	}
	if auth == nil {
		auth = StaticAuth{}
	}
	return &Store{baseURL: strings.TrimRight(baseURL, "/"), client: client, auth: auth}
}

func (s *Store) Name() string { return "http" }

type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e envelope) rejected() error {
	if e.Success == nil || *e.Success {
		return nil
	}
	reason := e.Error
	if reason == "" {
		reason = e.Message
	}
	if reason == "" {
		reason = "success=false"
	}
	return fmt.Errorf("%w: %s", ErrRemoteRejected, reason)
}

func (s *Store) StartSession(ctx context.Context, start *domain.Position) (string, error) {
	var resp struct {
		envelope
		SessionID string `json:"sessionId"`
	}
	body := struct {
		StartLocation *domain.Position `json:"startLocation,omitempty"`
	}{start}
	if err := s.do(ctx, http.MethodPost, "/api/session/start", body, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("%w: no sessionId in response", ErrRemoteRejected)
	}
	return resp.SessionID, nil
}

func (s *Store) StopSession(ctx context.Context, sessionID string) error {
	var resp envelope
	body := struct {
		SessionID string `json:"sessionId"`
	}{sessionID}
	return s.do(ctx, http.MethodPost, "/api/session/stop", body, &resp)
}

func (s *Store) UploadBatch(ctx context.Context, sessionID string, points []domain.DataPoint) ([]domain.ClassifiedPoint, error) {
	var resp struct {
		envelope
		ClassifiedData []domain.ClassifiedPoint `json:"classifiedData"`
	}
	body := struct {
		SessionID  string             `json:"sessionId"`
		SensorData []domain.DataPoint `json:"sensorData"`
	}{sessionID, points}
	if err := s.do(ctx, http.MethodPost, "/api/data", body, &resp); err != nil {
		return nil, err
	}
	return resp.ClassifiedData, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var resp struct {
		envelope
		Sessions json.RawMessage `json:"sessions"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/sessions?limit="+strconv.Itoa(limit), nil, &resp); err != nil {
		return nil, err
	}
	wire, err := decodeSessions(resp.Sessions)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SessionSummary, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.summary())
	}
	return out, nil
}

func (s *Store) SessionPoints(ctx context.Context, sessionID string) ([]domain.DataPoint, error) {
	var resp struct {
		envelope
		Data struct {
			DataPoints []domain.DataPoint `json:"dataPoints"`
		} `json:"data"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data.DataPoints, nil
}

type rejecter interface{ rejected() error }

func (s *Store) do(ctx context.Context, method, path string, body any, out rejecter) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := s.auth.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s: %s", ErrRemoteRejected, method, path, resp.Status)
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	return out.rejected()
}

var _ ports.RemoteStore = (*Store)(nil)
