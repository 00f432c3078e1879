package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/strangelove-ventures/cctp-transfer/types"
)

// IrisResponse is one scripted reply of the attestation service
type IrisResponse struct {
	StatusCode  int // defaults to 200
	Status      string
	Message     string
	Attestation string
	Messages    []types.MessageResponseV2 // overrides Status/Message/Attestation when set
}

// IrisServer replays scripted responses in order, repeating the last one once exhausted
type IrisServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses []IrisResponse
	requests  []IrisRequest
}

type IrisRequest struct {
	Path  string
	Query string
	At    time.Time
}

func NewIrisServer(t *testing.T, responses ...IrisResponse) *IrisServer {
	t.Helper()

	s := &IrisServer{responses: responses}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *IrisServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	idx := len(s.requests)
	s.requests = append(s.requests, IrisRequest{Path: r.URL.Path, Query: r.URL.RawQuery, At: time.Now()})
	var resp IrisResponse
	switch {
	case len(s.responses) == 0:
		resp = IrisResponse{StatusCode: http.StatusNotFound}
	case idx < len(s.responses):
		resp = s.responses[idx]
	default:
		resp = s.responses[len(s.responses)-1]
	}
	s.mu.Unlock()

	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusNoContent:
		return
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = w.Write([]byte(`{"error":"Message not found"}`))
		return
	}

	if isV1(r.URL.Path) {
		_ = json.NewEncoder(w).Encode(types.AttestationResponse{
			Attestation: resp.Attestation,
			Status:      resp.Status,
		})
		return
	}

	messages := resp.Messages
	if messages == nil {
		messages = []types.MessageResponseV2{{
			Message:     resp.Message,
			Attestation: resp.Attestation,
			Status:      resp.Status,
			CctpVersion: "1",
		}}
	}
	_ = json.NewEncoder(w).Encode(types.AttestationResponseV2{Messages: messages})
}

func isV1(path string) bool {
	return len(path) > len("/attestations/") && path[:len("/attestations/")] == "/attestations/"
}

// Requests returns every request received so far
func (s *IrisServer) Requests() []IrisRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]IrisRequest(nil), s.requests...)
}
