package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"verigate/internal/verification/models"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/sentinel"
)

// MemoryBackend keeps requests and credentials in process memory. It backs
// unit tests and single-node deployments; PostgresBackend is the durable
// sibling.
type MemoryBackend struct {
	mu          sync.RWMutex
	requests    map[id.RequestID]*models.VerificationRequest
	credentials map[id.CredentialID]*models.VerifiedCredential
	// insertion order per user, newest appended last
	userRequests    map[id.UserID][]id.RequestID
	userCredentials map[id.UserID][]id.CredentialID
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		requests:        make(map[id.RequestID]*models.VerificationRequest),
		credentials:     make(map[id.CredentialID]*models.VerifiedCredential),
		userRequests:    make(map[id.UserID][]id.RequestID),
		userCredentials: make(map[id.UserID][]id.CredentialID),
	}
}

func (b *MemoryBackend) InsertRequest(_ context.Context, req models.VerificationRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.requests[req.ID]; exists {
		return fmt.Errorf("request %s: %w", req.ID, sentinel.ErrConflict)
	}
	stored := req
	b.requests[req.ID] = &stored
	b.userRequests[req.UserID] = append(b.userRequests[req.UserID], req.ID)
	return nil
}

func (b *MemoryBackend) UpdateRequestStatus(_ context.Context, requestID id.RequestID, status models.RequestStatus, response map[string]any, verifiedAt *time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	req, exists := b.requests[requestID]
	if !exists {
		return fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
	}
	if req.Status.IsTerminal() {
		return fmt.Errorf("request %s already %s: %w", requestID, req.Status, sentinel.ErrInvalidState)
	}

	req.Status = status
	req.Response = response
	req.VerifiedAt = verifiedAt
	return nil
}

func (b *MemoryBackend) GetRequest(_ context.Context, requestID id.RequestID) (*models.VerificationRequest, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	req, exists := b.requests[requestID]
	if !exists {
		return nil, fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
	}
	copied := *req
	return &copied, nil
}

func (b *MemoryBackend) ListRequestsByUser(_ context.Context, userID id.UserID) ([]models.VerificationRequest, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := b.userRequests[userID]
	out := make([]models.VerificationRequest, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, *b.requests[ids[i]])
	}
	return out, nil
}

func (b *MemoryBackend) InsertCredential(_ context.Context, cred models.VerifiedCredential) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.credentials[cred.ID]; exists {
		return fmt.Errorf("credential %s: %w", cred.ID, sentinel.ErrConflict)
	}
	stored := cred
	b.credentials[cred.ID] = &stored
	b.userCredentials[cred.UserID] = append(b.userCredentials[cred.UserID], cred.ID)
	return nil
}

func (b *MemoryBackend) ListCredentialsByUser(_ context.Context, userID id.UserID) ([]models.VerifiedCredential, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := b.userCredentials[userID]
	out := make([]models.VerifiedCredential, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, *b.credentials[ids[i]])
	}
	return out, nil
}

// Counts reports how many requests exist per status and how many
// credentials exist in total. Used by tests to assert the credential
// creation invariant.
func (b *MemoryBackend) Counts() (map[models.RequestStatus]int, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	byStatus := make(map[models.RequestStatus]int)
	for _, req := range b.requests {
		byStatus[req.Status]++
	}
	return byStatus, len(b.credentials)
}
