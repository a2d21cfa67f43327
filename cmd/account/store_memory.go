package account

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a process-local Store used when no external store is configured
// and in tests. It enforces email uniqueness under its lock.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byEmail map[string]string // normalized email -> id
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]Account),
		byEmail: make(map[string]string),
	}
}

// GetByID loads an account by id.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "account.MemoryStore.GetByID"
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return Account{}, NotFoundError{Op: op, ID: id}
	}
	return a.clone(), nil
}

// GetByEmail loads an account by normalized email.
func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	const op = "account.MemoryStore.GetByEmail"
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return Account{}, NotFoundError{Op: op}
	}
	return s.byID[id].clone(), nil
}

// Insert stores a new account, failing on an existing id or email.
func (s *MemoryStore) Insert(ctx context.Context, a Account) (Account, error) {
	const op = "account.MemoryStore.Insert"
	if err := validateNew(op, a); err != nil {
		return Account{}, err
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	a = a.clone()
	a.Email = NormalizeEmail(a.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[a.ID]; exists {
		return Account{}, ConflictError{Op: op, Field: "id"}
	}
	if _, exists := s.byEmail[a.Email]; exists {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}

	s.byID[a.ID] = a
	s.byEmail[a.Email] = a.ID
	return a.clone(), nil
}

// SetActiveCredential overwrites the session slot (last writer wins).
func (s *MemoryStore) SetActiveCredential(ctx context.Context, id, credential string) error {
	const op = "account.MemoryStore.SetActiveCredential"
	if credential == "" {
		return invalid(op, "empty credential")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, ID: id}
	}
	a.ActiveCredential = &credential
	s.byID[id] = a
	return nil
}

// ClearActiveCredential empties the session slot. Missing accounts are a no-op.
func (s *MemoryStore) ClearActiveCredential(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return nil
	}
	a.ActiveCredential = nil
	s.byID[id] = a
	return nil
}

// DeleteByIDAndEmail removes the account only if its email still matches.
func (s *MemoryStore) DeleteByIDAndEmail(ctx context.Context, id, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok || a.Email != NormalizeEmail(email) {
		return false, nil
	}
	delete(s.byID, id)
	delete(s.byEmail, a.Email)
	return true, nil
}

// ListNonAdmin returns every account whose role is not admin, ordered by id.
func (s *MemoryStore) ListNonAdmin(ctx context.Context) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]Account, 0, len(s.byID))
	for _, a := range s.byID {
		if a.Role == RoleAdmin {
			continue
		}
		out = append(out, a.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }
