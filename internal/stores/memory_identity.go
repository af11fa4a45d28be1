package stores

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/callvault/authcore/internal/account"
)

// MemoryIdentityStore is an in-process account.Store. A single mutex covers
// the record map and every index, which makes Create and the Consume* paths
// trivially atomic. Suitable for tests and single-process embedding; nothing
// is persisted.
type MemoryIdentityStore struct {
	mu sync.Mutex

	byID    map[string]*memoryIdentityRecord
	byEmail map[string]string
	byEmpID map[string]string
	byVerif map[[32]byte]string
	byReset map[[32]byte]string
}

type memoryIdentityRecord struct {
	identity account.Identity

	verificationTokenHash [32]byte
	verificationExpiresAt time.Time
	hasVerificationToken  bool

	resetTokenHash [32]byte
	resetExpiresAt time.Time
	hasResetToken  bool
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		byID:    make(map[string]*memoryIdentityRecord),
		byEmail: make(map[string]string),
		byEmpID: make(map[string]string),
		byVerif: make(map[[32]byte]string),
		byReset: make(map[[32]byte]string),
	}
}

func (s *MemoryIdentityStore) Create(ctx context.Context, identity account.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[identity.Email]; exists {
		return account.ErrDuplicateEmail
	}
	s.byID[identity.ID] = &memoryIdentityRecord{identity: identity}
	s.byEmail[identity.Email] = identity.ID
	return nil
}

func (s *MemoryIdentityStore) GetByID(ctx context.Context, id string) (account.Identity, error) {
	if err := ctx.Err(); err != nil {
		return account.Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return account.Identity{}, account.ErrNotFound
	}
	return rec.identity, nil
}

func (s *MemoryIdentityStore) GetByEmail(ctx context.Context, email string) (account.Identity, error) {
	if err := ctx.Err(); err != nil {
		return account.Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return account.Identity{}, account.ErrNotFound
	}
	return s.byID[id].identity, nil
}

func (s *MemoryIdentityStore) GetByEmployeeID(ctx context.Context, employeeID string) (account.Identity, error) {
	if err := ctx.Err(); err != nil {
		return account.Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmpID[employeeID]
	if !ok {
		return account.Identity{}, account.ErrNotFound
	}
	return s.byID[id].identity, nil
}

func (s *MemoryIdentityStore) UpdatePasswordHash(ctx context.Context, id, newHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return account.ErrNotFound
	}
	rec.identity.PasswordHash = newHash
	rec.identity.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryIdentityStore) SetVerificationToken(ctx context.Context, id string, tokenHash [32]byte, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return account.ErrNotFound
	}

	if rec.hasVerificationToken {
		delete(s.byVerif, rec.verificationTokenHash)
	}
	rec.verificationTokenHash = tokenHash
	rec.verificationExpiresAt = expiresAt
	rec.hasVerificationToken = true
	s.byVerif[tokenHash] = id
	return nil
}

func (s *MemoryIdentityStore) SetResetToken(ctx context.Context, id string, tokenHash [32]byte, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return account.ErrNotFound
	}

	if rec.hasResetToken {
		delete(s.byReset, rec.resetTokenHash)
	}
	rec.resetTokenHash = tokenHash
	rec.resetExpiresAt = expiresAt
	rec.hasResetToken = true
	s.byReset[tokenHash] = id
	return nil
}

func (s *MemoryIdentityStore) ConsumeVerificationToken(
	ctx context.Context,
	tokenHash [32]byte,
	employeeID string,
	now time.Time,
) (account.Identity, error) {
	if err := ctx.Err(); err != nil {
		return account.Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byVerif[tokenHash]
	if !ok {
		return account.Identity{}, account.ErrTokenInvalid
	}
	// Single use: the index entry goes away regardless of what follows.
	delete(s.byVerif, tokenHash)

	rec, ok := s.byID[id]
	if !ok {
		return account.Identity{}, account.ErrTokenInvalid
	}
	if !rec.hasVerificationToken ||
		subtle.ConstantTimeCompare(rec.verificationTokenHash[:], tokenHash[:]) != 1 ||
		now.After(rec.verificationExpiresAt) {
		return account.Identity{}, account.ErrTokenInvalid
	}

	rec.hasVerificationToken = false
	rec.verificationTokenHash = [32]byte{}
	rec.verificationExpiresAt = time.Time{}
	rec.identity.EmailVerified = true
	rec.identity.EmployeeID = employeeID
	rec.identity.UpdatedAt = now.UTC()
	s.byEmpID[employeeID] = id

	return rec.identity, nil
}

func (s *MemoryIdentityStore) ConsumeResetToken(
	ctx context.Context,
	tokenHash [32]byte,
	newHash string,
	now time.Time,
) (account.Identity, error) {
	if err := ctx.Err(); err != nil {
		return account.Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byReset[tokenHash]
	if !ok {
		return account.Identity{}, account.ErrTokenInvalid
	}
	delete(s.byReset, tokenHash)

	rec, ok := s.byID[id]
	if !ok {
		return account.Identity{}, account.ErrTokenInvalid
	}
	if !rec.hasResetToken ||
		subtle.ConstantTimeCompare(rec.resetTokenHash[:], tokenHash[:]) != 1 ||
		now.After(rec.resetExpiresAt) {
		return account.Identity{}, account.ErrTokenInvalid
	}

	rec.hasResetToken = false
	rec.resetTokenHash = [32]byte{}
	rec.resetExpiresAt = time.Time{}
	rec.identity.PasswordHash = newHash
	rec.identity.UpdatedAt = now.UTC()

	return rec.identity, nil
}
