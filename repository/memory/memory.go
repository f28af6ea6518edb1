// Package memory provides map-backed stores for tests, examples, and
// single-process deployments. A production deployment supplies its own
// database-backed implementations of the same interfaces.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/orionworks/identity"
)

// Store implements identity.UserStore and identity.CredentialStore on plain
// maps guarded by one mutex. E-mail, name, and account hash are unique.
type Store struct {
	mu sync.Mutex

	usersByID   map[string]*identity.User
	idByEmail   map[string]string
	idByName    map[string]string
	idByHash    map[string]string
	credentials map[string]*identity.WebAuthnCredential
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Store {
	return &Store{
		usersByID:   map[string]*identity.User{},
		idByEmail:   map[string]string{},
		idByName:    map[string]string{},
		idByHash:    map[string]string{},
		credentials: map[string]*identity.WebAuthnCredential{},
	}
}

// CreateUser describes the createuser operation and its observable behavior.
//
// CreateUser may return an error when input validation, dependency calls, or security checks fail.
// CreateUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) CreateUser(_ context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnique(user, ""); err != nil {
		return err
	}

	stored := user.Clone()
	s.usersByID[stored.ID] = stored
	s.idByEmail[stored.Email] = stored.ID
	s.idByName[stored.Name] = stored.ID
	s.idByHash[stored.Hash] = stored.ID

	return nil
}

// GetUserByEmail describes the getuserbyemail operation and its observable behavior.
//
// GetUserByEmail may return an error when input validation, dependency calls, or security checks fail.
// GetUserByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.idByEmail[email]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return s.usersByID[id].Clone(), nil
}

// UpdateUser describes the updateuser operation and its observable behavior.
//
// UpdateUser may return an error when input validation, dependency calls, or security checks fail.
// UpdateUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) UpdateUser(_ context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.usersByID[user.ID]
	if !ok {
		return identity.ErrUserNotFound
	}

	if err := s.checkUnique(user, user.ID); err != nil {
		return err
	}

	delete(s.idByEmail, current.Email)
	delete(s.idByName, current.Name)
	delete(s.idByHash, current.Hash)

	stored := user.Clone()
	s.usersByID[stored.ID] = stored
	s.idByEmail[stored.Email] = stored.ID
	s.idByName[stored.Name] = stored.ID
	s.idByHash[stored.Hash] = stored.ID

	return nil
}

// DeleteUser describes the deleteuser operation and its observable behavior.
//
// DeleteUser may return an error when input validation, dependency calls, or security checks fail.
// DeleteUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) DeleteUser(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.idByEmail[email]
	if !ok {
		return identity.ErrUserNotFound
	}

	user := s.usersByID[id]
	delete(s.usersByID, id)
	delete(s.idByEmail, user.Email)
	delete(s.idByName, user.Name)
	delete(s.idByHash, user.Hash)

	for credID, cred := range s.credentials {
		if cred.UserEmail == email {
			delete(s.credentials, credID)
		}
	}

	return nil
}

// ListUsers describes the listusers operation and its observable behavior.
//
// ListUsers may return an error when input validation, dependency calls, or security checks fail.
// ListUsers does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) ListUsers(_ context.Context) ([]*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]*identity.User, 0, len(s.usersByID))
	for _, user := range s.usersByID {
		users = append(users, user.Clone())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })

	return users, nil
}

// SaveCredential describes the savecredential operation and its observable behavior.
//
// SaveCredential may return an error when input validation, dependency calls, or security checks fail.
// SaveCredential does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) SaveCredential(_ context.Context, cred *identity.WebAuthnCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials[cred.CredentialID] = cred.Clone()
	return nil
}

// CredentialsByEmail describes the credentialsbyemail operation and its observable behavior.
//
// CredentialsByEmail may return an error when input validation, dependency calls, or security checks fail.
// CredentialsByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) CredentialsByEmail(_ context.Context, email string) ([]*identity.WebAuthnCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds := make([]*identity.WebAuthnCredential, 0, 4)
	for _, cred := range s.credentials {
		if cred.UserEmail == email {
			creds = append(creds, cred.Clone())
		}
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].CredentialID < creds[j].CredentialID })

	return creds, nil
}

// CredentialByID describes the credentialbyid operation and its observable behavior.
//
// CredentialByID may return an error when input validation, dependency calls, or security checks fail.
// CredentialByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) CredentialByID(_ context.Context, credentialID string) (*identity.WebAuthnCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[credentialID]
	if !ok {
		return nil, identity.ErrCredentialNotFound
	}
	return cred.Clone(), nil
}

// UpdateCredential describes the updatecredential operation and its observable behavior.
//
// UpdateCredential may return an error when input validation, dependency calls, or security checks fail.
// UpdateCredential does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) UpdateCredential(_ context.Context, cred *identity.WebAuthnCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[cred.CredentialID]; !ok {
		return identity.ErrCredentialNotFound
	}
	s.credentials[cred.CredentialID] = cred.Clone()

	return nil
}

func (s *Store) checkUnique(user *identity.User, selfID string) error {
	if id, ok := s.idByEmail[user.Email]; ok && id != selfID {
		return identity.ErrStoreDuplicateEmail
	}
	if id, ok := s.idByName[user.Name]; ok && id != selfID {
		return identity.ErrStoreDuplicateName
	}
	if id, ok := s.idByHash[user.Hash]; ok && id != selfID {
		return identity.ErrStoreDuplicateHash
	}
	return nil
}
