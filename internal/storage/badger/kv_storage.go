package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/sicknote/internal/interfaces"
)

// SecretStorage keeps credentials in badgerhold keyed by lowercase name
type SecretStorage struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

var _ interfaces.KeyValueStorage = (*SecretStorage)(nil)

// NewSecretStorage creates a secret store over an open badgerhold store
func NewSecretStorage(store *badgerhold.Store, logger arbor.ILogger) *SecretStorage {
	return &SecretStorage{store: store, logger: logger}
}

func secretKey(name string) string {
	return "secret:" + strings.ToLower(strings.TrimSpace(name))
}

func (s *SecretStorage) Get(ctx context.Context, name string) (string, error) {
	var secret interfaces.Secret
	if err := s.store.Get(secretKey(name), &secret); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return "", interfaces.ErrKeyNotFound
		}
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	return secret.Value, nil
}

// Set upserts the secret, keeping CreatedAt of an existing entry
func (s *SecretStorage) Set(ctx context.Context, name, value, source string) error {
	_, err := s.put(name, value, source)
	return err
}

// put reports whether the name was new
func (s *SecretStorage) put(name, value, source string) (bool, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false, fmt.Errorf("secret name is required")
	}

	now := time.Now()
	secret := interfaces.Secret{Name: name, Value: value, Source: source, CreatedAt: now, UpdatedAt: now}

	var existing interfaces.Secret
	err := s.store.Get(secretKey(name), &existing)
	isNew := errors.Is(err, badgerhold.ErrNotFound)
	if err == nil {
		secret.CreatedAt = existing.CreatedAt
	} else if !isNew {
		return false, fmt.Errorf("failed to read secret %s: %w", name, err)
	}

	if err := s.store.Upsert(secretKey(name), &secret); err != nil {
		return false, fmt.Errorf("failed to store secret %s: %w", name, err)
	}
	s.logger.Debug().Str("name", name).Str("source", source).Bool("new", isNew).Msg("Secret stored")
	return isNew, nil
}

func (s *SecretStorage) Delete(ctx context.Context, name string) error {
	err := s.store.Delete(secretKey(name), &interfaces.Secret{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete secret %s: %w", name, err)
	}
	return nil
}

func (s *SecretStorage) Names(ctx context.Context) ([]string, error) {
	var secrets []interfaces.Secret
	if err := s.store.Find(&secrets, badgerhold.Where("Name").Ne("").SortBy("Name")); err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	names := make([]string, len(secrets))
	for i, secret := range secrets {
		names[i] = secret.Name
	}
	return names, nil
}
