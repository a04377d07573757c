// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

var (
	// ErrSecretNotFound is returned when no secret is stored under a key.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrBackendUnavailable is returned when the keychain is locked or
	// cannot be reached.
	ErrBackendUnavailable = errors.New("keychain unavailable")
)

// DefaultService is the keychain service name entries are stored under.
const DefaultService = "agentdesk"

// TokenKey returns the keychain key for the token of the gateway at url.
func TokenKey(url string) string {
	return "gateway-token/" + strings.TrimRight(url, "/")
}

// Keychain reads and writes secrets in the system keychain.
type Keychain struct {
	service string
}

// NewKeychain returns a Keychain using DefaultService.
func NewKeychain() *Keychain {
	return &Keychain{service: DefaultService}
}

// Get retrieves the secret stored under key.
func (k *Keychain) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	value, err := keyring.Get(k.service, key)
	if err != nil {
		return "", classify(key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any existing entry.
func (k *Keychain) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := keyring.Set(k.service, key, value); err != nil {
		return classify(key, err)
	}
	return nil
}

// Delete removes the entry stored under key.
func (k *Keychain) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := keyring.Delete(k.service, key); err != nil {
		return classify(key, err)
	}
	return nil
}

func classify(key string, err error) error {
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	case isKeychainUnavailableError(err):
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, err.Error())
	default:
		return fmt.Errorf("keychain error: %w", err)
	}
}

// isKeychainUnavailableError checks if an error indicates the keychain is locked or inaccessible.
func isKeychainUnavailableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, keyring.ErrUnsupportedPlatform) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	// Common error indicators across platforms
	unavailableIndicators := []string{
		"locked",
		"cannot access",
		"permission denied",
		"failed to unlock",
		"user interaction required",
		"secret service",
		"dbus",
		"user canceled",
	}

	for _, indicator := range unavailableIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}
