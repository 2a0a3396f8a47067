package twitch

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/antlu/drops-farmer/internal/crypto"
	"github.com/antlu/drops-farmer/internal/interfaces"
)

var ErrNoAccount = errors.New("no account registered")

// TokenManager keeps accounts in the store with their tokens sealed by cipher.
type TokenManager struct {
	mu       sync.RWMutex
	cache    map[string]Account
	store    interfaces.DBQueryExecCloser
	cipher   crypto.Cipher
	validate func(accessToken string) (Account, error)
}

func NewTokenManager(store interfaces.DBQueryExecCloser, cipher crypto.Cipher) *TokenManager {
	return &TokenManager{
		store:    store,
		cache:    make(map[string]Account),
		cipher:   cipher,
		validate: ResolveAccount,
	}
}

func (tm *TokenManager) updateCache(account Account) {
	tm.mu.Lock()
	tm.cache[account.ID] = account
	tm.mu.Unlock()
}

func (tm *TokenManager) SaveAccount(account Account) error {
	accessToken, err := tm.cipher.Encrypt(account.AccessToken)
	if err != nil {
		return fmt.Errorf("error encrypting access token: %w", err)
	}

	var exists bool
	err = tm.store.QueryRow("SELECT EXISTS (SELECT 1 FROM accounts WHERE id = ?)", account.ID).Scan(&exists)
	if err != nil {
		return err
	}

	timeNow := time.Now().UTC().Format(time.RFC3339Nano)
	if !exists {
		_, err = tm.store.Exec(
			"INSERT INTO accounts (id, login, access_token, updated_at) VALUES (?, ?, ?, ?)",
			account.ID, account.Login, accessToken, timeNow,
		)
	} else {
		_, err = tm.store.Exec(
			"UPDATE accounts SET login = ?, access_token = ?, updated_at = ? WHERE id = ?",
			account.Login, accessToken, timeNow, account.ID,
		)
	}
	if err != nil {
		return fmt.Errorf("error updating token store: %w", err)
	}

	tm.updateCache(account)
	log.Printf("Stored account %s", account.Login)
	return nil
}

// LatestAccount returns the most recently stored account.
func (tm *TokenManager) LatestAccount() (Account, error) {
	var id, login, accessToken string

	err := tm.store.QueryRow(
		"SELECT id, login, access_token FROM accounts ORDER BY updated_at DESC LIMIT 1",
	).Scan(&id, &login, &accessToken)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNoAccount
	}
	if err != nil {
		return Account{}, err
	}

	tm.mu.RLock()
	cached, ok := tm.cache[id]
	tm.mu.RUnlock()
	if ok {
		return cached, nil
	}

	accessToken, err = tm.cipher.Decrypt(accessToken)
	if err != nil {
		return Account{}, fmt.Errorf("error decrypting access token: %w", err)
	}

	account := Account{ID: id, Login: login, AccessToken: accessToken}
	tm.updateCache(account)
	return account, nil
}

// ValidAccount loads the latest account and checks its token is still accepted.
func (tm *TokenManager) ValidAccount() (Account, error) {
	account, err := tm.LatestAccount()
	if err != nil {
		return Account{}, err
	}

	resolved, err := tm.validate(account.AccessToken)
	if err != nil {
		return Account{}, fmt.Errorf("account %s: %w", account.Login, err)
	}
	if resolved.Login != account.Login {
		account.Login = resolved.Login
		if err := tm.SaveAccount(account); err != nil {
			return Account{}, err
		}
	}
	return account, nil
}
