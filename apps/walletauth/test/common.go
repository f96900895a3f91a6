//go:build integration

package test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// Default test server address, override with WALLETAUTH_BASE_URL
	DefaultBaseURL = "http://localhost:8080"

	MsgWalletCreated   = "Successfully added wallet and created user"
	MsgWalletConnected = "Successfully updated last visit time"

	maxRateLimitRetries = 20
)

// ErrorResponse represents the API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SessionResponse represents the response of GET /api/session
type SessionResponse struct {
	UserID        int64  `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
	Wallets       []struct {
		Address string `json:"address"`
		Chain   string `json:"chain"`
	} `json:"wallets"`
}

func baseURL() string {
	if url := os.Getenv("WALLETAUTH_BASE_URL"); url != "" {
		return strings.TrimRight(url, "/")
	}
	return DefaultBaseURL
}

// newBrowser returns a client that keeps its own session cookie
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

// newWalletAddress generates an EVM address nobody has registered yet
func newWalletAddress(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}

// registerWallet backs off while the server's per-client rate limit is exhausted
func registerWallet(t *testing.T, client *http.Client, walletAddress string) (int, string) {
	t.Helper()
	for attempt := 0; ; attempt++ {
		resp, err := client.Get(baseURL() + "/register-wallet/address=" + walletAddress)
		if err != nil {
			t.Fatalf("Failed to make GET request: %v", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("Failed to read response body: %v", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRateLimitRetries {
			time.Sleep(250 * time.Millisecond)
			continue
		}
		return resp.StatusCode, string(body)
	}
}

func currentSession(t *testing.T, client *http.Client) (int, *SessionResponse) {
	t.Helper()
	resp, err := client.Get(baseURL() + "/api/session")
	if err != nil {
		t.Fatalf("Failed to make GET request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}

	var session SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("Failed to decode session response: %v", err)
	}
	return resp.StatusCode, &session
}
