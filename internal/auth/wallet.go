package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pendergraft/splitledger/internal/validation"
)

// Wallet sign-in errors
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignerMismatch   = errors.New("signature was not produced by the claimed address")
	ErrUnknownNonce     = errors.New("nonce is unknown, expired or already used")
)

const noncePrefix = "Nonce: "

// LoginMessage is the text a wallet signs to sign in.
func LoginMessage(address, nonce string) string {
	return fmt.Sprintf("Sign in to splitledger\nAddress: %s\n%s%s", address, noncePrefix, nonce)
}

// nonceFromMessage extracts the nonce line from a signed login message.
func nonceFromMessage(message string) string {
	for _, line := range strings.Split(message, "\n") {
		if strings.HasPrefix(line, noncePrefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, noncePrefix))
		}
	}
	return ""
}

type pendingNonce struct {
	address string
	expires time.Time
}

// NonceStore hands out single-use login nonces. Nonces live in memory only,
// so a restart invalidates outstanding sign-in attempts.
type NonceStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	nonces map[string]pendingNonce
}

// NewNonceStore creates a nonce store whose nonces expire after ttl.
func NewNonceStore(ttl time.Duration) *NonceStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &NonceStore{ttl: ttl, now: time.Now, nonces: make(map[string]pendingNonce)}
}

// Issue creates a nonce for address and returns it with its expiry.
func (s *NonceStore) Issue(address string) (string, time.Time, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, fmt.Errorf("generating nonce: %w", err)
	}
	nonce := hex.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	expires := now.Add(s.ttl)
	s.nonces[nonce] = pendingNonce{address: address, expires: expires}
	return nonce, expires, nil
}

// Consume removes nonce and reports whether it was issued to address and is
// still valid.
func (s *NonceStore) Consume(address, nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.nonces[nonce]
	if !ok {
		return false
	}
	delete(s.nonces, nonce)
	return p.address == address && s.now().Before(p.expires)
}

// Len returns the number of outstanding nonces.
func (s *NonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nonces)
}

func (s *NonceStore) sweep(now time.Time) {
	for k, p := range s.nonces {
		if !now.Before(p.expires) {
			delete(s.nonces, k)
		}
	}
}

// RecoverSigner returns the address that produced an EIP-191 personal_sign
// signature over message.
func RecoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}

	// wallets produce v in {27, 28}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// WalletLogin verifies signed login messages and issues session tokens.
type WalletLogin struct {
	nonces *NonceStore
	issuer *Issuer
}

// NewWalletLogin creates a wallet sign-in flow.
func NewWalletLogin(nonces *NonceStore, issuer *Issuer) *WalletLogin {
	return &WalletLogin{nonces: nonces, issuer: issuer}
}

// Challenge issues a nonce for address and returns the message to sign.
func (l *WalletLogin) Challenge(address string) (message string, expires time.Time, err error) {
	addr, err := validation.NormalizeAddress(address)
	if err != nil {
		return "", time.Time{}, err
	}
	nonce, expires, err := l.nonces.Issue(addr)
	if err != nil {
		return "", time.Time{}, err
	}
	return LoginMessage(addr, nonce), expires, nil
}

// Login checks that signature over message was produced by address and that
// message carries a nonce issued to address, then returns a session token.
func (l *WalletLogin) Login(address, message, signature string) (token string, expires time.Time, err error) {
	addr, err := validation.NormalizeAddress(address)
	if err != nil {
		return "", time.Time{}, err
	}

	signer, err := RecoverSigner(message, signature)
	if err != nil {
		return "", time.Time{}, err
	}
	if signer.Hex() != addr {
		return "", time.Time{}, ErrSignerMismatch
	}

	if !l.nonces.Consume(addr, nonceFromMessage(message)) {
		return "", time.Time{}, ErrUnknownNonce
	}

	return l.issuer.Issue(addr)
}
