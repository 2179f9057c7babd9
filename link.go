package discourse

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LinkChallenge is the first half of the account-linking handshake: a wallet
// authorization URL bound to a single-use nonce.
type LinkChallenge struct {
	NearAccount string
	Nonce       string
	AuthURL     string
	ExpiresAt   time.Time
}

// LinkClaims is the payload the wallet signs to complete a link.
type LinkClaims struct {
	NearAccount   string `json:"near_account"`
	ForumUsername string `json:"forum_username"`
	Nonce         string `json:"nonce"`
	jwt.RegisteredClaims
}

// LinkResult reports a completed link between a NEAR account and a forum user.
type LinkResult struct {
	NearAccount string
	User        *ForumUser
}

// BeginLink issues a nonce and builds the wallet authorization URL for
// nearAccount. The returned challenge is valid for the configured nonce TTL;
// completing it later than that fails.
func (c *Client) BeginLink(nearAccount string) (*LinkChallenge, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}
	if nearAccount == "" {
		return nil, &ClientError{
			Type:    ErrorTypeValidation,
			Message: "near account must not be empty",
		}
	}

	nonce, err := c.nonces.Issue()
	if err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeValidation,
			Message: "issuing nonce failed",
			Cause:   err,
		}
	}
	c.metrics.RecordNonceIssued()

	query := url.Values{}
	query.Set("account_id", nearAccount)
	query.Set("nonce", nonce)
	query.Set("callback_url", c.baseURL)

	return &LinkChallenge{
		NearAccount: nearAccount,
		Nonce:       nonce,
		AuthURL:     c.walletAuthURL + "?" + query.Encode(),
		ExpiresAt:   time.Now().Add(c.nonceTTL),
	}, nil
}

// CompleteLink finishes the handshake: it verifies the EdDSA-signed token
// against the wallet's public key, consumes the embedded nonce exactly once,
// and confirms the claimed forum user exists. Replayed or expired nonces fail
// with an ErrorTypeNonce error; forged or malformed tokens with ErrorTypeAuth.
func (c *Client) CompleteLink(ctx context.Context, signedToken string, publicKey ed25519.PublicKey) (*LinkResult, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}

	claims := &LinkClaims{}
	_, err := jwt.ParseWithClaims(signedToken, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return publicKey, nil
	}, jwt.WithValidMethods([]string{"EdDSA"}))
	if err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeAuth,
			Message: "link token verification failed",
			Cause:   err,
		}
	}
	if claims.NearAccount == "" || claims.ForumUsername == "" || claims.Nonce == "" {
		return nil, &ClientError{
			Type:    ErrorTypeAuth,
			Message: "link token is missing required claims",
		}
	}

	if err := c.nonces.Consume(claims.Nonce); err != nil {
		c.metrics.RecordNonceRejected(nonceRejectReason(err))
		return nil, &ClientError{
			Type:    ErrorTypeNonce,
			Message: "link nonce rejected",
			Cause:   err,
		}
	}
	c.metrics.RecordNonceConsumed()

	user, err := c.GetUser(ctx, claims.ForumUsername)
	if err != nil {
		return nil, err
	}

	return &LinkResult{
		NearAccount: claims.NearAccount,
		User:        user,
	}, nil
}

func nonceRejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNonceConsumed):
		return "consumed"
	case errors.Is(err, ErrNonceExpired):
		return "expired"
	default:
		return "unknown"
	}
}
