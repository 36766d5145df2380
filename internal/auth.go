package internal

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
)

const (
	AdminAuthHeader = "Sync-Admin-Auth"
	maxClockSkew    = 1 * time.Minute
)

type (
	RequestSigner   = func(r *http.Request, subject string) error
	RequestVerifier = func(r *http.Request) string
)

// NewRequestSigner signs subject (a connection id) into the admin header of r.
func NewRequestSigner(privateKey ed25519.PrivateKey) RequestSigner {
	return func(r *http.Request, subject string) error {
		nonce, err := ksuid.NewRandom()
		if err != nil {
			return err
		}

		msg := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("%v_%v", nonce.String(), subject)))
		sig := base64.RawURLEncoding.EncodeToString(ed25519.Sign(privateKey, []byte(msg)))

		r.Header.Set(AdminAuthHeader, fmt.Sprintf("%v.%v", msg, sig))

		return nil
	}
}

// NewRequestVerifier returns the signed subject, or "" when the header is missing,
// forged or outside the allowed clock skew.
func NewRequestVerifier(publicKey ed25519.PublicKey) RequestVerifier {
	return func(r *http.Request) string {
		parts := strings.Split(r.Header.Get(AdminAuthHeader), ".")
		if len(parts) != 2 {
			return ""
		}

		sig, err := base64.RawURLEncoding.DecodeString(parts[1])
		if err != nil {
			return ""
		}

		if !ed25519.Verify(publicKey, []byte(parts[0]), sig) {
			return ""
		}

		msg, err := base64.RawURLEncoding.DecodeString(parts[0])
		if err != nil {
			return ""
		}

		nonceText, subject, ok := strings.Cut(string(msg), "_")
		if !ok || subject == "" {
			return ""
		}

		nonce := ksuid.KSUID{}
		if err := nonce.UnmarshalText([]byte(nonceText)); err != nil {
			return ""
		}

		now := time.Now()
		nt := nonce.Time()
		if nt.Before(now.Add(-maxClockSkew)) || nt.After(now.Add(maxClockSkew)) {
			return ""
		}

		return subject
	}
}
