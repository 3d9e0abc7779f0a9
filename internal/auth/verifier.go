// Package auth verifies bearer tokens and extracts the operator and role.
package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"fleetops/internal/config"
)

// Roles, most privileged first.
const (
	RoleAdmin   = "admin"
	RolePlanner = "planner"
	RoleViewer  = "viewer"
)

var (
	ErrBadToken     = errors.New("invalid token")
	ErrBadSignature = errors.New("bad signature")
	ErrExpired      = errors.New("token expired")
)

// Verifier validates tokens in one of three modes: dev ("operator:role", no
// signature), hmac (HS256) or jwks (RS256, keys fetched from a JWKS URL).
type Verifier struct {
	Mode          string
	HMACSecret    []byte
	JWKSURL       string
	OperatorClaim string
	RoleClaim     string

	http      *http.Client
	mu        sync.RWMutex
	jwks      jwks
	lastFetch time.Time
	cacheTTL  time.Duration
	now       func() time.Time
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

type Principal struct {
	Operator string
	Role     string
}

// CanPlan reports whether the principal may run optimizations and decide drafts.
func (p Principal) CanPlan() bool { return p.Role == RoleAdmin || p.Role == RolePlanner }

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

func New(cfg config.AuthConfig) *Verifier {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "dev"
	}
	v := &Verifier{
		Mode:          mode,
		HMACSecret:    []byte(cfg.HMACSecret),
		JWKSURL:       cfg.JWKSURL,
		OperatorClaim: cfg.OperatorClaim,
		RoleClaim:     cfg.RoleClaim,
		http:          &http.Client{Timeout: 5 * time.Second},
		cacheTTL:      10 * time.Minute,
		now:           time.Now,
	}
	if v.OperatorClaim == "" {
		v.OperatorClaim = "sub"
	}
	if v.RoleClaim == "" {
		v.RoleClaim = "role"
	}
	return v
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		operator, role, ok := strings.Cut(token, ":")
		if !ok || operator == "" {
			return Principal{}, fmt.Errorf("%w: expected operator:role", ErrBadToken)
		}
		return Principal{Operator: operator, Role: normalizeRole(role)}, nil
	}
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, ErrBadToken
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: header: %v", ErrBadToken, err)
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: payload: %v", ErrBadToken, err)
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: signature: %v", ErrBadToken, err)
	}
	var hdr struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	signingInput := []byte(segs[0] + "." + segs[1])
	switch v.Mode {
	case "hmac":
		if hdr.Alg != "HS256" {
			return Principal{}, fmt.Errorf("%w: unsupported alg %q", ErrBadToken, hdr.Alg)
		}
		mac := hmac.New(sha256.New, v.HMACSecret)
		mac.Write(signingInput)
		if !hmac.Equal(mac.Sum(nil), sig) {
			return Principal{}, ErrBadSignature
		}
	case "jwks":
		if hdr.Alg != "RS256" {
			return Principal{}, fmt.Errorf("%w: unsupported alg %q", ErrBadToken, hdr.Alg)
		}
		pub, err := v.getRSAPublicKey(hdr.Kid)
		if err != nil {
			return Principal{}, err
		}
		h := sha256.Sum256(signingInput)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig); err != nil {
			return Principal{}, ErrBadSignature
		}
	default:
		return Principal{}, fmt.Errorf("unsupported auth mode %q", v.Mode)
	}
	if exp, ok := claims["exp"].(float64); ok && v.now().Unix() > int64(exp) {
		return Principal{}, ErrExpired
	}
	operator, _ := claims[v.OperatorClaim].(string)
	role, _ := claims[v.RoleClaim].(string)
	if operator == "" {
		return Principal{}, fmt.Errorf("%w: missing %s claim", ErrBadToken, v.OperatorClaim)
	}
	return Principal{Operator: operator, Role: normalizeRole(role)}, nil
}

// unknown roles get the least privilege
func normalizeRole(r string) string {
	switch r = strings.ToLower(strings.TrimSpace(r)); r {
	case RoleAdmin, RolePlanner:
		return r
	default:
		return RoleViewer
	}
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }

func (v *Verifier) getRSAPublicKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	cached := v.jwks
	stale := time.Since(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if len(cached.Keys) == 0 || stale {
		if err := v.fetchJWKS(); err != nil {
			return nil, err
		}
		v.mu.RLock()
		cached = v.jwks
		v.mu.RUnlock()
	}
	for _, k := range cached.Keys {
		if k.Kid != kid || !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		e := new(big.Int).SetBytes(eBytes)
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
	}
	return nil, fmt.Errorf("kid %q not found in JWKS", kid)
}

func (v *Verifier) fetchJWKS() error {
	if v.JWKSURL == "" {
		return errors.New("auth.jwks_url not set")
	}
	resp, err := v.http.Get(v.JWKSURL)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	var j jwks
	if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}
	v.mu.Lock()
	v.jwks = j
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}
