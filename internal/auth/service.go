package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/KevinKickass/OpenBusSpoofer/internal/config"
)

// apiKeySubject is the subject reported for requests authenticated by API key.
const apiKeySubject = "api-key"

type AuthService struct {
	jwtHandler *JWTHandler
	keyHasher  *KeyHasher
	keyHashes  []string

	// sha256 of keys that already passed Argon2 verification
	verified sync.Map
}

func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		jwtHandler: NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL),
		keyHasher:  NewKeyHasher(),
		keyHashes:  cfg.APIKeyHashes,
	}
}

// JWT returns the token handler
func (a *AuthService) JWT() *JWTHandler {
	return a.jwtHandler
}

// ValidateToken accepts a JWT or an API key and returns the caller's subject.
func (a *AuthService) ValidateToken(token string) (string, error) {
	if claims, err := a.jwtHandler.ValidateAccessToken(token); err == nil {
		return claims.Subject, nil
	}

	digest := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(digest[:])
	if _, ok := a.verified.Load(key); ok {
		return apiKeySubject, nil
	}

	for _, encoded := range a.keyHashes {
		ok, err := a.keyHasher.VerifyKey(token, encoded)
		if err != nil {
			continue
		}
		if ok {
			a.verified.Store(key, struct{}{})
			return apiKeySubject, nil
		}
	}

	return "", fmt.Errorf("invalid or expired token")
}
