package zhipu

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL is how long a signed token is valid.
const tokenTTL = time.Hour

// refreshBefore re-signs a cached token this long before it expires.
const refreshBefore = time.Minute

// apiKey is a parsed "id.secret" Zhipu key.
type apiKey struct {
	id     string
	secret string
}

func parseAPIKey(raw string) (apiKey, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || id == "" || secret == "" {
		return apiKey{}, fmt.Errorf("api key must have the form <id>.<secret>")
	}
	return apiKey{id: id, secret: secret}, nil
}

// signToken builds the HS256 token Zhipu expects: exp in seconds, timestamp in
// milliseconds, and a sign_type header.
func signToken(key apiKey, now time.Time) (string, time.Time, error) {
	exp := now.Add(tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"api_key":   key.id,
		"exp":       exp.Unix(),
		"timestamp": now.UnixMilli(),
	})
	token.Header["sign_type"] = "SIGN"

	signed, err := token.SignedString([]byte(key.secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

type cachedToken struct {
	value   string
	expires time.Time
}

// tokenCache is a thread-safe cache of signed tokens keyed by raw API key.
type tokenCache struct {
	mu    sync.Mutex
	cache map[string]cachedToken
}

func newTokenCache() *tokenCache {
	return &tokenCache{cache: make(map[string]cachedToken)}
}

func (c *tokenCache) get(raw string, now time.Time) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.cache[raw]; ok && now.Add(refreshBefore).Before(t.expires) {
		return t.value, nil
	}

	key, err := parseAPIKey(raw)
	if err != nil {
		return "", err
	}
	value, exp, err := signToken(key, now)
	if err != nil {
		return "", err
	}
	c.cache[raw] = cachedToken{value: value, expires: exp}
	return value, nil
}
