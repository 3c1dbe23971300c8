package webhook

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/gofiber/fiber/v3"

	"posbridge/internal/extract"
)

var secretHeaders = []string{"X-Webhook-Secret", "X-Tilda-Secret", "X-Tilda-Webhook-Secret"}

// providedSecret picks the shared secret from headers, then the query
// string, then the body.
func providedSecret(c fiber.Ctx, f extract.Fields) string {
	for _, h := range secretHeaders {
		if v := c.Get(h); v != "" {
			return v
		}
	}
	for _, q := range []string{"secret", "token"} {
		if v := c.Query(q); v != "" {
			return v
		}
	}
	return f.String("secret", "token")
}

// secretMatches compares against every configured secret in constant time.
func secretMatches(provided string, secrets []string) bool {
	ok := 0
	for _, s := range secrets {
		ok |= subtle.ConstantTimeCompare([]byte(provided), []byte(s))
	}
	return ok == 1
}

// digest is a short one-way fingerprint for logs and 401 bodies.
func digest(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

func digests(secrets []string) []string {
	out := make([]string, len(secrets))
	for i, s := range secrets {
		out[i] = digest(s)
	}
	return out
}
