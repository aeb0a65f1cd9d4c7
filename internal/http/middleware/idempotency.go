package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header naming a retry-safe chat turn.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	maxPeekBytes = 1 << 20
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s := asString(v)
	return s, s != ""
}

// IsReplay reports whether a recorded turn exists for this request's key.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// IdempotencyLookup reports whether a still-valid turn was recorded for
// (userID, chatID, key). Errors are treated as "no replay".
type IdempotencyLookup func(ctx context.Context, userID, chatID, key string, now time.Time) (bool, error)

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// ChatID extracts the chat a request targets. Defaults to ChatIDFromBody.
	ChatID func(*gin.Context) string
}

// IdempotencyValidator validates the Idempotency-Key header, stashes it and,
// when lookup finds a recorded turn, marks the request as a replay so the rate
// limiter lets it through. It never serves the replay itself; the chat handler
// re-emits the stored message. Requests without the header pass untouched.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	chatID := opts.ChatID
	if chatID == nil {
		chatID = ChatIDFromBody
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			uid, _ := UserID(c)
			if id := chatID(c); id != "" {
				if ok, err := lookup(c.Request.Context(), uid, id, key, time.Now().UTC()); err == nil && ok {
					c.Set(ctxKeyIdemReplay, true)
					c.Set(ctxKeyRateBypass, true)
				}
			}
		}
		c.Next()
	}
}

// ChatIDFromBody peeks the JSON body for "chatId" and restores the body so the
// handler can bind it again. The route parameter :id wins when present.
func ChatIDFromBody(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	if c.Request.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPeekBytes))
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), c.Request.Body))
	if err != nil {
		return ""
	}
	var peek struct {
		ChatID string `json:"chatId"`
	}
	if json.Unmarshal(raw, &peek) != nil {
		return ""
	}
	return peek.ChatID
}
