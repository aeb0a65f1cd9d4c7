package embedding

import (
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type errClass int

const (
	classOther errClass = iota
	classRateLimit
	classQuota
)

// classify sorts upstream failures by message first, since quota and rate
// limit both arrive as 429 on the hosted endpoint.
func classify(err error) errClass {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"):
		return classQuota
	case strings.Contains(msg, "rate limit"):
		return classRateLimit
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return classRateLimit
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return classRateLimit
	}
	return classOther
}
