package llm

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// topKTransport adds "top_k" to chat completion bodies. The OpenAI request
// type has no such field, but Gemini's compatible endpoint and most
// self-hosted servers read it.
type topKTransport struct {
	next http.RoundTripper
	topK int
}

func (t topKTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPost || req.Body == nil || !strings.HasSuffix(req.URL.Path, "/chat/completions") {
		return t.next.RoundTrip(req)
	}
	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	body := withTopK(raw, t.topK)

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.ContentLength = int64(len(body))
	out.Header.Set("Content-Length", strconv.Itoa(len(body)))
	out.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	return t.next.RoundTrip(out)
}

// withTopK returns raw with top_k set, or raw unchanged when it is not a JSON
// object.
func withTopK(raw []byte, topK int) []byte {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return raw
	}
	fields["top_k"] = json.RawMessage(strconv.Itoa(topK))
	out, err := json.Marshal(fields)
	if err != nil {
		return raw
	}
	return out
}

// compatHTTPClient returns base with top_k injection installed, or base
// itself when topK is disabled.
func compatHTTPClient(base *http.Client, topK int) *http.Client {
	if topK <= 0 {
		return base
	}
	if base == nil {
		base = http.DefaultClient
	}
	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	c := *base
	c.Transport = topKTransport{next: next, topK: topK}
	return &c
}
