package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-chatpdf-backend/internal/http/middleware"
	"github.com/tbourn/go-chatpdf-backend/internal/storage"
	"github.com/tbourn/go-chatpdf-backend/internal/testutil"
)

func multipartBody(t *testing.T, name, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func (e *env) upload(t *testing.T, name, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, name, contentType, data)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set(middleware.HeaderUserID, "u1")
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func TestUpload_StoresPDF(t *testing.T) {
	e := newEnv(t, Deps{})
	pdf := testutil.MinimalPDF("hello")

	w := e.upload(t, "My Manual.pdf", "application/pdf", pdf)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	resp := decode[UploadResponse](t, w)
	if resp.FileKey != "uploads/1700000000000-My-Manual.pdf" || resp.FileName != "My Manual.pdf" {
		t.Fatalf("resp = %+v", resp)
	}
	if !bytes.Equal(e.files.objects[resp.FileKey], pdf) {
		t.Fatal("stored bytes differ from upload")
	}
}

func TestUpload_RejectsNonPDFAndOversize(t *testing.T) {
	e := newEnv(t, Deps{})
	wantError(t, e.upload(t, "notes.txt", "text/plain", []byte("plain text")), http.StatusUnsupportedMediaType, ErrCodeUnsupportedType)
	// declared as PDF but the bytes are not
	wantError(t, e.upload(t, "fake.pdf", "application/pdf", []byte("<html></html>")), http.StatusUnsupportedMediaType, ErrCodeUnsupportedType)

	small := newEnv(t, Deps{MaxUploadBytes: 16})
	wantError(t, small.upload(t, "big.pdf", "application/pdf", testutil.MinimalPDF("x")), http.StatusRequestEntityTooLarge, ErrCodeTooLarge)

	if len(e.files.objects)+len(small.files.objects) != 0 {
		t.Fatal("rejected upload was stored")
	}
	wantError(t, e.do(http.MethodPost, "/upload", "u1", nil), http.StatusBadRequest, ErrCodeBadRequest)
}

type fakePresigner struct {
	key     string
	max     int64
	expiry  time.Duration
	callErr error
}

func (p *fakePresigner) PresignUpload(_ context.Context, key string, maxBytes int64, expiry time.Duration) (*storage.PresignedPost, error) {
	p.key, p.max, p.expiry = key, maxBytes, expiry
	if p.callErr != nil {
		return nil, p.callErr
	}
	return &storage.PresignedPost{URL: "https://upload.example", Fields: map[string]string{"key": key}, Key: key}, nil
}

func TestPresignUpload(t *testing.T) {
	e := newEnv(t, Deps{})
	wantError(t, e.do(http.MethodPost, "/upload/presign", "u1", PresignRequest{FileName: "a.pdf"}), http.StatusNotImplemented, ErrCodePresignFailed)

	p := &fakePresigner{}
	e = newEnv(t, Deps{Presigner: p})
	w := e.do(http.MethodPost, "/upload/presign", "u1", PresignRequest{FileName: "Q3 report.pdf"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	post := decode[storage.PresignedPost](t, w)
	if post.Key != "uploads/1700000000000-Q3-report.pdf" || p.max != 10<<20 || p.expiry != 600*time.Second {
		t.Fatalf("post = %+v presigner = %+v", post, p)
	}

	wantError(t, e.do(http.MethodPost, "/upload/presign", "u1", PresignRequest{FileName: "x.exe"}), http.StatusUnsupportedMediaType, ErrCodeUnsupportedType)
	wantError(t, e.do(http.MethodPost, "/upload/presign", "u1", PresignRequest{}), http.StatusBadRequest, ErrCodeBadRequest)
	if strings.Contains(p.key, "x.exe") {
		t.Fatal("presigned a non-PDF")
	}
}
