package handlers

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatpdf-backend/internal/storage"
)

const pdfContentType = "application/pdf"

// UploadResponse describes a stored document.
type UploadResponse struct {
	FileKey  string `json:"file_key" example:"uploads/1717171717171-manual.pdf"`
	FileName string `json:"file_name" example:"manual.pdf"`
	URL      string `json:"url"`
}

// PresignRequest names the file a browser is about to upload directly.
type PresignRequest struct {
	FileName string `json:"file_name" example:"manual.pdf"`
}

// Upload godoc
// @ID          upload
// @Summary     Upload a PDF
// @Description Stores a single PDF (multipart field "file", at most 10 MB) and returns its storage key for /create-chat.
// @Tags        Uploads
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
//
// @Param       file  formData  file  true  "PDF document"
//
// @Success     200  {object}  handlers.UploadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     413  {object}  handlers.ErrorResponse  "File too large"
// @Failure     415  {object}  handlers.ErrorResponse  "Not a PDF"
// @Failure     500  {object}  handlers.ErrorResponse  "Upload failed"
// @Router      /upload [post]
func (h *Handlers) Upload(c *gin.Context) {
	if _, okUser := requireUser(c); !okUser {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "file exceeds upload limit")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field \"file\" is required")
		return
	}
	if fh.Size > h.maxUpload {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "file exceeds upload limit")
		return
	}

	body, err := openPDF(fh)
	if err != nil {
		if errors.Is(err, errNotPDF) {
			fail(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedType, "only PDF files are accepted")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read upload")
		return
	}
	defer body.Close()

	key := storage.FileKey(fh.Filename, h.now())
	url, err := h.files.Upload(c.Request.Context(), key, body, pdfContentType)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, "could not store file")
		return
	}
	ok(c, http.StatusOK, UploadResponse{FileKey: key, FileName: fh.Filename, URL: url})
}

var errNotPDF = errors.New("not a pdf")

type pdfBody struct {
	io.Reader
	f multipart.File
}

func (b pdfBody) Close() error { return b.f.Close() }

// openPDF checks the declared type and the leading bytes, and returns a reader
// positioned at the start of the file.
func openPDF(fh *multipart.FileHeader) (io.ReadCloser, error) {
	if ct := fh.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, pdfContentType) {
		return nil, errNotPDF
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		_ = f.Close()
		return nil, err
	}
	head = head[:n]
	if http.DetectContentType(head) != pdfContentType {
		_ = f.Close()
		return nil, errNotPDF
	}
	return pdfBody{Reader: io.MultiReader(bytes.NewReader(head), f), f: f}, nil
}

// PresignUpload godoc
// @ID          presignUpload
// @Summary     Signed direct-upload form
// @Description Returns a signed POST policy limited to 10 MB and 600 seconds. Only available with object storage.
// @Tags        Uploads
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.PresignRequest  true  "File name"
//
// @Success     200  {object}  storage.PresignedPost
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     501  {object}  handlers.ErrorResponse  "Storage driver cannot sign uploads"
// @Router      /upload/presign [post]
func (h *Handlers) PresignUpload(c *gin.Context) {
	if _, okUser := requireUser(c); !okUser {
		return
	}
	var req PresignRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.FileName) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file_name is required")
		return
	}
	if !strings.HasSuffix(strings.ToLower(req.FileName), ".pdf") {
		fail(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedType, "only PDF files are accepted")
		return
	}
	if h.presign == nil {
		fail(c, http.StatusNotImplemented, ErrCodePresignFailed, storage.ErrPresignUnsupported.Error())
		return
	}

	key := storage.FileKey(req.FileName, h.now())
	post, err := h.presign.PresignUpload(c.Request.Context(), key, h.maxUpload, h.presignExpiry)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodePresignFailed, "could not sign upload")
		return
	}
	ok(c, http.StatusOK, post)
}
