// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Generic
// codes mirror HTTP status semantics, domain codes name the failing operation.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "ingest_failed",
//	  "message": "document ingestion failed"
//	}
package handlers

const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeForbidden       = "forbidden"
	ErrCodeNotFound        = "not_found"
	ErrCodeConflict        = "conflict"
	ErrCodeRateLimited     = "too_many_requests"
	ErrCodeTooLarge        = "payload_too_large"
	ErrCodeUnsupportedType = "unsupported_media_type"
	ErrCodeInternal        = "internal_error"

	// Domain-specific:
	ErrCodeAnswerFailed     = "answer_failed"
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeIngestFailed     = "ingest_failed"
	ErrCodeDocumentInUse    = "document_in_use"
	ErrCodeListFailed       = "list_failed"
	ErrCodeUploadFailed     = "upload_failed"
	ErrCodePresignFailed    = "presign_failed"
	ErrCodeCheckoutFailed   = "checkout_failed"
	ErrCodeInvalidSignature = "invalid_signature"
	ErrCodeWebhookFailed    = "webhook_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
