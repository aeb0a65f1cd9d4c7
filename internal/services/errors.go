// Package services defines the business logic for chats, conversation turns,
// message history and billing. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"

	"github.com/tbourn/go-chatpdf-backend/internal/billing"
)

// Chat-related errors.
var (
	// ErrChatNotFound indicates that the requested chat does not exist or is not
	// accessible to the current user.
	ErrChatNotFound = errors.New("chat not found")

	// ErrEmptyPrompt is returned when a chat turn carries no user message with
	// content as its last entry.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when the user message exceeds the configured
	// maximum length.
	ErrTooLong = errors.New("prompt too long")

	// ErrMessageNotFound indicates that the requested message does not exist
	// or the chat has no messages yet.
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidFileKey is returned when a chat is requested without a
	// storage key.
	ErrInvalidFileKey = errors.New("file key is required")

	// ErrDocumentInUse is returned when a document key, or its vector
	// namespace, is already bound to another chat.
	ErrDocumentInUse = errors.New("document already belongs to a chat")

	// ErrIngestFailed wraps any ingestion failure. No chat exists afterwards.
	ErrIngestFailed = errors.New("document ingestion failed")
)

// Billing errors.
var (
	// ErrInvalidSignature is returned for webhook deliveries whose signature
	// does not match the raw body.
	ErrInvalidSignature = billing.ErrInvalidSignature

	// ErrInvalidWebhook is returned when a verified body cannot be decoded.
	ErrInvalidWebhook = errors.New("invalid webhook payload")

	// ErrMissingUserID is returned when a payment event cannot be tied to a
	// user through order or payment notes.
	ErrMissingUserID = errors.New("no userId found in event")

	// ErrUnauthenticated is returned when an operation needs a user id.
	ErrUnauthenticated = errors.New("unauthenticated")
)
