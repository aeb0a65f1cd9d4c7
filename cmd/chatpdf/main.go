// Package main is the entry point for the chatpdf backend.
//
//	@title						ChatPDF Backend API
//	@version					1.0
//	@description				Chat with uploaded PDF documents. Retrieval-augmented answers are streamed as server-sent events.
//	@BasePath					/api
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"os"

	"github.com/tbourn/go-chatpdf-backend/cmd/chatpdf/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
