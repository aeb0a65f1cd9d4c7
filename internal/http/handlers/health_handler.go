package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthResponse reports liveness and the vector index mode.
type HealthResponse struct {
	Status      string `json:"status" example:"ok"`
	VectorIndex string `json:"vector_index" example:"ok"`
}

// Health godoc
// @ID          health
// @Summary     Liveness
// @Description Always 200 while the process serves. vector_index is "degraded" once queries are answered from the fallback result.
// @Tags        Infra
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	vi := "ok"
	if h.index != nil && h.index.Degraded() {
		vi = "degraded"
	}
	ok(c, http.StatusOK, HealthResponse{Status: "ok", VectorIndex: vi})
}
