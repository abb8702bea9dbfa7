package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/ingest"
	"github.com/xxxsen/docchat/internal/pkg/errcode"
	"github.com/xxxsen/docchat/internal/pkg/response"
)

type IngestHandler struct {
	ingest *ingest.Service
}

func NewIngestHandler(svc *ingest.Service) *IngestHandler {
	return &IngestHandler{ingest: svc}
}

type ingestRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *IngestHandler) Ingest(c *gin.Context) {
	documentID := c.Param("id")
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	count, err := h.ingest.IngestDocument(c.Request.Context(), documentID, req.Title, req.Content)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"document_id": documentID, "chunks": count})
}

func (h *IngestHandler) Delete(c *gin.Context) {
	documentID := c.Param("id")
	if err := h.ingest.DeleteDocument(c.Request.Context(), documentID); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"document_id": documentID})
}
