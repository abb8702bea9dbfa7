package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/errcode"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/pkg/response"
	"github.com/xxxsen/docchat/internal/retrieval"
	"github.com/xxxsen/docchat/internal/service"
)

// SummaryReader exposes the rolling summary to the http surface.
type SummaryReader interface {
	Get(ctx context.Context, chatID string) (*model.ChatSummary, error)
}

// MemoryLister exposes stored memory entries for browsing.
type MemoryLister interface {
	ListPage(ctx context.Context, chatID string, kind string, limit, offset int) ([]model.MemoryEntry, error)
}

type ChatHandler struct {
	turns     *service.TurnService
	summaries SummaryReader
	memories  MemoryLister
}

func NewChatHandler(turns *service.TurnService, summaries SummaryReader, memories MemoryLister) *ChatHandler {
	return &ChatHandler{turns: turns, summaries: summaries, memories: memories}
}

type turnRequest struct {
	Message     string   `json:"message"`
	DocumentIDs []string `json:"document_ids"`
}

func (h *ChatHandler) CreateTurn(c *gin.Context) {
	chatID := c.Param("id")
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.turns.HandleTurn(c.Request.Context(), chatID, req.Message, retrieval.Scope{
		ChatID:      chatID,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *ChatHandler) GetSummary(c *gin.Context) {
	chatID := c.Param("id")
	if chatID == "" {
		response.Error(c, errcode.ErrInvalid, "chat id required")
		return
	}
	summary, err := h.summaries.Get(c.Request.Context(), chatID)
	if err != nil {
		if appErr.IsNotFound(err) {
			response.Success(c, gin.H{"summary": nil})
			return
		}
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"summary": summary})
}

func (h *ChatHandler) ListMemories(c *gin.Context) {
	chatID := c.Param("id")
	if chatID == "" {
		response.Error(c, errcode.ErrInvalid, "chat id required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	entries, err := h.memories.ListPage(c.Request.Context(), chatID, c.Query("kind"), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": entries})
}
