package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Chats  *ChatHandler
	Search *SearchHandler
	Ingest *IngestHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/chats/:id/turns", deps.Chats.CreateTurn)
	api.GET("/chats/:id/summary", deps.Chats.GetSummary)
	api.GET("/chats/:id/memories", deps.Chats.ListMemories)

	api.POST("/search", deps.Search.Search)

	api.POST("/documents/:id/ingest", deps.Ingest.Ingest)
	api.DELETE("/documents/:id", deps.Ingest.Delete)
}
