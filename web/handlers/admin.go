package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/powerfulqa/aszune-ai-bot-sub000/cache"
	"github.com/powerfulqa/aszune-ai-bot-sub000/chat"
	"github.com/powerfulqa/aszune-ai-bot-sub000/database"
	"github.com/powerfulqa/aszune-ai-bot-sub000/web/format"
	"go.uber.org/zap"
)

// AdminHandler exposes cache observability and manual controls to the
// admin dashboard.
type AdminHandler struct {
	store      *cache.Store
	persister  *cache.Persister
	maintainer *cache.Maintainer
	chat       *chat.Service
	db         *database.PostgresStore
	logger     *zap.Logger
}

func NewAdminHandler(store *cache.Store, persister *cache.Persister, maintainer *cache.Maintainer, chatSvc *chat.Service, db *database.PostgresStore, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		store:      store,
		persister:  persister,
		maintainer: maintainer,
		chat:       chatSvc,
		db:         db,
		logger:     logger,
	}
}

// Stats returns hit/miss counters and store size.
func (h *AdminHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Stats())
}

// Records lists cached records, most recently accessed first.
func (h *AdminHandler) Records(c *gin.Context) {
	summaries := h.store.Summaries(100)
	for i := range summaries {
		summaries[i].Question = format.TruncateForListing(summaries[i].Question, 120)
	}
	c.JSON(http.StatusOK, gin.H{"records": summaries, "count": len(summaries)})
}

// Flush forces an immediate flush-if-dirty.
func (h *AdminHandler) Flush(c *gin.Context) {
	if err := h.persister.Flush(); err != nil {
		h.logger.Error("Manual cache flush failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "flush failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dirty": h.store.Dirty(), "size": h.store.Size()})
}

// MaintainNow runs one full maintenance cycle: flush-if-dirty, then
// evict-if-over-threshold.
func (h *AdminHandler) MaintainNow(c *gin.Context) {
	h.maintainer.Maintain()
	c.JSON(http.StatusOK, gin.H{"dirty": h.store.Dirty(), "size": h.store.Size()})
}

type askRequest struct {
	Question   string `json:"question" binding:"required"`
	ContextTag string `json:"contextTag"`
}

// Ask answers a question through the normal dispatch path. Used by the
// dashboard's test console.
func (h *AdminHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	answer, err := h.chat.Ask(c.Request.Context(), req.Question, req.ContextTag)
	if err != nil {
		h.logger.Error("Ask failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to resolve answer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"answer":       answer.Text,
		"answerHTML":   format.RenderAnswerHTML(answer.Text),
		"cached":       answer.Cached,
		"similarity":   answer.Similarity,
		"needsRefresh": answer.NeedsRefresh,
	})
}

// Conversations returns the recent transcript log with rendered answers.
func (h *AdminHandler) Conversations(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"conversations": []any{}})
		return
	}
	conversations, err := h.db.RecentConversations(c.Request.Context(), 50)
	if err != nil {
		h.logger.Error("Failed to load conversations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	type conversationView struct {
		ID         string   `json:"id"`
		Question   string   `json:"question"`
		AnswerHTML string   `json:"answerHtml"`
		Cached     bool     `json:"cached"`
		Similarity float64  `json:"similarity"`
		Tags       []string `json:"tags"`
		CreatedAt  string   `json:"createdAt"`
	}
	views := make([]conversationView, 0, len(conversations))
	for _, conv := range conversations {
		views = append(views, conversationView{
			ID:         conv.ID.String(),
			Question:   conv.Question,
			AnswerHTML: format.RenderAnswerHTML(conv.Answer),
			Cached:     conv.Cached,
			Similarity: conv.Similarity,
			Tags:       conv.Tags,
			CreatedAt:  conv.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"conversations": views})
}
