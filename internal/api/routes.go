package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/momotalk/internal/models"
	"github.com/zulandar/momotalk/internal/store"
)

// DefaultPageSize is used when page is given without page_size.
const DefaultPageSize = 20

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	s := opts.Store

	router.GET("/healthz", handleHealth(s))

	api := router.Group("/api")
	api.GET("/students", handleStudentList(s))

	api.GET("/conversations", handleConversationList(s))
	api.POST("/conversations", handleConversationCreate(s))
	api.GET("/conversations/:id", handleConversationGet(s))
	api.PATCH("/conversations/:id", handleConversationUpdate(s))
	api.DELETE("/conversations/:id", handleConversationDelete(s))

	api.GET("/conversations/:id/messages", handleMessageList(s))
	api.POST("/conversations/:id/messages", handleMessageCreate(opts.Exchanger))
	api.GET("/conversations/:id/events", handleMessageEvents(s, opts.PollInterval))

	api.POST("/conversations/:id/chat", handleChat(opts.Exchanger))
}

func handleHealth(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := s.DB().DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleStudentList(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		students, err := s.ListStudents(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, students)
	}
}

// ---------------------------------------------------------------------------
// Conversations
// ---------------------------------------------------------------------------

type createConversationRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	StudentName string `json:"student_name" binding:"required"`
}

type updateConversationRequest struct {
	Title *string `json:"title"`
}

func handleConversationList(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		convs, err := s.ListConversations(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, convs)
	}
}

func handleConversationCreate(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
		conv, err := s.CreateConversation(c.Request.Context(), store.ConversationData{
			ID:          req.ID,
			Title:       req.Title,
			StudentName: req.StudentName,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, conv)
	}
}

func handleConversationGet(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := s.FindConversation(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

func handleConversationUpdate(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
		conv, err := s.UpdateConversation(c.Request.Context(), c.Param("id"), store.ConversationUpdate{Title: req.Title})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

func handleConversationDelete(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := s.DeleteConversation(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

type createMessageRequest struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content"`
	Name    string `json:"name"`
	Index   *int   `json:"index"`
}

type chatRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func handleMessageList(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctx := c.Request.Context()
		if _, err := s.FindConversation(ctx, id); err != nil {
			writeError(c, err)
			return
		}

		pageStr, paged := c.GetQuery("page")
		if !paged {
			msgs, err := s.ListMessages(ctx, id)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, msgs)
			return
		}

		page, err := strconv.Atoi(pageStr)
		if err != nil {
			badRequest(c, "page must be an integer")
			return
		}
		size := DefaultPageSize
		if sizeStr := c.Query("page_size"); sizeStr != "" {
			if size, err = strconv.Atoi(sizeStr); err != nil {
				badRequest(c, "page_size must be an integer")
				return
			}
		}
		msgs, err := s.ListMessagesPage(ctx, id, page, size)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}

func handleMessageCreate(ex Exchanger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
		role, err := models.ParseRole(req.Role)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		msg, err := ex.AppendMessage(c.Request.Context(), store.MessageData{
			ConversationID: c.Param("id"),
			Role:           role,
			Content:        req.Content,
			Name:           req.Name,
			Index:          req.Index,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	}
}

func handleChat(ex Exchanger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
		role := models.RoleUser
		if req.Role != "" {
			r, err := models.ParseRole(req.Role)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			role = r
		}

		reply, err := ex.Exchange(c.Request.Context(), models.Turn{Role: role, Content: req.Content}, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, reply)
	}
}
