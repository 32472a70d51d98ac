package devserver

import (
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"shoply/livechat/internal/auth"
	"shoply/livechat/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dev harness only; a deployed endpoint must restrict origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes the REST store and the socket endpoint that the livechat
// client package talks to.
type Server struct {
	Storage   Storage
	Hub       *Hub
	Notifier  *Notifier
	JWTSecret []byte
}

func NewServer(storage Storage, hub *Hub, notifier *Notifier, jwtSecret []byte) *Server {
	return &Server{Storage: storage, Hub: hub, Notifier: notifier, JWTSecret: jwtSecret}
}

// Router wires all routes onto a gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.POST("/auth/dev-token", s.IssueDevToken)
	r.GET("/ws", s.ServeWebSocket)

	authed := r.Group("/", s.requireToken)
	authed.GET("/conversations", s.ListConversations)
	authed.POST("/conversations", s.CreateConversation)
	authed.GET("/conversations/:id/messages", s.GetHistory)
	authed.POST("/conversations/:id/messages", s.PostMessage)
	authed.POST("/conversations/:id/read", s.MarkRead)
	authed.POST("/conversations/:id/close", s.CloseConversation)
	authed.POST("/conversations/:id/reopen", s.ReopenConversation)

	return r
}

type devTokenRequest struct {
	ParticipantID string `json:"participant_id"`
	Role          string `json:"role"`
}

// IssueDevToken mints a signed session token. Only the dev harness hands
// tokens out like this; production sessions come from the storefront's
// identity service.
func (s *Server) IssueDevToken(c *gin.Context) {
	var req devTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.ParticipantID == "" {
		req.ParticipantID = uuid.NewString()
	}
	role := models.Role(req.Role)
	if role != models.RoleStaff {
		role = models.RoleCustomer
	}

	token, err := auth.Sign(s.JWTSecret, req.ParticipantID, role, 72*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":          token,
		"participant_id": req.ParticipantID,
		"role":           role,
	})
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(header, "Bearer "), true
}

// requireToken validates the bearer token and stashes the caller's identity
// on the gin context.
func (s *Server) requireToken(c *gin.Context) {
	raw, ok := bearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token missing"})
		return
	}
	claims, err := auth.Verify(s.JWTSecret, raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	c.Set("participantID", claims.ParticipantID)
	c.Set("role", string(claims.Role))
	c.Next()
}

func callerIdentity(c *gin.Context) (string, models.Role) {
	return c.GetString("participantID"), models.Role(c.GetString("role"))
}

// ServeWebSocket upgrades the connection and registers the client in the hub.
// The token rides in the Authorization header, same as the REST calls.
func (s *Server) ServeWebSocket(c *gin.Context) {
	raw, ok := bearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token missing"})
		return
	}
	claims, err := auth.Verify(s.JWTSecret, raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ERROR: websocket upgrade failed: %v", err)
		return
	}

	client := NewWSClient(s.Hub, conn, claims.ParticipantID, claims.Role)
	s.Hub.RegisterCh <- client
	client.Run()
}

// ListConversations returns the caller's conversation list with unread counts,
// most recently active first. Staff see every conversation.
func (s *Server) ListConversations(c *gin.Context) {
	participantID, role := callerIdentity(c)

	var (
		records []ConversationRecord
		err     error
	)
	if role == models.RoleStaff {
		records, err = s.Storage.GetAllConversations()
	} else {
		records, err = s.Storage.GetConversationsForParticipant(participantID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	convs := make([]models.Conversation, 0, len(records))
	for i := range records {
		unread, err := s.Storage.GetUnread(records[i].ConversationID, participantID)
		if err != nil {
			log.Printf("WARNING: unread count for %s: %v", records[i].ConversationID, err)
		}
		convs = append(convs, records[i].toModel(unread))
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastMessageAt.After(convs[j].LastMessageAt)
	})

	c.JSON(http.StatusOK, convs)
}

// CreateConversation opens a new support conversation in the waiting state
// and pings staff about it.
func (s *Server) CreateConversation(c *gin.Context) {
	participantID, _ := callerIdentity(c)

	record := &ConversationRecord{
		ConversationID: uuid.NewString(),
		Participants:   []string{participantID},
		Status:         string(models.StatusWaiting),
		LastMessageAt:  time.Now().UTC(),
	}
	if err := s.Storage.SaveConversation(record); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}

	if s.Notifier != nil {
		s.Notifier.NewConversation(record.ConversationID, participantID)
	}

	c.JSON(http.StatusOK, record.toModel(0))
}

// loadAccessible fetches a conversation and enforces that the caller may see
// it. Customers only reach conversations they participate in.
func (s *Server) loadAccessible(c *gin.Context) (*ConversationRecord, bool) {
	participantID, role := callerIdentity(c)

	conv, err := s.Storage.GetConversation(c.Param("id"))
	if errors.Is(err, ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return nil, false
	}
	if role != models.RoleStaff && !conv.hasParticipant(participantID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return nil, false
	}
	return conv, true
}

// GetHistory returns the full message history, oldest first.
func (s *Server) GetHistory(c *gin.Context) {
	conv, ok := s.loadAccessible(c)
	if !ok {
		return
	}

	records, err := s.Storage.GetMessageHistory(conv.ConversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	msgs := make([]models.Message, 0, len(records))
	for i := range records {
		msgs = append(msgs, records[i].toModel())
	}
	c.JSON(http.StatusOK, msgs)
}

type postMessageRequest struct {
	Body        string `json:"body" binding:"required"`
	ClientNonce string `json:"client_nonce"`
}

// PostMessage persists a message and fans it out. Closed conversations refuse
// new messages; the first staff reply moves a waiting conversation to active.
func (s *Server) PostMessage(c *gin.Context) {
	participantID, role := callerIdentity(c)

	conv, ok := s.loadAccessible(c)
	if !ok {
		return
	}
	if conv.Status == string(models.StatusClosed) {
		c.JSON(http.StatusConflict, gin.H{"error": "conversation is closed"})
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message body is required"})
		return
	}

	if role == models.RoleStaff && conv.Status == string(models.StatusWaiting) {
		if !conv.hasParticipant(participantID) {
			conv.Participants = append(conv.Participants, participantID)
		}
		conv.Status = string(models.StatusActive)
		if err := s.Storage.SaveConversation(conv); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update conversation"})
			return
		}
		s.publishStatus(conv.ConversationID, models.StatusActive)
	}

	record := &MessageRecord{
		MessageID:      uuid.NewString(),
		ConversationID: conv.ConversationID,
		SenderID:       participantID,
		SenderRole:     string(role),
		Body:           req.Body,
		ClientNonce:    req.ClientNonce,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Storage.SaveMessage(record); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save message"})
		return
	}

	for _, p := range conv.Participants {
		if p == participantID {
			continue
		}
		if err := s.Storage.IncrementUnread(conv.ConversationID, p); err != nil {
			log.Printf("WARNING: unread increment for %s: %v", p, err)
		}
	}

	msg := record.toModel()
	if err := s.Storage.PublishEvent(models.ServerEvent{
		Type:    models.EventMessage,
		Message: &msg,
	}); err != nil {
		log.Printf("ERROR: publishing message event: %v", err)
	}

	c.JSON(http.StatusOK, msg)
}

// MarkRead zeroes the caller's unread counter for the conversation.
func (s *Server) MarkRead(c *gin.Context) {
	participantID, _ := callerIdentity(c)

	conv, ok := s.loadAccessible(c)
	if !ok {
		return
	}
	if err := s.Storage.ResetUnread(conv.ConversationID, participantID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) CloseConversation(c *gin.Context) {
	s.transitionStatus(c, models.StatusClosed)
}

// ReopenConversation moves a closed conversation back to active so the
// exchange can continue in place of opening a new one.
func (s *Server) ReopenConversation(c *gin.Context) {
	s.transitionStatus(c, models.StatusActive)
}

func (s *Server) transitionStatus(c *gin.Context, status models.ConversationStatus) {
	conv, ok := s.loadAccessible(c)
	if !ok {
		return
	}
	if conv.Status == string(status) {
		c.Status(http.StatusNoContent)
		return
	}

	if err := s.Storage.SetConversationStatus(conv.ConversationID, string(status)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update status"})
		return
	}
	s.publishStatus(conv.ConversationID, status)
	c.Status(http.StatusNoContent)
}

func (s *Server) publishStatus(conversationID string, status models.ConversationStatus) {
	err := s.Storage.PublishEvent(models.ServerEvent{
		Type: models.EventStatusChanged,
		Status: &models.StatusEvent{
			ConversationID: conversationID,
			Status:         status,
		},
	})
	if err != nil {
		log.Printf("ERROR: publishing status event: %v", err)
	}
}
