// Package sandbox is a self-contained widget backend for local
// development: it serves the configuration, element, session, AI, and
// realtime endpoints from a YAML catalog, with a scripted assistant and a
// scripted agent.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/chat"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type session struct {
	mu       sync.Mutex
	messages []chat.Message
	conns    map[*websocket.Conn]struct{}

	// writeMu serializes socket writes; gorilla allows one writer at a time.
	writeMu sync.Mutex
}

func (s *session) writeFrame(conn *websocket.Conn, frame any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

// Server is the sandbox backend.
type Server struct {
	catalog *Catalog
	http    *http.Server

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer builds the sandbox over a catalog.
func NewServer(catalog *Catalog, port int) *Server {
	s := &Server{
		catalog:  catalog,
		sessions: make(map[string]*session),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/widget/config", s.handleConfig)
		v1.GET("/widget/elements", s.handleElements)
		v1.POST("/widget/events", s.handleEvent)
		v1.POST("/widget/events/element", s.handleEvent)

		v1.POST("/chat/sessions", s.handleCreateSession)
		v1.GET("/chat/sessions/:id/messages", s.handleListMessages)
		v1.POST("/chat/sessions/:id/messages", s.handlePostMessage)
		v1.POST("/chat/ai/turn", s.handleAITurn)
		v1.GET("/chat/rt", s.handleRealtime)
	}

	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		logrus.Infof("sandbox backend listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("sandbox backend failed: %v", err)
		}
	}()
}

// Shutdown stops the sandbox.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.Widget)
}

func (s *Server) handleElements(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"elements": s.catalog.Elements})
}

func (s *Server) handleEvent(c *gin.Context) {
	c.Status(http.StatusAccepted)
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req struct {
		VisitorName    string `json:"visitorName"`
		InitialMessage string `json:"initialMessage"`
		AISummary      string `json:"aiSummary"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := ulid.Make().String()
	sess := &session{conns: make(map[*websocket.Conn]struct{})}
	if req.InitialMessage != "" {
		sess.messages = append(sess.messages, chat.Message{
			ID:        ulid.Make().String(),
			Role:      chat.RoleVisitor,
			Content:   req.InitialMessage,
			CreatedAt: time.Now(),
		})
	}
	if req.AISummary != "" {
		logrus.Infof("sandbox session %s opened with AI summary: %s", id, req.AISummary)
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"session": gin.H{"id": id}})
}

func (s *Server) session(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) handleListMessages(c *gin.Context) {
	sess, ok := s.session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	var after time.Time
	if raw := c.Query("after"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad after timestamp"})
			return
		}
		after = t
	}

	sess.mu.Lock()
	out := make([]chat.Message, 0, len(sess.messages))
	for _, m := range sess.messages {
		if m.CreatedAt.After(after) {
			out = append(out, m)
		}
	}
	sess.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"messages": out})
}

func (s *Server) handlePostMessage(c *gin.Context) {
	sess, ok := s.session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	msg := chat.Message{
		ID:        ulid.Make().String(),
		Role:      chat.RoleVisitor,
		Content:   req.Content,
		CreatedAt: time.Now(),
	}
	s.record(sess, msg)
	c.Status(http.StatusCreated)

	// Scripted agent: echo an acknowledgement shortly after.
	go func() {
		time.Sleep(200 * time.Millisecond)
		s.record(sess, chat.Message{
			ID:        ulid.Make().String(),
			Role:      chat.RoleAgent,
			Content:   fmt.Sprintf("%s here. You said: %q", s.catalog.AgentName, req.Content),
			CreatedAt: time.Now(),
		})
	}()
}

// record appends a message and pushes it to connected sockets.
func (s *Server) record(sess *session, msg chat.Message) {
	sess.mu.Lock()
	sess.messages = append(sess.messages, msg)
	conns := make([]*websocket.Conn, 0, len(sess.conns))
	for conn := range sess.conns {
		conns = append(conns, conn)
	}
	sess.mu.Unlock()

	frame := gin.H{"type": "message", "message": msg}
	for _, conn := range conns {
		if err := sess.writeFrame(conn, frame); err != nil {
			logrus.Debugf("sandbox socket write failed: %v", err)
		}
	}
}

// handleAITurn streams the scripted reply as event/data line pairs, word
// by word.
func (s *Server) handleAITurn(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	w := c.Writer

	fmt.Fprintf(w, "event: start\ndata: {\"conversationId\":%q}\n\n", "sb-"+ulid.Make().String())

	wantsHuman := strings.Contains(strings.ToLower(req.Message), "human") ||
		strings.Contains(strings.ToLower(req.Message), "agent")

	for i, word := range strings.Fields(s.catalog.AIScript) {
		token := word
		if i > 0 {
			token = " " + word
		}
		data, _ := json.Marshal(gin.H{"content": token})
		fmt.Fprintf(w, "event: token\ndata: %s\n\n", data)
	}

	fmt.Fprintf(w, "event: complete\ndata: {\"handoffRequested\":%t,\"reason\":\"visitor asked for a person\"}\n", wantsHuman)
}

func (s *Server) handleRealtime(c *gin.Context) {
	sess, ok := s.session(c.Query("sessionId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Warnf("sandbox upgrade failed: %v", err)
		return
	}

	sess.mu.Lock()
	sess.conns[conn] = struct{}{}
	sess.mu.Unlock()

	sess.writeFrame(conn, gin.H{"type": "agent:joined", "agentName": s.catalog.AgentName})

	// Read loop: only visitor:typing arrives; mirror it back as the
	// agent's indicator so the loop is visible end to end.
	go func() {
		defer func() {
			sess.mu.Lock()
			delete(sess.conns, conn)
			sess.mu.Unlock()
			conn.Close()
		}()
		for {
			var frame struct {
				Type     string `json:"type"`
				IsTyping bool   `json:"isTyping"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if frame.Type == "visitor:typing" && frame.IsTyping {
				sess.writeFrame(conn, gin.H{"type": "typing", "isTyping": true})
			}
		}
	}()
}
