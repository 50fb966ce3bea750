// Package api exposes the operations manager over HTTP and a websocket event stream.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/logger"
	"github.com/moyu-x/file-transfer/pkg/operations"
)

// Engine 是 HTTP 层用到的操作管理器接口
type Engine interface {
	QueueCopy(sources, dests []string, priority internal.Priority, opts internal.OperationOptions) (string, error)
	QueueMove(sources, dests []string, priority internal.Priority, opts internal.OperationOptions) (string, error)
	QueueVerify(sources, dests []string, priority internal.Priority, opts internal.OperationOptions) (string, error)
	PauseOperation(id string) bool
	ResumeOperation(id string) bool
	CancelOperation(id string) bool
	GetOperation(id string) (*internal.FileOperation, bool)
	GetProgress(id string) (*internal.OperationProgress, bool)
	GetAllOperations() []*internal.FileOperation
	ClearCompleted() int
	History() ([]internal.HistoryRecord, error)
	Subscribe() (<-chan operations.Event, func())
}

type Server struct {
	engine   Engine
	defaults internal.OperationOptions
	router   *mux.Router
	upgrader websocket.Upgrader
}

type Option func(*Server)

// WithDefaults 请求未携带 options 时使用的参数
func WithDefaults(opts internal.OperationOptions) Option {
	return func(s *Server) { s.defaults = opts }
}

func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		defaults: internal.DefaultOptions(),
		router:   mux.NewRouter(),
		// CheckOrigin 为空时 gorilla 只接受与 Host 相同的 Origin
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(sameOrigin)
	api.HandleFunc("/operations", s.createOperation).Methods(http.MethodPost)
	api.HandleFunc("/operations", s.listOperations).Methods(http.MethodGet)
	api.HandleFunc("/operations/completed", s.clearCompleted).Methods(http.MethodDelete)
	api.HandleFunc("/operations/{id}", s.getOperation).Methods(http.MethodGet)
	api.HandleFunc("/operations/{id}/progress", s.getProgress).Methods(http.MethodGet)
	api.HandleFunc("/operations/{id}/{action:pause|resume|cancel}", s.control).Methods(http.MethodPost)
	api.HandleFunc("/history", s.history).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.events)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type operationRequest struct {
	Type         internal.OperationType     `json:"type"`
	Sources      []string                   `json:"sources"`
	Destinations []string                   `json:"destinations"`
	Priority     string                     `json:"priority"`
	Options      *internal.OperationOptions `json:"options,omitempty"`
}

// sameOrigin 拒绝来自其他网页的修改请求，浏览器之外的客户端不带 Origin
func sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		if origin := r.Header.Get("Origin"); origin != "" {
			u, err := url.Parse(origin)
			if err != nil || !strings.EqualFold(u.Host, r.Host) {
				writeError(w, http.StatusForbidden, fmt.Errorf("cross-origin request from %q rejected", origin))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) createOperation(w http.ResponseWriter, r *http.Request) {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, errors.New("content type must be application/json"))
		return
	}

	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	priority, err := internal.ParsePriority(req.Priority)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts := s.defaults
	if req.Options != nil {
		opts = *req.Options
	}

	var id string
	switch req.Type {
	case internal.OpCopy:
		id, err = s.engine.QueueCopy(req.Sources, req.Destinations, priority, opts)
	case internal.OpMove:
		id, err = s.engine.QueueMove(req.Sources, req.Destinations, priority, opts)
	case internal.OpVerify:
		id, err = s.engine.QueueVerify(req.Sources, req.Destinations, priority, opts)
	default:
		err = fmt.Errorf("%w: operation type %q", internal.ErrInvalidInput, req.Type)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, internal.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) listOperations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetAllOperations())
}

func (s *Server) getOperation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	op, ok := s.engine.GetOperation(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", internal.ErrOperationNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	prog, ok := s.engine.GetProgress(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", internal.ErrOperationNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

func (s *Server) control(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, action := vars["id"], vars["action"]

	var ok bool
	switch action {
	case "pause":
		ok = s.engine.PauseOperation(id)
	case "resume":
		ok = s.engine.ResumeOperation(id)
	case "cancel":
		ok = s.engine.CancelOperation(id)
	}

	if !ok {
		status := http.StatusConflict
		if _, exists := s.engine.GetOperation(id); !exists {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]any{"id": id, "action": action, "ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "action": action, "ok": true})
}

func (s *Server) clearCompleted(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"cleared": s.engine.ClearCompleted()})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	records, err := s.engine.History()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []internal.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// events 把管理器事件逐条以 JSON 推送给 websocket 客户端，客户端断开时退订
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Get().Warn().Err(err).Msg("websocket 升级失败")
		return
	}
	defer conn.Close()

	events, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Get().Debug().Err(err).Msg("websocket 写入失败")
				return
			}
		case <-closed:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Get().Error().Err(err).Msg("写入响应失败")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(err.Error())})
}
