// Package web implements the HTTP server and dashboard for votedesk. It
// serves the page, the JSON API and websocket streams of the dashboard
// state, the tally history and notifications.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"votedesk.mini/vdk/internal/api"
	"votedesk.mini/vdk/internal/docs"
	"votedesk.mini/vdk/internal/notify"
	"votedesk.mini/vdk/internal/types"
)

// TemplateData holds the data to be passed to the HTML template.
type TemplateData struct {
	CurrentVersion string
	BuildTime      string
	Contract       string
	MinimumAge     int
	DocList        []string
	DocContent     template.HTML
	CurrentDoc     string
}

// broker fans state updates out to websocket clients
type broker struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func newBroker() *broker {
	return &broker{
		clients: make(map[chan []byte]struct{}),
	}
}

func (b *broker) register(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = struct{}{}
}

func (b *broker) unregister(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, client)
	close(client)
}

func (b *broker) broadcast(data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client <- data:
		default:
			// Client is slow/blocked, skip
		}
	}
}

func (b *broker) size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// historyStreamLimit is how many tallies /ws/history pushes per update.
const historyStreamLimit = 10

// Options configures a Server.
type Options struct {
	Core           api.Core
	History        api.History
	HistoryUpdates <-chan struct{} // signalled when a tally is recorded
	Feed           *notify.Feed
	OnChange       func(func()) func() // registers a state-update callback, returns its remover
	Docs           *docs.Service
	Port           int
	Logger         *slog.Logger
}

// Server is the web server for the dashboard and API.
type Server struct {
	core          api.Core
	history       api.History
	feed          *notify.Feed
	port          int
	templates     *template.Template
	logger        *slog.Logger
	broker        *broker
	historyBroker *broker
	apiService    *api.Service
	docService    *docs.Service

	changed     chan struct{}
	unsubscribe func()
	done        chan struct{}
	closeOnce   sync.Once
	httpServer  *http.Server
}

// NewServer creates a new web server.
func NewServer(opts Options) (*Server, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Feed == nil {
		opts.Feed = notify.New(100)
	}
	if opts.Docs == nil {
		opts.Docs = docs.Default()
	}

	s := &Server{
		core:          opts.Core,
		history:       opts.History,
		feed:          opts.Feed,
		port:          opts.Port,
		templates:     templates,
		logger:        opts.Logger,
		broker:        newBroker(),
		historyBroker: newBroker(),
		apiService:    api.NewService(opts.Core, opts.History, opts.Feed, opts.Logger.With("component", "api")),
		docService:    opts.Docs,
		changed:       make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	if opts.OnChange != nil {
		s.unsubscribe = opts.OnChange(s.markChanged)
	}
	go s.watchState()
	if opts.HistoryUpdates != nil {
		go s.watchHistory(opts.HistoryUpdates)
	}
	return s, nil
}

// Handler returns the routes served by the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Page routes
	mux.HandleFunc("GET /{$}", s.handlePageLoad)
	mux.HandleFunc("GET /docs", s.handleDocsView)
	mux.HandleFunc("GET /docs/{name}", s.handleDocsView)

	// API routes (delegated to apiService)
	mux.HandleFunc("GET /api/health", s.apiService.HandleHealth)
	mux.HandleFunc("GET /api/version", s.apiService.HandleVersion)
	mux.HandleFunc("GET /api/state", s.apiService.HandleState)
	mux.HandleFunc("POST /api/connect", s.apiService.HandleConnect)
	mux.HandleFunc("POST /api/refresh", s.apiService.HandleRefresh)
	mux.HandleFunc("GET /api/actions", s.apiService.HandleActions)
	mux.HandleFunc("POST /api/actions/{kind}", s.apiService.HandleSubmit)
	mux.HandleFunc("DELETE /api/actions/{kind}", s.apiService.HandleDismiss)
	mux.HandleFunc("GET /api/results", s.apiService.HandleResults)
	mux.HandleFunc("GET /api/history", s.apiService.HandleHistory)
	mux.HandleFunc("GET /api/history/candidates/{id}", s.apiService.HandleCandidateHistory)
	mux.HandleFunc("GET /api/notifications", s.apiService.HandleNotifications)

	// WebSocket routes
	mux.HandleFunc("/ws/state", s.handleStateWS)
	mux.HandleFunc("/ws/history", s.handleHistoryWS)
	mux.HandleFunc("/ws/status", s.handleStatusWS)

	return mux
}

// Start runs the server in the background. The channel reports why it
// stopped.
func (s *Server) Start() <-chan error {
	addr := fmt.Sprintf(":%d", s.port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("web: starting dashboard and API server", "url", fmt.Sprintf("http://localhost:%d", s.port))

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
		close(errCh)
	}()
	return errCh
}

// Shutdown stops the state watcher and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		close(s.done)
	})
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) markChanged() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// watchState broadcasts the dashboard state after every change. Bursts of
// changes collapse into one message.
func (s *Server) watchState() {
	for {
		select {
		case <-s.done:
			return
		case <-s.changed:
			if s.broker.size() == 0 {
				continue
			}
			data, err := s.stateJSON()
			if err != nil {
				s.logger.Error("web: encode state", "error", err)
				continue
			}
			s.broker.broadcast(data)
		}
	}
}

// watchHistory pushes the latest tallies each time the store records one.
func (s *Server) watchHistory(updates <-chan struct{}) {
	for {
		select {
		case <-s.done:
			return
		case <-updates:
			if s.historyBroker.size() == 0 {
				continue
			}
			data, err := s.historyJSON()
			if err != nil {
				s.logger.Error("web: encode history", "error", err)
				continue
			}
			s.historyBroker.broadcast(data)
		}
	}
}

func (s *Server) stateJSON() ([]byte, error) {
	return json.Marshal(api.BuildState(s.core))
}

func (s *Server) historyJSON() ([]byte, error) {
	entries := []api.EntryView{}
	if s.history != nil {
		var err error
		if entries, err = api.RecentHistory(s.history, historyStreamLimit); err != nil {
			return nil, err
		}
	}
	return json.Marshal(entries)
}

func (s *Server) handlePageLoad(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	s.setCacheHeaders(w)
	err := s.templates.ExecuteTemplate(w, "index.html", TemplateData{
		CurrentVersion: types.Version,
		BuildTime:      types.BuildTime,
		Contract:       s.core.ContractAddress().Hex(),
		MinimumAge:     types.MinimumAge,
	})
	if err != nil {
		s.logger.Error("web: render index", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

func (s *Server) handleDocsView(w http.ResponseWriter, r *http.Request) {
	s.setCacheHeaders(w)

	docName := r.PathValue("name")
	docList, err := s.docService.ListDocs()
	if err != nil {
		s.logger.Error("web: list docs", "error", err)
	}
	if docName == "" && len(docList) > 0 {
		docName = docList[0]
	}

	var docContent string
	if docName != "" {
		content, err := s.docService.GetDoc(r.Context(), docName)
		if err != nil {
			s.logger.Warn("web: load doc", "doc", docName, "error", err)
			http.NotFound(w, r)
			return
		}
		docContent = content
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "docs.html", TemplateData{
		CurrentVersion: types.Version,
		BuildTime:      types.BuildTime,
		DocList:        docList,
		DocContent:     template.HTML(docContent),
		CurrentDoc:     docName,
	}); err != nil {
		s.logger.Error("web: render docs", "error", err)
		http.Error(w, "Failed to render view", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// handleStateWS streams the dashboard state: the current value on connect,
// then every change.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	s.streamBroker(w, r, s.broker, s.stateJSON)
}

// handleHistoryWS streams the latest tallies: the current list on connect,
// then the list again after every recorded change.
func (s *Server) handleHistoryWS(w http.ResponseWriter, r *http.Request) {
	s.streamBroker(w, r, s.historyBroker, s.historyJSON)
}

// streamBroker registers the connection with b, sends initial and then
// relays every broadcast until the client goes away.
func (s *Server) streamBroker(w http.ResponseWriter, r *http.Request, b *broker, initial func() ([]byte, error)) {
	conn, err := upgrade(w, r)
	if err != nil {
		s.logger.Warn("web: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := make(chan []byte, 8)
	b.register(client)
	defer b.unregister(client)

	first, err := initial()
	if err != nil {
		s.logger.Error("web: encode stream", "path", r.URL.Path, "error", err)
		return
	}
	if err := conn.writeText(first); err != nil {
		return
	}

	closed := conn.readUntilClosed()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-s.done:
			return
		case data := <-client:
			if err := conn.writeText(data); err != nil {
				return
			}
		}
	}
}

// handleStatusWS streams notifications, oldest first.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrade(w, r)
	if err != nil {
		s.logger.Warn("web: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	messages := make(chan notify.Message, 32)
	unsubscribe := s.feed.Subscribe(func(m notify.Message) {
		select {
		case messages <- m:
		default:
		}
	})
	defer unsubscribe()

	// Send initial history (last 50 messages); GetRecent is newest first.
	initial := s.feed.GetRecent(50)
	for i := len(initial) - 1; i >= 0; i-- {
		if err := conn.writeJSON(initial[i]); err != nil {
			return
		}
	}

	closed := conn.readUntilClosed()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-s.done:
			return
		case msg := <-messages:
			if err := conn.writeJSON(msg); err != nil {
				return
			}
		}
	}
}

// setCacheHeaders sets cache-busting headers to prevent browser caching.
func (s *Server) setCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}
