package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/bastiangx/namegram/internal/utils"
	"github.com/bastiangx/namegram/pkg/config"
	"github.com/bastiangx/namegram/pkg/model"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Server handles the IPC for one model runner
type Server struct {
	runner     *model.Runner
	config     *config.Config
	configPath string

	decoder  *msgpack.Decoder
	encoder  *msgpack.Encoder
	requests atomic.Int64
}

// NewServer creates a server using stdin/stdout for IPC
func NewServer(runner *model.Runner, cfg *config.Config, configPath string) *Server {
	return NewServerWithIO(runner, cfg, configPath, os.Stdin, os.Stdout)
}

// NewServerWithIO creates a server over arbitrary streams.
func NewServerWithIO(runner *model.Runner, cfg *config.Config, configPath string, r io.Reader, w io.Writer) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Server{
		runner:     runner,
		config:     cfg,
		configPath: configPath,
		decoder:    msgpack.NewDecoder(r),
		encoder:    msgpack.NewEncoder(w),
	}
}

// Start serves requests until the input ends or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	log.Debug("Starting Server.")
	s.sendResponse(map[string]string{"status": "ready"})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := s.decoder.DecodeRaw()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			log.Errorf("Reading request: %v", err)
			return err
		}
		s.requests.Add(1)

		var req Request
		if err := msgpack.Unmarshal(raw, &req); err != nil {
			log.Errorf("Unmarshaling request: %v", err)
			s.sendError("", "invalid msgpack request", 400)
			continue
		}
		s.handleRequest(ctx, req)
	}
}

// Requests returns the number of requests read so far.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) handleRequest(ctx context.Context, req Request) {
	switch req.Action {
	case "learn":
		s.handleLearn(ctx, req)
	case "forget":
		s.handleForget(ctx, req)
	case "remember":
		n := s.runner.Remember(utils.ValidTokens(req.Tokens)...)
		s.sendResponse(ModelResponse{ID: req.ID, Status: "ok", Windows: n})
	case "counts":
		s.handleCounts(req)
	case "top":
		s.handleTop(req)
	case "complete":
		s.handleComplete(req)
	case "save":
		s.handleSave(req)
	case "load":
		s.handleLoad(ctx, req)
	case "stats":
		s.handleStats(req)
	case "config":
		s.handleConfig(req)
	case "health":
		s.sendResponse(map[string]string{"id": req.ID, "status": "ok"})
	default:
		s.sendError(req.ID, fmt.Sprintf("unknown action: %q", req.Action), 400)
	}
}

func (s *Server) handleLearn(ctx context.Context, req Request) {
	tokens := utils.ValidTokens(req.Tokens)
	if len(tokens) == 0 {
		s.sendError(req.ID, "missing 'tokens'", 400)
		return
	}
	n, err := s.runner.LearnIdentifiers(ctx, tokens, req.IDs...)
	s.sendModelResult(req.ID, n, err)
}

func (s *Server) handleForget(ctx context.Context, req Request) {
	tokens := utils.ValidTokens(req.Tokens)
	if len(tokens) == 0 {
		s.sendError(req.ID, "missing 'tokens'", 400)
		return
	}
	n, err := s.runner.Forget(ctx, tokens)
	s.sendModelResult(req.ID, n, err)
}

func (s *Server) sendModelResult(id string, n int, err error) {
	if err != nil {
		s.sendResponse(ModelResponse{ID: id, Status: "partial", Error: err.Error(), Windows: n})
		return
	}
	s.sendResponse(ModelResponse{ID: id, Status: "ok", Windows: n})
}

func (s *Server) handleCounts(req Request) {
	start := time.Now()
	exact, contextCount := s.runner.Counts(req.Tokens)
	s.sendResponse(CountsResponse{
		ID:        req.ID,
		Exact:     exact,
		Context:   contextCount,
		TimeTaken: time.Since(start).Microseconds(),
	})
}

// limit applies the configured default and cap.
func (s *Server) limit(requested int) int {
	limit := requested
	if limit < 1 {
		limit = s.config.Server.DefaultLimit
	}
	if s.config.Server.MaxLimit > 0 {
		limit = min(limit, s.config.Server.MaxLimit)
	}
	return max(limit, 1)
}

func (s *Server) handleTop(req Request) {
	start := time.Now()
	suggestions := s.runner.Suggest(model.Query{
		Left:            req.Tokens,
		Right:           req.Right,
		Limit:           s.limit(req.Limit),
		IdentifiersOnly: req.Identifiers,
	})
	ranks := utils.Ranks(len(suggestions))
	out := make([]CompletionSuggestion, len(suggestions))
	for i, sg := range suggestions {
		out[i] = CompletionSuggestion{Word: sg.Word, Rank: ranks[i], Count: sg.Count, Identifier: sg.Identifier}
	}
	s.sendResponse(CompletionResponse{
		ID:          req.ID,
		Suggestions: out,
		Count:       len(out),
		TimeTaken:   time.Since(start).Microseconds(),
	})
}

func (s *Server) handleComplete(req Request) {
	if !utils.IsValidPrefix(req.Prefix) {
		s.sendError(req.ID, "missing or invalid 'p'", 400)
		return
	}
	start := time.Now()
	entries := s.runner.Vocabulary().Complete(req.Prefix, s.limit(req.Limit))
	ranks := utils.Ranks(len(entries))
	out := make([]CompletionSuggestion, len(entries))
	for i, e := range entries {
		out[i] = CompletionSuggestion{Word: e.Token, Rank: ranks[i], Count: int64(e.Count), Identifier: s.runner.IsRemembered(e.Token)}
	}
	s.sendResponse(CompletionResponse{
		ID:          req.ID,
		Suggestions: out,
		Count:       len(out),
		TimeTaken:   time.Since(start).Microseconds(),
	})
}

func (s *Server) modelDir(req Request) string {
	if req.Dir != "" {
		return req.Dir
	}
	return s.config.Model.Dir
}

func (s *Server) handleSave(req Request) {
	dir := s.modelDir(req)
	mb := s.runner.Save(dir)
	if mb < 0 {
		s.sendResponse(ModelResponse{ID: req.ID, Status: "error", Error: fmt.Sprintf("could not save model to %s", dir)})
		return
	}
	s.sendResponse(ModelResponse{ID: req.ID, Status: "ok", SizeMB: mb})
}

func (s *Server) handleLoad(ctx context.Context, req Request) {
	dir := s.modelDir(req)
	if !s.runner.Load(dir) {
		s.sendResponse(ModelResponse{ID: req.ID, Status: "error", Error: fmt.Sprintf("could not load model from %s", dir)})
		return
	}
	if err := s.runner.ResolveCounter(ctx); err != nil {
		s.sendResponse(ModelResponse{ID: req.ID, Status: "error", Error: err.Error()})
		return
	}
	s.sendResponse(ModelResponse{ID: req.ID, Status: "ok"})
}

func (s *Server) handleStats(req Request) {
	st := s.runner.Stats()
	s.sendResponse(StatsResponse{
		ID:            req.ID,
		Words:         st.Words,
		Sequences:     st.Sequences,
		Nodes:         st.Nodes,
		Remembered:    st.Remembered,
		Loaded:        st.Loaded,
		Bidirectional: st.Bidirectional,
		Forgotten:     st.Forgotten,
		Relearned:     st.Relearned,
		CacheStatic:   st.Cache.Static,
		CacheDynamic:  st.Cache.Dynamic,
		CacheHits:     st.Cache.Hits,
		CacheMisses:   st.Cache.Misses,
		Requests:      s.requests.Load(),
	})
}

func (s *Server) handleConfig(req Request) {
	if (req.MaxLimit != nil && *req.MaxLimit < 1) || (req.DefaultLimit != nil && *req.DefaultLimit < 1) {
		s.sendError(req.ID, "limits must be positive", 400)
		return
	}
	resp := ConfigResponse{ID: req.ID, Status: "ok"}
	if s.configPath == "" {
		if req.MaxLimit != nil {
			s.config.Server.MaxLimit = *req.MaxLimit
		}
		if req.DefaultLimit != nil {
			s.config.Server.DefaultLimit = *req.DefaultLimit
		}
	} else if err := s.config.Update(s.configPath, req.MaxLimit, req.DefaultLimit); err != nil {
		log.Errorf("Saving config to %s: %v", s.configPath, err)
		resp.Status, resp.Error = "error", err.Error()
	}
	resp.MaxLimit, resp.DefaultLimit = s.config.Server.MaxLimit, s.config.Server.DefaultLimit
	s.sendResponse(resp)
}

// sendResponse encodes one response. Encoding errors are only logged.
func (s *Server) sendResponse(response any) {
	if err := s.encoder.Encode(response); err != nil {
		log.Errorf("Marshaling response: %v", err)
	}
}

// sendError sends an error response
func (s *Server) sendError(id, message string, code int) {
	s.sendResponse(CompletionError{ID: id, Error: message, Code: code})
}
