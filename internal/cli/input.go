// Package cli is a line oriented front end to a model runner, for debugging
// and poking at trained models by hand.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/bastiangx/namegram/internal/utils"
	"github.com/bastiangx/namegram/pkg/model"
	"github.com/charmbracelet/log"
)

const help = `commands:
  top a b [| c d]   successors of "a b", optionally followed by "c d"
  ids a b [| c d]   like top, remembered identifiers only
  count a b c       exact and context count
  learn a b c       learn every window of the line
  forget a b c      forget every window of the line
  remember a b      mark tokens as identifiers
  complete pre      vocabulary tokens starting with pre
  save [dir]        save the model
  load [dir]        serve a saved model
  stats             model statistics`

// InputHandler reads commands line by line and prints the results.
type InputHandler struct {
	runner   *model.Runner
	limit    int
	modelDir string
	logger   *log.Logger
	requests int
}

// NewInputHandler handles initialization of the InputHandler with basic parameters
func NewInputHandler(runner *model.Runner, limit int, modelDir string, logger *log.Logger) *InputHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &InputHandler{
		runner:   runner,
		limit:    max(limit, 1),
		modelDir: modelDir,
		logger:   logger,
	}
}

// Start runs the command loop until in is exhausted or ctx is done.
func (h *InputHandler) Start(ctx context.Context, in io.Reader) error {
	h.logger.Print("namegram CLI")
	h.logger.Print(`type "help" for commands (Ctrl+C to exit):`)
	reader := bufio.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			h.handleInput(ctx, line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Requests returns the number of commands handled.
func (h *InputHandler) Requests() int {
	return h.requests
}

func (h *InputHandler) handleInput(ctx context.Context, line string) {
	h.requests++
	fields := utils.SplitTokens(line)
	if len(fields) == 0 {
		return
	}
	cmd, args := fields[0], fields[1:]

	start := time.Now()
	switch cmd {
	case "top", "ids":
		h.top(args, cmd == "ids")
	case "count":
		exact, contextCount := h.runner.Counts(args)
		h.logger.Printf("%s: exact %s, context %s", strings.Join(args, " "),
			utils.FormatWithCommas(exact), utils.FormatWithCommas(contextCount))
	case "learn", "forget":
		if len(args) == 0 {
			h.logger.Errorf("%s needs tokens", cmd)
			return
		}
		learn := h.runner.Learn
		if cmd == "forget" {
			learn = h.runner.Forget
		}
		n, err := learn(ctx, args)
		if err != nil {
			h.logger.Errorf("%s stopped after %d windows: %v", cmd, n, err)
			return
		}
		h.logger.Printf("%s: %d windows", cmd, n)
	case "remember":
		h.logger.Printf("remembered %d new identifiers", h.runner.Remember(args...))
	case "complete":
		h.complete(args)
	case "save":
		dir := h.dir(args)
		if mb := h.runner.Save(dir); mb >= 0 {
			h.logger.Printf("saved %s (%.2f MB)", dir, mb)
		} else {
			h.logger.Errorf("could not save %s", dir)
		}
	case "load":
		dir := h.dir(args)
		if !h.runner.Load(dir) {
			h.logger.Errorf("could not load %s", dir)
			return
		}
		if err := h.runner.ResolveCounter(ctx); err != nil {
			h.logger.Errorf("warming %s: %v", dir, err)
			return
		}
		h.logger.Printf("loaded %s", dir)
	case "stats":
		h.stats()
	case "help":
		h.logger.Print(help)
	default:
		h.logger.Errorf("unknown command %q, try help", cmd)
		return
	}
	h.logger.Debugf("Took [ %v ] for %q", time.Since(start), line)
}

func (h *InputHandler) dir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return h.modelDir
}

func (h *InputHandler) top(args []string, idsOnly bool) {
	left, right := args, []string(nil)
	if i := slices.Index(args, "|"); i >= 0 {
		left, right = args[:i], args[i+1:]
	}
	suggestions := h.runner.Suggest(model.Query{Left: left, Right: right, Limit: h.limit, IdentifiersOnly: idsOnly})
	if len(suggestions) == 0 {
		h.logger.Warnf("No suggestions after '%s'", strings.Join(left, " "))
		return
	}
	h.logger.Printf("Found %d suggestions after '%s':", len(suggestions), strings.Join(left, " "))
	for i, s := range suggestions {
		word := fmt.Sprintf("\033[38;5;75m%s\033[0m", s.Word)
		mark := ""
		if s.Identifier {
			mark = " *"
		}
		h.logger.Printf("%2d. %-40s (count: %8s)%s", i+1, word, utils.FormatWithCommas(s.Count), mark)
	}
}

func (h *InputHandler) complete(args []string) {
	if len(args) != 1 || !utils.IsValidPrefix(args[0]) {
		h.logger.Error("complete needs one prefix")
		return
	}
	entries := h.runner.Vocabulary().Complete(args[0], h.limit)
	if len(entries) == 0 {
		h.logger.Warnf("No tokens start with '%s'", args[0])
		return
	}
	for i, e := range entries {
		h.logger.Printf("%2d. %-40s (freq: %8s)", i+1, e.Token, utils.FormatWithCommas(e.Count))
	}
}

func (h *InputHandler) stats() {
	st := h.runner.Stats()
	h.logger.Print("model",
		"words", st.Words,
		"sequences", st.Sequences,
		"nodes", st.Nodes,
		"remembered", st.Remembered,
		"loaded", st.Loaded,
		"bidirectional", st.Bidirectional)
	if st.Loaded {
		h.logger.Print("cache",
			"static", st.Cache.Static,
			"dynamic", st.Cache.Dynamic,
			"hits", st.Cache.Hits,
			"misses", st.Cache.Misses,
			"forgotten", st.Forgotten,
			"relearned", st.Relearned)
	}
}
