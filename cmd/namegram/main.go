// Copyright 2025 The WordServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the namegram model server, trainer and CLI [DBG].

namegram counts token n-grams in an adaptive trie and answers "what usually
comes next" queries from it. Models are trained in memory, saved to a
directory, and served straight from their files afterwards, so large models
start instantly and only pay for the nodes they touch.

# Usage

Train a model from a text file with one whitespace separated token sequence
per line:

	namegram -train corpus.txt -model model/

Serve it over MessagePack IPC:

	namegram -model model/

Poke at it interactively:

	namegram -c -model model/

# Configuration

Runtime configuration lives in a TOML file, created with defaults on first
run in the user config dir:

	[counting]
	order = 6
	coc_cutoff = 3
	array_promote_threshold = 10
	map_depth = 1

	[cache]
	dynamic_size = 1000000
	prefetch_depth = 1

	[model]
	dir = "model"
	bidirectional = true
	vocab_cutoff = 0

	[server]
	max_limit = 64
	default_limit = 10

	[cli]
	default_limit = 10

# IPC Protocol

The server reads MessagePack requests from stdin and writes one response
per request to stdout:

	{"id": "r1", "action": "top", "tokens": ["get", "user"], "l": 5}
	{"id": "r1", "s": [{"w": "name", "r": 1, "n": 12}], "c": 1, "t": 31}

See package server for every action.

# Command Line Flags

	-config string
	    Path to a config file (default: user config dir)
	-model string
	    Model directory (default from config)
	-train string
	    Train on a text file and save the model, then exit
	-limit int
	    Number of suggestions in CLI mode (default from config)
	-d  Enable debug mode with detailed logging
	-c  Run in CLI mode instead of server mode
	-version
	    Show current version

Logs always go to stderr; stdout carries IPC only.
*/
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bastiangx/namegram/internal/cli"
	"github.com/bastiangx/namegram/internal/logger"
	"github.com/bastiangx/namegram/internal/utils"
	"github.com/bastiangx/namegram/pkg/config"
	"github.com/bastiangx/namegram/pkg/model"
	"github.com/bastiangx/namegram/pkg/server"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

const (
	Version = "0.1.0-beta"
	AppName = "namegram"
	gh      = "https://github.com/bastiangx/namegram"
)

// sigHandler cancels ctx and exits normally on SIGINT or SIGTERM. stdin
// reads do not observe ctx, so it exits instead of waiting for them.
func sigHandler(cancel context.CancelFunc, cleanup func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		cancel()
		cleanup()
		os.Exit(0)
	}()
}

// main only manages the flow; the packages it calls hold the logic.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defaultConfig := config.DefaultConfig()

	showVersion := flag.Bool("version", false, "Show current version")
	configPath := flag.String("config", "", "Path to a config file")
	modelFlag := flag.String("model", "", "Model directory (default from config)")
	trainFile := flag.String("train", "", "Train on a text file, save the model and exit")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	limit := flag.Int("limit", defaultConfig.CLI.DefaultLimit, "Number of suggestions to return in CLI mode")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	cfg, usedConfig, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Debugf("Using config file: (%s)", config.GetActiveConfigPath(usedConfig))

	pathResolver, err := utils.NewPathResolver()
	if err != nil {
		log.Fatalf("Failed to initialize path resolver: %v", err)
	}
	if *debugMode {
		for k, v := range pathResolver.GetRuntimeInfo() {
			log.Debug("runtime", k, v)
		}
	}

	dir := cfg.Model.Dir
	if *modelFlag != "" {
		dir = *modelFlag
	}
	modelDir := pathResolver.GetModelDir(dir, model.VocabularyFile)
	log.Debugf("Using model dir at: %s", modelDir)

	runner := model.NewRunner(cfg.ModelOptions())
	defer runner.Close()
	sigHandler(cancel, func() { runner.Close() })

	if *trainFile != "" {
		if err := train(ctx, runner, *trainFile, modelDir); err != nil {
			log.Fatalf("Training failed: %v", err)
		}
		return
	}

	if utils.FileExists(filepath.Join(modelDir, model.VocabularyFile)) {
		if !runner.Load(modelDir) {
			log.Fatalf("Failed to load model from %s", modelDir)
		}
		if err := runner.ResolveCounter(ctx); err != nil {
			log.Fatalf("Failed to warm model: %v", err)
		}
		log.Debug("Model load done")
	} else {
		log.Warn("No model found, running with an empty one...", "dir", modelDir)
	}

	// CLI would be mainly used for testing and dbg purposes.
	if *cliMode {
		log.SetReportTimestamp(false)
		out := logger.NewWithConfig("", log.GetLevel(), false, false, log.TextFormatter)
		inputHandler := cli.NewInputHandler(runner, *limit, modelDir, out)
		if err := inputHandler.Start(ctx, os.Stdin); err != nil && ctx.Err() == nil {
			log.Fatalf("CLI error: %v", err)
		}
		return
	}

	log.Debug("spawning IPC")
	srv := server.NewServer(runner, cfg, usedConfig)
	showStartupInfo(modelDir, runner)
	if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Server error: %v", err)
	}
}

// train learns every line of path and saves the model into modelDir.
func train(ctx context.Context, runner *model.Runner, path, modelDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	start := time.Now()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lines, windows := 0, 0
	for sc.Scan() {
		tokens := utils.SplitTokens(sc.Text())
		if len(tokens) == 0 {
			continue
		}
		n, err := runner.Learn(ctx, tokens)
		windows += n
		if err != nil {
			return err
		}
		lines++
		if lines%10_000 == 0 {
			log.Debug("training", "lines", utils.FormatWithCommas(lines), "windows", utils.FormatWithCommas(windows))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	mb := runner.Save(modelDir)
	if mb < 0 {
		return fmt.Errorf("could not save model to %s", modelDir)
	}
	st := runner.Stats()
	log.Info("model trained",
		"lines", utils.FormatWithCommas(lines),
		"windows", utils.FormatWithCommas(windows),
		"words", utils.FormatWithCommas(st.Words),
		"nodes", utils.FormatWithCommas(st.Nodes),
		"mb", fmt.Sprintf("%.2f", mb),
		"took", time.Since(start).Round(time.Millisecond))
	return nil
}

func printVersion() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	logger.SetStyles(styles)

	logger.Print("")
	logger.Print("[ namegram ] n-gram counts for code completion")
	logger.Print("", "version", Version)
	logger.Print("")
	logger.Print("use -h or --help to see available options")
	logger.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(modelDir string, runner *model.Runner) {
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)
	defer log.SetLevel(currentLevel)

	st := runner.Stats()
	fmt.Fprintln(os.Stderr, "==========")
	fmt.Fprintln(os.Stderr, " namegram ")
	fmt.Fprintln(os.Stderr, "==========")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", os.Getpid())
	log.Infof("model dir: ( %s )", modelDir)
	log.Info("model", "words", st.Words, "sequences", st.Sequences, "loaded", st.Loaded)
	log.Info("status: ready")
	fmt.Fprintln(os.Stderr, "==========")
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to exit")
}
