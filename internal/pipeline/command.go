package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

const maxHookLine = 1 << 20

// CommandConfig configures the external pipeline command
type CommandConfig struct {
	Command   string
	Args      []string
	Env       []string
	OutputDir string
}

// CommandPipeline runs each stage as a subprocess. The process reports
// lifecycle hooks as JSON lines on stdout.
type CommandPipeline struct {
	config CommandConfig
	logger *slog.Logger
}

// NewCommandPipeline creates a subprocess backed pipeline
func NewCommandPipeline(config CommandConfig, logger *slog.Logger) *CommandPipeline {
	return &CommandPipeline{config: config, logger: logger}
}

// NewSession prepares the article's working directory
func (p *CommandPipeline) NewSession(ctx context.Context, req SessionRequest) (Session, error) {
	workDir := WorkDir(p.config.OutputDir, req.OwnerID, req.ArticleID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	p.logger.Info("Pipeline session ready",
		slog.String("article_id", req.ArticleID),
		slog.String("work_dir", workDir),
	)

	return &commandSession{
		pipeline:   p,
		req:        req,
		workDir:    workDir,
		articleDir: ArticleDir(p.config.OutputDir, req.OwnerID, req.ArticleID, req.Topic),
	}, nil
}

type commandSession struct {
	pipeline   *CommandPipeline
	req        SessionRequest
	workDir    string
	articleDir string
}

func (s *commandSession) WorkDir() string    { return s.workDir }
func (s *commandSession) ArticleDir() string { return s.articleDir }

func (s *commandSession) Finalize(ctx context.Context) error {
	return s.Run(ctx, FinalizeFlags(), NopCallbacks{})
}

func (s *commandSession) Run(ctx context.Context, flags Flags, cb Callbacks) error {
	cfg := s.pipeline.config
	logger := s.pipeline.logger.With(slog.String("article_id", s.req.ArticleID))

	args := append([]string{}, cfg.Args...)
	args = append(args, "--topic", s.req.Topic, "--output-dir", s.workDir)
	args = append(args, flagArgs(flags)...)

	cmd := exec.CommandContext(ctx, cfg.Command, args...)
	cmd.Dir = s.workDir
	cmd.Env = append(os.Environ(), cfg.Env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open pipeline stdout: %w", err)
	}

	logger.Info("Starting pipeline stage",
		slog.String("command", cfg.Command),
		slog.Any("flags", flags),
	)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	scanErr := s.relayHooks(stdout, cb, logger)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("pipeline exited: %w: %s", err, tail(stderr.String(), 512))
	}
	if scanErr != nil {
		return fmt.Errorf("failed to read pipeline output: %w", scanErr)
	}

	logger.Info("Pipeline stage finished")
	return nil
}

func (s *commandSession) relayHooks(r io.Reader, cb Callbacks, logger *slog.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxHookLine)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var h hook
		if err := json.Unmarshal(line, &h); err != nil || h.Name == "" {
			logger.Debug("Pipeline output", slog.String("line", string(line)))
			continue
		}

		if !dispatch(cb, h) {
			logger.Warn("Unknown pipeline hook", slog.String("hook", h.Name))
		}
	}

	// keep draining so the child never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
	return scanner.Err()
}

type hook struct {
	Name         string   `json:"hook"`
	Perspectives []string `json:"perspectives"`
	URLs         []string `json:"urls"`
	Outline      string   `json:"outline"`
}

func dispatch(cb Callbacks, h hook) bool {
	switch h.Name {
	case "identify_perspective_start":
		cb.OnIdentifyPerspectiveStart()
	case "identify_perspective_end":
		cb.OnIdentifyPerspectiveEnd(h.Perspectives)
	case "information_gathering_start":
		cb.OnInformationGatheringStart()
	case "dialogue_turn_end":
		cb.OnDialogueTurnEnd(h.URLs)
	case "information_gathering_end":
		cb.OnInformationGatheringEnd()
	case "information_organization_start":
		cb.OnInformationOrganizationStart()
	case "direct_outline_generation_end":
		cb.OnDirectOutlineGenerationEnd(h.Outline)
	case "outline_refinement_end":
		cb.OnOutlineRefinementEnd(h.Outline)
	default:
		return false
	}
	return true
}

func flagArgs(f Flags) []string {
	var args []string
	add := func(on bool, name string) {
		if on {
			args = append(args, name)
		}
	}
	add(f.Research, "--do-research")
	add(f.Outline, "--do-generate-outline")
	add(f.Article, "--do-generate-article")
	add(f.Polish, "--do-polish-article")
	add(f.RemoveDuplicate, "--remove-duplicate")
	add(f.PostRun, "--post-run")
	add(f.Summary, "--summary")
	return args
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
