package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"rlhfloop/internal/config"
	"rlhfloop/internal/feedback"
	"rlhfloop/pkg/contract"
)

type scoreArgs struct {
	Candidates []string `arg:"positional,required" help:"candidate completions to rank"`
	Prompt     string   `arg:"--prompt" help:"prompt the candidates answer"`
	Turns      []string `arg:"--turn" help:"dialogue turns as speaker:content; replaces --prompt"`
	Model      string   `arg:"--model" help:"snapshot path; defaults to <writer output_dir>/<model>"`
	Config     string   `arg:"--config" help:"config file (JSON)"`
	JSON       bool     `arg:"--json" help:"print the ranking as JSON"`
	LogLevel   string   `arg:"--log-level" help:"debug|info|warn|error"`
}

// parseTurns 解析 speaker:content；缺少冒号或 speaker 为空视为用法错误。
func parseTurns(raw []string) ([]contract.DialogueTurn, error) {
	turns := make([]contract.DialogueTurn, 0, len(raw))
	for _, s := range raw {
		i := strings.IndexByte(s, ':')
		if i <= 0 || strings.TrimSpace(s[:i]) == "" {
			return nil, errors.Wrapf(contract.ErrInvalidInput, "turn %q must look like speaker:content", s)
		}
		turns = append(turns, contract.DialogueTurn{
			Speaker: strings.TrimSpace(s[:i]),
			Content: contract.CleanText(s[i+1:]),
		})
	}
	return turns, nil
}

func (s *scoreArgs) handle(a *app) int {
	over := config.Unset()
	over.Logging.Level = s.LogLevel
	cfg, code := a.loadConfig(s.Config, over)
	if code != exitOK {
		return code
	}
	prompt := s.Prompt
	if len(s.Turns) > 0 {
		turns, err := parseTurns(s.Turns)
		if err != nil {
			fprintf(a.stderr, "error: %v\n", err)
			return exitUsage
		}
		prompt = contract.FlattenDialogue(turns)
	}
	comp, set, err := config.Assemble(cfg)
	if err != nil {
		_, code := a.configFail("装配失败", err)
		return code
	}
	loop, err := feedback.New(set, comp, a.logger)
	if err != nil {
		_, code := a.configFail("装配失败", err)
		return code
	}
	modelPath := s.Model
	if modelPath == "" {
		modelPath = filepath.Join(writerOutputDir(cfg), cfg.Model)
	}
	if err := loop.LoadModel(context.Background(), modelPath); err != nil {
		return a.runFail("snapshot", err)
	}

	ranked := loop.ScoreCandidates(prompt, s.Candidates)
	if s.JSON {
		out := struct {
			Prompt     string                     `json:"prompt"`
			Candidates []contract.ScoredCandidate `json:"candidates"`
		}{Prompt: prompt, Candidates: ranked}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return a.runFail("cli", err)
		}
		return exitOK
	}
	printRanking(a, ranked)
	return exitOK
}

func printRanking(a *app, ranked []contract.ScoredCandidate) {
	for _, sc := range ranked {
		fprintf(a.stdout, "Score %+.3f -> %s\n", sc.Reward, sc.Text)
	}
}
