package oracle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/roach88/parity/internal/index"
	"github.com/roach88/parity/internal/ir"
)

// Generator is a single-turn text completion service.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, system, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// LLM is an Oracle backed by a Generator. Proposals are planned then
// patched; repairs go straight to the fixer. Every reply is stripped of
// markdown fences and must parse before it is returned.
type LLM struct {
	gen    Generator
	logger *slog.Logger
}

// NewLLM creates an LLM oracle. A nil logger discards output.
func NewLLM(gen Generator, logger *slog.Logger) *LLM {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LLM{gen: gen, logger: logger}
}

// Propose implements Oracle.
func (o *LLM) Propose(ctx context.Context, req ProposeRequest) (ir.SourceState, error) {
	plan, err := o.gen.Generate(ctx, plannerSystem, plannerPrompt(req))
	if err != nil {
		return ir.SourceState{}, classify("plan", err)
	}
	if strings.TrimSpace(plan) == "" {
		return ir.SourceState{}, &Error{Kind: KindMalformed, Op: "plan", Err: fmt.Errorf("empty plan")}
	}
	o.logger.Debug("oracle plan", "symbol", req.Symbol, "bytes", len(plan))

	reply, err := o.gen.Generate(ctx, patcherSystem, patcherPrompt(req, plan))
	if err != nil {
		return ir.SourceState{}, classify("propose", err)
	}
	return o.accept(ctx, "propose", req.Current.Path, reply)
}

// Repair implements Oracle.
func (o *LLM) Repair(ctx context.Context, req RepairRequest) (ir.SourceState, error) {
	reply, err := o.gen.Generate(ctx, fixerSystem, fixerPrompt(req))
	if err != nil {
		return ir.SourceState{}, classify("repair", err)
	}
	return o.accept(ctx, "repair", req.Candidate.Path, reply)
}

func (o *LLM) accept(ctx context.Context, op, path, reply string) (ir.SourceState, error) {
	code := StripFences(reply)
	if strings.TrimSpace(code) == "" {
		return ir.SourceState{}, &Error{Kind: KindMalformed, Op: op, Err: fmt.Errorf("empty reply")}
	}
	if lang := index.DetectLanguage(path); lang != "" {
		if err := index.ParseCheck(ctx, lang, []byte(code)); err != nil {
			return ir.SourceState{}, &Error{Kind: KindMalformed, Op: op, Err: err}
		}
	}
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	state := ir.NewSourceState(path, code)
	o.logger.Info("oracle reply accepted", "op", op, "path", path, "digest", state.Digest)
	return state, nil
}

var fenceRe = regexp.MustCompile("(?s)```[A-Za-z0-9_+.-]*[ \t]*\r?\n(.*?)\r?\n?```")

// StripFences returns the longest fenced code block in reply, or reply
// itself trimmed of surrounding blank lines when it has no fence.
func StripFences(reply string) string {
	matches := fenceRe.FindAllStringSubmatch(reply, -1)
	if len(matches) == 0 {
		return strings.Trim(reply, "\r\n")
	}
	best := matches[0][1]
	for _, m := range matches[1:] {
		if len(m[1]) > len(best) {
			best = m[1]
		}
	}
	return best
}
