package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/DannyJanmaat/VSPilot-sub000/internal/logging"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/workspace"
)

// FixPatch is a concrete search/replace edit proposed for one file.
type FixPatch struct {
	File    string `json:"file"`
	Search  string `json:"search"`
	Replace string `json:"replace"`
}

// ErrorAnalysis is derived from a single build diagnostic.
type ErrorAnalysis struct {
	Cause           string    `json:"cause"`
	SuggestedFix    string    `json:"suggested_fix"`
	AutoFixable     bool      `json:"auto_fixable"`
	RelatedFiles    []string  `json:"related_files,omitempty"`
	MissingPackages []string  `json:"missing_packages,omitempty"`
	Patch           *FixPatch `json:"patch,omitempty"`
}

// aiFixResponse is the JSON shape requested from the provider.
type aiFixResponse struct {
	Cause       string   `json:"cause"`
	Fix         string   `json:"fix"`
	AutoFixable bool     `json:"auto_fixable"`
	Related     []string `json:"related_files"`
	File        string   `json:"file"`
	Search      string   `json:"search"`
	Replace     string   `json:"replace"`
}

// diagnostic patterns for the fast, no-AI classification path.
var diagPatterns = []struct {
	re       *regexp.Regexp
	cause    func(m []string) string
	packages func(m []string) []string
	fixable  bool
}{
	{
		re:       regexp.MustCompile(`no required module provides package ([^\s;]+)`),
		cause:    func(m []string) string { return fmt.Sprintf("Missing module dependency %q", m[1]) },
		packages: func(m []string) []string { return []string{m[1]} },
		fixable:  true,
	},
	{
		re:       regexp.MustCompile(`cannot find package "([^"]+)"`),
		cause:    func(m []string) string { return fmt.Sprintf("Unresolved import %q", m[1]) },
		packages: func(m []string) []string { return []string{m[1]} },
		fixable:  true,
	},
	{
		re:       regexp.MustCompile(`The type or namespace name '(\w+)' could not be found`),
		cause:    func(m []string) string { return fmt.Sprintf("Missing reference for type or namespace %q", m[1]) },
		packages: func(m []string) []string { return []string{m[1]} },
		fixable:  true,
	},
	{
		re:      regexp.MustCompile(`undefined: (\S+)`),
		cause:   func(m []string) string { return fmt.Sprintf("Undefined identifier %q", m[1]) },
		fixable: false,
	},
	{
		re:      regexp.MustCompile(`(?i)syntax error`),
		cause:   func(m []string) string { return "Syntax error" },
		fixable: false,
	},
	{
		re:      regexp.MustCompile(`(?i)expected ['"]?;`),
		cause:   func(m []string) string { return "Missing statement terminator" },
		fixable: true,
	},
}

// Analyzer turns build diagnostics into repair suggestions, combining fast
// pattern classification with a per-diagnostic AI consultation.
type Analyzer struct {
	ai  Completer
	log *zap.Logger
}

// NewAnalyzer creates an Analyzer backed by the given completion source.
func NewAnalyzer(ai Completer) *Analyzer {
	return &Analyzer{
		ai:  ai,
		log: logging.L().Named("analyzer"),
	}
}

// Analyze derives an ErrorAnalysis for one diagnostic. AI failure degrades
// to the pattern-based result; Analyze itself never fails.
func (a *Analyzer) Analyze(ctx context.Context, item workspace.ErrorItem) ErrorAnalysis {
	analysis := a.classify(item)

	reply, err := a.ai.GetStructuredCompletion(ctx, buildFixPrompt(item))
	if err != nil {
		a.log.Warn("fix suggestion unavailable, using pattern analysis only",
			zap.String("file", item.File),
			zap.Error(err))
		return analysis
	}

	var parsed aiFixResponse
	clean := cleanJSONResponse(reply)
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		// Keep the raw reply as a human-readable suggestion.
		analysis.SuggestedFix = strings.TrimSpace(reply)
		return analysis
	}

	if parsed.Cause != "" {
		analysis.Cause = parsed.Cause
	}
	if parsed.Fix != "" {
		analysis.SuggestedFix = parsed.Fix
	}
	analysis.AutoFixable = analysis.AutoFixable || parsed.AutoFixable
	analysis.RelatedFiles = append(analysis.RelatedFiles, parsed.Related...)
	if parsed.Search != "" && parsed.Replace != "" {
		file := parsed.File
		if file == "" {
			file = item.File
		}
		analysis.Patch = &FixPatch{File: file, Search: parsed.Search, Replace: parsed.Replace}
	}
	return analysis
}

// classify applies the regex patterns for common diagnostics.
func (a *Analyzer) classify(item workspace.ErrorItem) ErrorAnalysis {
	analysis := ErrorAnalysis{
		Cause:        item.Description,
		RelatedFiles: []string{item.File},
	}
	for _, p := range diagPatterns {
		if m := p.re.FindStringSubmatch(item.Description); m != nil {
			analysis.Cause = p.cause(m)
			analysis.AutoFixable = p.fixable
			if p.packages != nil {
				analysis.MissingPackages = p.packages(m)
			}
			break
		}
	}
	return analysis
}

func buildFixPrompt(item workspace.ErrorItem) string {
	var sb strings.Builder
	sb.WriteString("A build produced this diagnostic:\n\n")
	fmt.Fprintf(&sb, "  %s (%s:%d:%d)\n\n", item.Description, item.File, item.Line, item.Column)
	sb.WriteString(`Respond with valid JSON only:
{
  "cause": "<one-sentence root cause>",
  "fix": "<what to change>",
  "auto_fixable": true|false,
  "related_files": ["..."],
  "file": "<file to edit>",
  "search": "<exact text to find, empty if unknown>",
  "replace": "<replacement text>"
}
The search text must match the file exactly.`)
	return sb.String()
}

// cleanJSONResponse strips markdown fences and whitespace from AI JSON
// replies.
func cleanJSONResponse(content string) string {
	clean := strings.TrimSpace(content)
	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
		clean = strings.TrimSuffix(clean, "```")
	}
	if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
		clean = strings.TrimSuffix(clean, "```")
	}
	return strings.TrimSpace(clean)
}
