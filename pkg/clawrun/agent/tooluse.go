// Package agent – tooluse.go extracts structured tool invocations from
// free-form assistant output. Three grammars coexist in one message:
//
//  1. fenced code blocks whose info-string starts with a registered block
//     type, optionally followed by positional arguments
//  2. <tool-use><NAME args…>body</NAME></tool-use>
//  3. <function_calls><invoke name="NAME">body</invoke></function_calls>
//
// plus provider-native structured tool calls carried as message metadata.
// Extraction is position-aware: every tool use records its start offset so
// the ordered stream matches the textual order of openings.
package agent

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ToolUse is a parsed invocation extracted from assistant output. It is
// ephemeral: created by extraction, consumed by the executor, discarded once
// the resulting system message is emitted.
type ToolUse struct {
	Tool    string
	Args    []string
	Kwargs  map[string]string
	Content string

	// CallID is set for structured tool-call formats.
	CallID string

	// Start is the byte offset of the invocation's opening in the source
	// message, used to order tool uses and separate prefix text.
	Start int
}

// Runnable reports whether the tool resolves to a loaded spec.
func (tu *ToolUse) Runnable(reg *ToolRegistry) bool {
	if reg == nil {
		return false
	}
	_, ok := reg.Resolve(tu.Tool)
	return ok
}

// Markdown renders the tool use back to its fenced-code form. Parsing the
// result yields the same tool, args and content.
func (tu *ToolUse) Markdown() string {
	info := tu.Tool
	if len(tu.Args) > 0 {
		info += " " + strings.Join(tu.Args, " ")
	}
	body := tu.Content
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return fmt.Sprintf("```%s\n%s```", info, body)
}

var (
	toolUseBlockRe  = regexp.MustCompile(`(?s)<tool-use>(.*?)</tool-use>`)
	toolUseInnerRe  = regexp.MustCompile(`(?s)<([a-zA-Z][a-zA-Z0-9_-]*)((?:\s[^>]*)?)>(.*?)</([a-zA-Z][a-zA-Z0-9_-]*)>`)
	functionCallsRe = regexp.MustCompile(`(?s)<function_calls>(.*?)</function_calls>`)
	invokeRe        = regexp.MustCompile(`(?s)<invoke\s+name="([^"]+)"\s*>(.*?)</invoke>`)
	parameterRe     = regexp.MustCompile(`(?s)<parameter\s+name="([^"]+)"\s*>(.*?)</parameter>`)
)

// ExtractToolUses folds all grammars into one stream ordered by start offset.
// Fenced blocks with unknown tags are plain display text and yield nothing;
// XML matches that begin inside a fenced block are ignored (the block body is
// literal content). Native calls are appended after all textual matches, in
// their metadata order.
func ExtractToolUses(content string, reg *ToolRegistry, native []NativeToolCall) []ToolUse {
	var uses []ToolUse

	fenced, ranges := extractFenced(content, reg)
	uses = append(uses, fenced...)

	inFence := func(off int) bool {
		for _, r := range ranges {
			if off >= r[0] && off < r[1] {
				return true
			}
		}
		return false
	}

	uses = append(uses, extractToolUseXML(content, inFence)...)
	uses = append(uses, extractInvokeXML(content, inFence)...)

	sort.SliceStable(uses, func(i, j int) bool { return uses[i].Start < uses[j].Start })

	for i, call := range native {
		uses = append(uses, ToolUse{
			Tool:    call.Name,
			Kwargs:  parseJSONKwargs(call.Arguments),
			Content: call.Arguments,
			CallID:  call.ID,
			Start:   len(content) + i,
		})
	}
	return uses
}

// extractFenced scans line-by-line for fenced code blocks, returning the tool
// uses plus the byte ranges of every fenced region (known tag or not) so the
// XML extractors can skip them.
//
// For tools with VerbatimBody (save/patch), nested fences inside the body are
// kept: a line opening a tagged fence increases depth, a bare closing fence
// decreases it, and the block ends when depth returns to zero. Other blocks
// end at the first closing fence. A fence still open at the end of the
// message yields no tool use.
func extractFenced(content string, reg *ToolRegistry) ([]ToolUse, [][2]int) {
	var uses []ToolUse
	var ranges [][2]int

	lines := strings.SplitAfter(content, "\n")
	offset := 0
	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimRight(strings.TrimLeft(line, " \t"), "\r\n")
		if !strings.HasPrefix(trimmed, "```") {
			offset += len(line)
			i++
			continue
		}

		start := offset
		info := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
		fields := strings.Fields(info)

		var spec *ToolSpec
		var tag string
		if len(fields) > 0 {
			tag = fields[0]
			if reg != nil {
				spec, _ = reg.ResolveBlockType(tag)
			}
		}
		verbatim := spec != nil && spec.VerbatimBody

		// Collect the body until the matching close.
		offset += len(line)
		i++
		depth := 1
		var body strings.Builder
		closed := false
		for i < len(lines) {
			inner := lines[i]
			innerTrim := strings.TrimRight(strings.TrimLeft(inner, " \t"), "\r\n")
			if strings.HasPrefix(innerTrim, "```") {
				rest := strings.TrimSpace(strings.TrimPrefix(innerTrim, "```"))
				if verbatim && rest != "" {
					depth++
				} else if rest == "" {
					depth--
				}
				if depth == 0 {
					offset += len(inner)
					i++
					closed = true
					break
				}
			}
			body.WriteString(inner)
			offset += len(inner)
			i++
		}
		ranges = append(ranges, [2]int{start, offset})

		// An unclosed fence is display text, not an invocation.
		if spec != nil && closed {
			uses = append(uses, ToolUse{
				Tool:    tag,
				Args:    append([]string(nil), fields[1:]...),
				Content: strings.TrimSuffix(body.String(), "\n"),
				Start:   start,
			})
		}
	}
	return uses, ranges
}

func extractToolUseXML(content string, inFence func(int) bool) []ToolUse {
	var uses []ToolUse
	for _, block := range toolUseBlockRe.FindAllStringSubmatchIndex(content, -1) {
		if inFence(block[0]) {
			continue
		}
		inner := content[block[2]:block[3]]
		for _, m := range toolUseInnerRe.FindAllStringSubmatchIndex(inner, -1) {
			name := inner[m[2]:m[3]]
			closing := inner[m[8]:m[9]]
			if name != closing {
				continue
			}
			attrs := strings.TrimSpace(inner[m[4]:m[5]])
			body := inner[m[6]:m[7]]
			args, kwargs := parseAttrTokens(attrs)
			uses = append(uses, ToolUse{
				Tool:    name,
				Args:    args,
				Kwargs:  kwargs,
				Content: strings.TrimSpace(trimOuterNewlines(body)),
				Start:   block[2] + m[0],
			})
		}
	}
	return uses
}

func extractInvokeXML(content string, inFence func(int) bool) []ToolUse {
	var uses []ToolUse
	for _, block := range functionCallsRe.FindAllStringSubmatchIndex(content, -1) {
		if inFence(block[0]) {
			continue
		}
		inner := content[block[2]:block[3]]
		for _, m := range invokeRe.FindAllStringSubmatchIndex(inner, -1) {
			name := inner[m[2]:m[3]]
			body := inner[m[4]:m[5]]

			kwargs := map[string]string{}
			params := parameterRe.FindAllStringSubmatch(body, -1)
			for _, p := range params {
				kwargs[p[1]] = strings.TrimSpace(p[2])
			}
			contentBody := ""
			if len(params) == 0 {
				contentBody = strings.TrimSpace(trimOuterNewlines(body))
			}
			uses = append(uses, ToolUse{
				Tool:    name,
				Kwargs:  kwargs,
				Content: contentBody,
				Start:   block[2] + m[0],
			})
		}
	}
	return uses
}

// parseAttrTokens splits an attribute string into positional args and
// key="value" kwargs.
func parseAttrTokens(attrs string) ([]string, map[string]string) {
	var args []string
	kwargs := map[string]string{}
	for _, tok := range strings.Fields(attrs) {
		if k, v, ok := strings.Cut(tok, "="); ok {
			kwargs[k] = strings.Trim(v, `"'`)
			continue
		}
		args = append(args, tok)
	}
	if len(kwargs) == 0 {
		kwargs = nil
	}
	return args, kwargs
}

func trimOuterNewlines(s string) string {
	return strings.Trim(s, "\r\n")
}

// parseJSONKwargs flattens a JSON argument object into string kwargs. Nested
// values keep their JSON encoding.
func parseJSONKwargs(raw string) map[string]string {
	args, err := DecodeJSONObject(raw)
	if err != nil || len(args) == 0 {
		return nil
	}
	out := make(map[string]string, len(args))
	for k, v := range args {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}
