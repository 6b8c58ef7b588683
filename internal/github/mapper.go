package github

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// Issue bodies are markdown with fixed level-2 sections followed by an
// HTML comment holding the fields markdown cannot carry:
//
//	## Description
//	...
//	## Acceptance Criteria
//	- [ ] criterion
//	<!-- devlog-metadata {"v":1,"key":"..."} -->
const (
	metadataMarker  = "devlog-metadata"
	noteMarker      = "devlog-note"
	metadataVersion = 1

	sectionDescription = "Description"
	sectionBusiness    = "Business Context"
	sectionTechnical   = "Technical Context"
	sectionCriteria    = "Acceptance Criteria"
	sectionFiles       = "Files"
)

var knownSections = map[string]bool{
	sectionDescription: true,
	sectionBusiness:    true,
	sectionTechnical:   true,
	sectionCriteria:    true,
	sectionFiles:       true,
}

// Metadata is the JSON block embedded in an issue body.
type Metadata struct {
	Version            int                        `json:"v"`
	Key                string                     `json:"key"`
	ProjectID          int64                      `json:"projectId,omitempty"`
	AIContext          devlog.AIContext           `json:"aiContext"`
	Decisions          []devlog.Decision          `json:"decisions,omitempty"`
	Dependencies       []devlog.Dependency        `json:"dependencies,omitempty"`
	Risks              []devlog.Risk              `json:"risks,omitempty"`
	RelatedDevlogs     []string                   `json:"relatedDevlogs,omitempty"`
	ExternalReferences []devlog.ExternalReference `json:"externalReferences,omitempty"`
}

// ParsedBody is what ParseBody recovers from an issue body.
type ParsedBody struct {
	Description        string
	BusinessContext    string
	TechnicalContext   string
	AcceptanceCriteria []string
	Files              []string

	// Metadata is nil when the body has no metadata block.
	Metadata *Metadata
	// MetadataErr is set when a metadata block exists but is not valid
	// JSON; the markdown sections are still parsed.
	MetadataErr error
}

// ─── Formatting ──────────────────────────────────────────────────────────────

// FormatBody renders an entry as an issue body.
func FormatBody(e *devlog.Entry) string {
	var sb strings.Builder
	section := func(title, content string) {
		sb.WriteString("## " + title + "\n\n")
		if content != "" {
			sb.WriteString(content + "\n\n")
		}
	}

	section(sectionDescription, strings.TrimSpace(e.Description))
	if v := strings.TrimSpace(e.Context.BusinessContext); v != "" {
		section(sectionBusiness, v)
	}
	if v := strings.TrimSpace(e.Context.TechnicalContext); v != "" {
		section(sectionTechnical, v)
	}
	if len(e.Context.AcceptanceCriteria) > 0 {
		lines := make([]string, len(e.Context.AcceptanceCriteria))
		for i, c := range e.Context.AcceptanceCriteria {
			lines[i] = "- [ ] " + c
		}
		section(sectionCriteria, strings.Join(lines, "\n"))
	}
	if len(e.Files) > 0 {
		lines := make([]string, len(e.Files))
		for i, f := range e.Files {
			lines[i] = "- `" + f + "`"
		}
		section(sectionFiles, strings.Join(lines, "\n"))
	}

	meta := Metadata{
		Version:            metadataVersion,
		Key:                e.Key,
		ProjectID:          e.ProjectID,
		AIContext:          e.AIContext,
		Decisions:          e.Context.Decisions,
		Dependencies:       e.Context.Dependencies,
		Risks:              e.Context.Risks,
		RelatedDevlogs:     e.RelatedDevlogs,
		ExternalReferences: e.ExternalReferences,
	}
	// json.Marshal escapes < and >, so the payload cannot close the comment.
	raw, _ := json.Marshal(meta)
	sb.WriteString("<!-- " + metadataMarker + " " + string(raw) + " -->\n")
	return sb.String()
}

// FormatNoteComment renders a note as an issue comment. The marker
// comment comes first so ParseNoteComment can tell notes from ordinary
// discussion.
func FormatNoteComment(n *devlog.Note) string {
	meta := noteMeta{
		ID:          n.ID,
		Category:    n.Category,
		Timestamp:   n.Timestamp.UTC(),
		Files:       n.Files,
		CodeChanges: n.CodeChanges,
	}
	raw, _ := json.Marshal(meta)
	return fmt.Sprintf("<!-- %s %s -->\n**%s** · %s\n\n%s\n",
		noteMarker, raw, n.Category, n.Timestamp.UTC().Format(time.RFC3339), strings.TrimSpace(n.Content))
}

type noteMeta struct {
	ID          string              `json:"id"`
	Category    devlog.NoteCategory `json:"category"`
	Timestamp   time.Time           `json:"timestamp"`
	Files       []string            `json:"files,omitempty"`
	CodeChanges string              `json:"codeChanges,omitempty"`
}

// ─── Parsing ─────────────────────────────────────────────────────────────────

var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
)

func getMarkdownParser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New(goldmark.WithExtensions(extension.TaskList))
	})
	return markdownParser
}

// ParseBody splits an issue body into sections and decodes its metadata.
// Text before the first known section counts as description, so issues
// written by hand still map to an entry.
func ParseBody(body string) ParsedBody {
	var out ParsedBody

	payload, raw, found := findMetadata(body)
	if found {
		body = strings.Replace(body, raw, "", 1)
		var meta Metadata
		if err := json.Unmarshal([]byte(payload), &meta); err != nil {
			out.MetadataErr = fmt.Errorf("decode %s: %w", metadataMarker, err)
		} else {
			out.Metadata = &meta
		}
	}

	src := []byte(body)
	doc := getMarkdownParser().Parser().Parse(text.NewReader(src))

	type span struct {
		name       string
		start, end int
		heading    ast.Node // nil for text before the first section
	}
	spans := []span{{name: sectionDescription}}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level != 2 || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		name := strings.TrimSpace(string(seg.Value(src)))
		if !knownSections[name] {
			continue
		}
		lineStart := bytes.LastIndexByte(src[:seg.Start], '\n') + 1
		contentStart := len(src)
		if i := bytes.IndexByte(src[seg.Stop:], '\n'); i >= 0 {
			contentStart = seg.Stop + i + 1
		}
		spans[len(spans)-1].end = lineStart
		spans = append(spans, span{name: name, start: contentStart, heading: h})
	}
	spans[len(spans)-1].end = len(src)

	for i, s := range spans {
		content := ""
		if s.start < s.end {
			content = strings.TrimSpace(string(src[s.start:s.end]))
		}
		switch s.name {
		case sectionDescription:
			if out.Description == "" {
				out.Description = content
			} else if content != "" {
				out.Description += "\n\n" + content
			}
		case sectionBusiness:
			out.BusinessContext = content
		case sectionTechnical:
			out.TechnicalContext = content
		case sectionCriteria, sectionFiles:
			var stop ast.Node
			if i+1 < len(spans) {
				stop = spans[i+1].heading
			}
			items := listItems(s.heading.NextSibling(), stop, src)
			if s.name == sectionCriteria {
				out.AcceptanceCriteria = items
			} else {
				for j, f := range items {
					items[j] = strings.Trim(f, "`")
				}
				out.Files = items
			}
		}
	}
	return out
}

var checkboxPrefix = regexp.MustCompile(`^\[[ xX]\]\s*`)

// listItems collects item text from lists between from and stop.
func listItems(from, stop ast.Node, src []byte) []string {
	var out []string
	for n := from; n != nil && n != stop; n = n.NextSibling() {
		list, ok := n.(*ast.List)
		if !ok {
			continue
		}
		for item := list.FirstChild(); item != nil; item = item.NextSibling() {
			block := item.FirstChild()
			if block == nil {
				continue
			}
			v := strings.Join(strings.Fields(blockText(block, src)), " ")
			if _, ok := block.FirstChild().(*extast.TaskCheckBox); ok {
				v = checkboxPrefix.ReplaceAllString(v, "")
			}
			if v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func blockText(n ast.Node, src []byte) string {
	lines := n.Lines()
	var sb strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return sb.String()
}

var metadataOpener = regexp.MustCompile(`<!--\s*` + metadataMarker)

// findMetadata returns the payload and raw text of the last metadata
// comment in body. Tokenizing starts at the comment opener: raw-text
// elements earlier in the body (<script>, <style>, <textarea>...) would
// otherwise swallow the comment.
func findMetadata(body string) (payload, raw string, found bool) {
	locs := metadataOpener.FindAllStringIndex(body, -1)
	if len(locs) == 0 {
		return "", "", false
	}
	return commentAt(body[locs[len(locs)-1][0]:], metadataMarker)
}

// commentAt decodes the HTML comment at the start of s when its content
// starts with marker.
func commentAt(s, marker string) (payload, raw string, found bool) {
	z := html.NewTokenizer(strings.NewReader(s))
	if z.Next() != html.CommentToken {
		return "", "", false
	}
	raw = string(z.Raw())
	data := strings.TrimSpace(z.Token().Data)
	rest, ok := strings.CutPrefix(data, marker)
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(rest), raw, true
}

// ParseNoteComment decodes a comment written by FormatNoteComment. ok is
// false for comments that are not devlog notes.
func ParseNoteComment(body string) (n *devlog.Note, ok bool) {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "<!-- "+noteMarker) && !strings.HasPrefix(trimmed, "<!--"+noteMarker) {
		return nil, false
	}
	payload, raw, found := commentAt(trimmed, noteMarker)
	if !found {
		return nil, false
	}
	var meta noteMeta
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		return nil, false
	}

	rest := strings.TrimPrefix(trimmed, raw)
	// Skip the header line.
	if i := strings.Index(rest, "\n\n"); i >= 0 {
		rest = rest[i+2:]
	} else {
		rest = ""
	}
	return &devlog.Note{
		ID:          meta.ID,
		Timestamp:   meta.Timestamp.UTC(),
		Category:    meta.Category,
		Content:     strings.TrimSpace(rest),
		Files:       meta.Files,
		CodeChanges: meta.CodeChanges,
	}, true
}

// ─── Issue ↔ entry ───────────────────────────────────────────────────────────

// IssueToEntry maps an issue back to an entry. Fields come from labels,
// the body sections and the metadata block; the issue state wins over a
// stale status label.
func IssueToEntry(issue *Issue, labels LabelConfig) *devlog.Entry {
	lv := labels.Parse(issue.LabelNames())
	body := ParseBody(issue.Body)

	e := &devlog.Entry{
		ID:          issue.Number,
		Title:       issue.Title,
		Type:        lv.Type,
		Priority:    lv.Priority,
		Status:      lv.Status,
		Archived:    lv.Archived,
		Description: body.Description,
		Files:       body.Files,
		CreatedAt:   issue.CreatedAt.UTC(),
		UpdatedAt:   issue.UpdatedAt.UTC(),
		Context: devlog.Context{
			BusinessContext:    body.BusinessContext,
			TechnicalContext:   body.TechnicalContext,
			AcceptanceCriteria: body.AcceptanceCriteria,
		},
	}
	if e.Type == "" {
		e.Type = devlog.TypeTask
	}
	if e.Priority == "" {
		e.Priority = devlog.PriorityMedium
	}
	if len(issue.Assignees) > 0 {
		e.Assignee = issue.Assignees[0].Login
	}

	closed := issue.State == "closed"
	switch {
	case closed && !devlog.IsClosed(e.Status):
		e.Status = devlog.StatusDone
		if issue.StateReason == "not_planned" {
			e.Status = devlog.StatusCancelled
		}
	case !closed && devlog.IsClosed(e.Status):
		e.Status = devlog.StatusInProgress
	case e.Status == "":
		e.Status = devlog.StatusNew
	}
	if devlog.IsClosed(e.Status) {
		t := e.UpdatedAt
		if issue.ClosedAt != nil {
			t = issue.ClosedAt.UTC()
		}
		e.ClosedAt = &t
	}
	if e.UpdatedAt.Before(e.CreatedAt) {
		e.UpdatedAt = e.CreatedAt
	}

	if m := body.Metadata; m != nil {
		e.Key = m.Key
		e.ProjectID = m.ProjectID
		e.AIContext = m.AIContext
		e.Context.Decisions = m.Decisions
		e.Context.Dependencies = m.Dependencies
		e.Context.Risks = m.Risks
		e.RelatedDevlogs = m.RelatedDevlogs
		e.ExternalReferences = m.ExternalReferences
	}
	if e.Key == "" {
		e.Key = devlog.GenerateKey(e.Title)
	}
	return e
}

// EntryToIssue builds the create/edit payload for an entry.
func EntryToIssue(e *devlog.Entry, labels LabelConfig) IssueRequest {
	req := IssueRequest{
		Title:     e.Title,
		Body:      FormatBody(e),
		State:     "open",
		Labels:    labels.ForEntry(e),
		Assignees: []string{},
	}
	if e.Assignee != "" {
		req.Assignees = []string{e.Assignee}
	}
	switch e.Status {
	case devlog.StatusDone:
		req.State, req.StateReason = "closed", "completed"
	case devlog.StatusCancelled:
		req.State, req.StateReason = "closed", "not_planned"
	}
	return req
}
