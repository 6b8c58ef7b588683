package github

import (
	"strings"

	"github.com/HendryAvila/devlog/internal/devlog"
)

// LabelConfig names the labels that carry entry fields on an issue.
// With the default prefix "devlog-", a high-priority bugfix in progress
// carries devlog, devlog-type:bugfix, devlog-priority:high and
// devlog-status:in-progress.
type LabelConfig struct {
	Prefix string
}

// DefaultLabelPrefix is used when the configured prefix is empty.
const DefaultLabelPrefix = "devlog-"

func (c LabelConfig) prefix() string {
	if c.Prefix == "" {
		return DefaultLabelPrefix
	}
	return c.Prefix
}

// Base is the marker label every devlog issue carries.
func (c LabelConfig) Base() string {
	if b := strings.TrimRight(c.prefix(), "-:/_"); b != "" {
		return b
	}
	return "devlog"
}

func (c LabelConfig) Type(t devlog.EntryType) string { return c.prefix() + "type:" + string(t) }
func (c LabelConfig) Priority(p devlog.Priority) string { return c.prefix() + "priority:" + string(p) }
func (c LabelConfig) Status(s devlog.Status) string { return c.prefix() + "status:" + string(s) }
func (c LabelConfig) Archived() string { return c.prefix() + "archived" }

// ForEntry returns the labels an entry's issue should carry.
func (c LabelConfig) ForEntry(e *devlog.Entry) []string {
	out := []string{c.Base(), c.Type(e.Type), c.Priority(e.Priority), c.Status(e.Status)}
	if e.Archived {
		out = append(out, c.Archived())
	}
	return out
}

// LabelValues are the entry fields recovered from labels. Empty fields
// mean the issue carried no recognized label for them.
type LabelValues struct {
	IsDevlog bool
	Type     devlog.EntryType
	Priority devlog.Priority
	Status   devlog.Status
	Archived bool
}

// Parse reads entry fields from label names. Unknown labels and values
// that fail validation are ignored.
func (c LabelConfig) Parse(names []string) LabelValues {
	var v LabelValues
	p := c.prefix()
	for _, name := range names {
		switch {
		case name == c.Base():
			v.IsDevlog = true
		case name == c.Archived():
			v.Archived = true
		case strings.HasPrefix(name, p+"type:"):
			if t := devlog.EntryType(strings.TrimPrefix(name, p+"type:")); devlog.ValidateType(t) == nil {
				v.Type = t
			}
		case strings.HasPrefix(name, p+"priority:"):
			if pr := devlog.Priority(strings.TrimPrefix(name, p+"priority:")); devlog.ValidatePriority(pr) == nil {
				v.Priority = pr
			}
		case strings.HasPrefix(name, p+"status:"):
			if s := devlog.Status(strings.TrimPrefix(name, p+"status:")); devlog.ValidateStatus(s) == nil {
				v.Status = s
			}
		}
	}
	return v
}

// Definitions lists every label the provider may apply, with colors, so
// they can be created up front.
func (c LabelConfig) Definitions() []Label {
	defs := []Label{
		{Name: c.Base(), Color: "5319e7", Description: "Tracked by devlog"},
		{Name: c.Archived(), Color: "cfd3d7", Description: "Archived devlog entry"},
	}
	for _, t := range devlog.AllTypes {
		defs = append(defs, Label{Name: c.Type(t), Color: "1d76db"})
	}
	for _, p := range devlog.AllPriorities {
		defs = append(defs, Label{Name: c.Priority(p), Color: priorityColors[p]})
	}
	for _, s := range devlog.AllStatuses {
		defs = append(defs, Label{Name: c.Status(s), Color: "0e8a16"})
	}
	return defs
}

var priorityColors = map[devlog.Priority]string{
	devlog.PriorityLow:      "c2e0c6",
	devlog.PriorityMedium:   "fbca04",
	devlog.PriorityHigh:     "d93f0b",
	devlog.PriorityCritical: "b60205",
}
