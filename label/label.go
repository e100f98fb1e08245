package label

import "fmt"

// GmailTable maps Gmail's reserved labels, as offlineimap records them in
// X-Keywords, to the local tag names used in the index.
var GmailTable = map[string]string{
	`\Important`: "important",
	`\Starred`:   "flagged",
	`\Sent`:      "sent",
	`\Draft`:     "draft",
	`\Inbox`:     "inbox",
}

// MaildirTags are flags maintained by the index itself. They must never be
// treated as externally synced labels.
var MaildirTags = []string{"unread", "draft", "flagged", "passed", "signed", "replied"}

// Mapping is a bijection between two label vocabularies. Labels absent from
// the table translate to themselves.
type Mapping struct {
	forward map[string]string
	reverse map[string]string
}

// NewMapping builds a Mapping from a literal table. A duplicate value breaks
// reversibility and is rejected as a configuration defect.
func NewMapping(table map[string]string) (*Mapping, error) {
	m := &Mapping{
		forward: make(map[string]string, len(table)),
		reverse: make(map[string]string, len(table)),
	}
	for k, v := range table {
		if prev, ok := m.reverse[v]; ok {
			return nil, fmt.Errorf("label mapping is not a bijection: %q and %q both map to %q", prev, k, v)
		}
		m.forward[k] = v
		m.reverse[v] = k
	}
	return m, nil
}

// Translate moves a label across the mapping without the caller needing to
// know which vocabulary it came from: forward table first, then reverse,
// then identity.
func (m *Mapping) Translate(l string) string {
	if t, ok := m.forward[l]; ok {
		return t
	}
	if t, ok := m.reverse[l]; ok {
		return t
	}
	return l
}

// TranslateAll translates every label in the given set.
func (m *Mapping) TranslateAll(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, m.Translate(l))
	}
	return out
}
