// Package corpus loads the read-only inputs of an experiment: the news items,
// the dialog fragments, the demographic whitelist and the image store.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnknownItem is returned when an item id is not in the corpus.
var ErrUnknownItem = errors.New("unknown news item")

// Item is one news story.
type Item struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Headline string   `json:"headline,omitempty"`
	Source   string   `json:"source"`
	More     string   `json:"more"`
	Image    string   `json:"image"`
	Tags     []string `json:"tags,omitempty"`
}

// Text renders the item body as it appears inside a prompt. The source and
// the auxiliary metadata are only added when requested and non-empty.
func (it Item) Text(source, more bool) string {
	var b strings.Builder
	b.WriteString("\n")
	if source && it.Source != "" {
		fmt.Fprintf(&b, "The news comes from %s", it.Source)
	}
	if more && it.More != "" {
		fmt.Fprintf(&b, " %s", it.More)
	}
	if source || more {
		b.WriteString("\n")
	}
	if it.Headline != "" {
		b.WriteString(it.Headline)
		b.WriteString(" ")
	}
	b.WriteString(it.Content)
	b.WriteString("\n")
	return b.String()
}

// News is the item corpus, kept in file order.
type News struct {
	items []Item
	index map[string]int
}

// NewNews builds a corpus from items. Duplicate ids are rejected.
func NewNews(items []Item) (*News, error) {
	n := &News{items: items, index: make(map[string]int, len(items))}
	for i, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("news item #%d has no id", i)
		}
		if _, dup := n.index[it.ID]; dup {
			return nil, fmt.Errorf("duplicate news id %q", it.ID)
		}
		n.index[it.ID] = i
	}
	return n, nil
}

// LoadNews reads a JSON array of news items.
func LoadNews(path string) (*News, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read news: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse news %s: %w", path, err)
	}
	return NewNews(items)
}

// Get returns the item with the given id.
func (n *News) Get(id string) (Item, error) {
	i, ok := n.index[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %q", ErrUnknownItem, id)
	}
	return n.items[i], nil
}

// Len returns the number of items.
func (n *News) Len() int { return len(n.items) }

// IDs returns every item id in file order.
func (n *News) IDs() []string {
	ids := make([]string, len(n.items))
	for i, it := range n.items {
		ids[i] = it.ID
	}
	return ids
}

// Balanced returns up to count/2 false items ("f" prefix) followed by up to
// count/2 true items ("t" prefix), each group in file order.
func (n *News) Balanced(count int) []string {
	half := count / 2
	var falses, trues []string
	for _, it := range n.items {
		if len(falses) == half && len(trues) == half {
			break
		}
		switch {
		case strings.HasPrefix(it.ID, "t") && len(trues) < half:
			trues = append(trues, it.ID)
		case strings.HasPrefix(it.ID, "f") && len(falses) < half:
			falses = append(falses, it.ID)
		}
	}
	return append(falses, trues...)
}
