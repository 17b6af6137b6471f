package operation

import (
	"slices"
	"strings"
)

// Batch collects the distinct change descriptions of one operation.
type Batch struct {
	descriptions map[string]struct{}
	scheduled    bool
}

func newBatch() *Batch {
	return &Batch{descriptions: make(map[string]struct{})}
}

// Add records a description. Descriptions already present are ignored.
func (b *Batch) Add(description string) {
	b.descriptions[description] = struct{}{}
}

func (b *Batch) Len() int {
	return len(b.descriptions)
}

// Descriptions returns the distinct descriptions in sorted order.
func (b *Batch) Descriptions() []string {
	result := make([]string, 0, len(b.descriptions))
	for d := range b.descriptions {
		result = append(result, d)
	}
	slices.Sort(result)
	return result
}

// Message joins the descriptions with ", ".
func (b *Batch) Message() string {
	return strings.Join(b.Descriptions(), ", ")
}

// Scheduled reports whether the commit of this batch has been registered with the operation.
func (b *Batch) Scheduled() bool {
	return b.scheduled
}

func (b *Batch) MarkScheduled() {
	b.scheduled = true
}
