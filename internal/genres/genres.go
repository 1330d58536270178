// Package genres holds the curated genre allow-list and resolves free-text
// genre input against it.
package genres

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DerGorn/RapMich/internal/core"
	"github.com/DerGorn/RapMich/pkg/fuzzy"
)

// MaxEditDistance is the fuzzy-correction budget for a requested genre.
const MaxEditDistance = 2

//go:embed genres.json
var genresJSON []byte

// List is the immutable canonical genre set.
type List struct {
	names  []string
	joined string
	spans  []span
}

// span locates one canonical name inside the joined haystack, in rune
// offsets.
type span struct {
	start, end int
	index      int
}

// Load parses the embedded allow-list.
func Load() (*List, error) {
	var names []string
	if err := json.Unmarshal(genresJSON, &names); err != nil {
		return nil, fmt.Errorf("failed to parse embedded genre list: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("embedded genre list is empty")
	}

	l := &List{
		names:  names,
		joined: strings.Join(names, " "),
	}
	offset := 0
	for i, name := range names {
		n := len([]rune(name))
		l.spans = append(l.spans, span{start: offset, end: offset + n, index: i})
		offset += n + 1 // separator
	}
	return l, nil
}

// Names returns the full canonical list, used as the candidate pool when the
// caller requests no genre at all.
func (l *List) Names() []string {
	return l.names
}

// Resolve maps each requested genre onto a canonical name: an exact
// case-sensitive match wins, otherwise the closest approximate occurrence in
// the joined allow-list within MaxEditDistance edits. Output order follows
// input order.
func (l *List) Resolve(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, core.NewValidationError("empty genre list")
	}

	resolved := make([]string, 0, len(requested))
	for _, g := range requested {
		name, ok := l.resolveOne(g)
		if !ok {
			return nil, core.NewValidationError("invalid genre: %s", g)
		}
		resolved = append(resolved, name)
	}
	return resolved, nil
}

func (l *List) resolveOne(g string) (string, bool) {
	for _, name := range l.names {
		if name == g {
			return name, true
		}
	}

	m, ok := fuzzy.FindNearest(g, l.joined, MaxEditDistance)
	if !ok {
		return "", false
	}

	// The match span may clip an entry or straddle a separator; snap it to
	// the canonical name it overlaps most.
	best, overlap := -1, 0
	for _, s := range l.spans {
		o := min(m.End, s.end) - max(m.Start, s.start)
		if o > overlap {
			best, overlap = s.index, o
		}
	}
	if best < 0 {
		return "", false
	}
	return l.names[best], true
}
