package verify

import "github.com/Mathew005/aura-agent/internal/domain"

// Citations flattens the citations of every evidence item. Evidence without
// citations contributes one entry titled by its source. Entries with a URL
// dedupe by URL and entries without one dedupe by title; the first occurrence
// wins and order is preserved.
func Citations(evidence []domain.Evidence) []domain.Citation {
	var all []domain.Citation
	for _, e := range evidence {
		if len(e.Citations) == 0 {
			source := e.Source
			if source == "" {
				source = "Web"
			}
			all = append(all, domain.Citation{Title: source})
			continue
		}
		all = append(all, e.Citations...)
	}

	seenURL := make(map[string]struct{})
	seenTitle := make(map[string]struct{})
	out := make([]domain.Citation, 0, len(all))
	for _, c := range all {
		if c.URL != "" {
			if _, ok := seenURL[c.URL]; ok {
				continue
			}
			seenURL[c.URL] = struct{}{}
		} else {
			if _, ok := seenTitle[c.Title]; ok {
				continue
			}
			seenTitle[c.Title] = struct{}{}
		}
		out = append(out, c)
	}
	return out
}
