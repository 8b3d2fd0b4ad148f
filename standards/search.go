package standards

import (
	"context"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/vinayprograms/compliancekit/errors"
)

// DefaultSearchLimit is the page size when Query.Limit is zero.
const DefaultSearchLimit = 50

// Query filters SearchStandards. Zero fields do not filter.
type Query struct {
	Category         Category `json:"category,omitempty"`
	Search           string   `json:"search,omitempty"`
	OrganizationType string   `json:"organizationType,omitempty"`
	Industry         string   `json:"industry,omitempty"`
	Region           string   `json:"region,omitempty"`
	Size             string   `json:"size,omitempty"`
	Offset           int      `json:"offset,omitempty"`
	Limit            int      `json:"limit,omitempty"`
}

// SearchResult is one page of matches.
type SearchResult struct {
	Standards []Standard `json:"standards"`
	Total     int        `json:"total"`
	Offset    int        `json:"offset"`
	Limit     int        `json:"limit"`
}

// SearchStandards filters by category, then by a case-insensitive substring of
// name, short name or description, then by applicability. With a search term,
// name matches sort ahead of description-only matches; each group is ordered
// by name.
func (l *Library) SearchStandards(q Query) (SearchResult, error) {
	if q.Offset < 0 {
		return SearchResult{}, errors.Validation("offset must not be negative", errors.WithMetadata("field", "offset"))
	}
	if q.Limit < 0 {
		return SearchResult{}, errors.Validation("limit must not be negative", errors.WithMetadata("field", "limit"))
	}
	limit := q.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	term := strings.ToLower(strings.TrimSpace(q.Search))

	l.mu.RLock()
	all := l.sortedLocked()
	l.mu.RUnlock()

	type ranked struct {
		s         Standard
		nameMatch bool
	}
	var matched []ranked
	for _, s := range all {
		if q.Category != "" && s.Category != q.Category {
			continue
		}
		nameMatch := false
		if term != "" {
			nameMatch = strings.Contains(strings.ToLower(s.Name), term) ||
				strings.Contains(strings.ToLower(s.ShortName), term)
			if !nameMatch && !strings.Contains(strings.ToLower(s.Description), term) {
				continue
			}
		}
		if !matchesAny(s.Applicability.OrganizationTypes, q.OrganizationType) ||
			!matchesAny(s.Applicability.Industries, q.Industry) ||
			!matchesAny(s.Applicability.Regions, q.Region) ||
			!matchesAny(s.Applicability.Sizes, q.Size) {
			continue
		}
		matched = append(matched, ranked{s: s, nameMatch: nameMatch})
	}

	if term != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].nameMatch && !matched[j].nameMatch
		})
	}

	res := SearchResult{Total: len(matched), Offset: q.Offset, Limit: limit, Standards: []Standard{}}
	for i := q.Offset; i < len(matched) && i < q.Offset+limit; i++ {
		res.Standards = append(res.Standards, matched[i].s)
	}
	return res, nil
}

// GetCategories returns the categories that have at least one standard, sorted.
func (l *Library) GetCategories() []Category {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[Category]bool)
	for _, s := range l.standards {
		seen[s.Category] = true
	}
	var out []Category
	for _, c := range categories {
		if seen[c] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetStandardsByCategory returns copies of the standards in c, by name.
func (l *Library) GetStandardsByCategory(c Category) []Standard {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Standard
	for _, s := range l.sortedLocked() {
		if s.Category == c {
			out = append(out, s)
		}
	}
	return out
}

// FullTextHit is one ranked full-text match.
type FullTextHit struct {
	Standard Standard `json:"standard"`
	Score    float64  `json:"score"`
}

// indexDoc is the shape stored in the bleve index.
type indexDoc struct {
	Name         string `json:"name"`
	ShortName    string `json:"shortName"`
	Description  string `json:"description"`
	Requirements string `json:"requirements"`
	Category     string `json:"category"`
}

func indexDocOf(s Standard) indexDoc {
	var b strings.Builder
	for _, r := range s.Requirements {
		b.WriteString(r.Title)
		b.WriteString(". ")
		b.WriteString(r.Description)
		b.WriteString(" ")
		b.WriteString(strings.Join(r.Tags, " "))
		b.WriteString("\n")
	}
	return indexDoc{
		Name:         s.Name,
		ShortName:    s.ShortName,
		Description:  s.Description,
		Requirements: b.String(),
		Category:     string(s.Category),
	}
}

func buildIndexMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName

	keyword := bleve.NewKeywordFieldMapping()

	doc.AddFieldMappingsAt("name", text)
	doc.AddFieldMappingsAt("shortName", text)
	doc.AddFieldMappingsAt("description", text)
	doc.AddFieldMappingsAt("requirements", text)
	doc.AddFieldMappingsAt("category", keyword)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = en.AnalyzerName
	return m
}

func newIndex() (bleve.Index, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, errors.Wrap(err, "creating standards index")
	}
	return index, nil
}

// FullTextSearch ranks standards by BM25 relevance of text against names,
// descriptions and requirement text. Names count double.
func (l *Library) FullTextSearch(ctx context.Context, text string, limit int) ([]FullTextHit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.Validation("search text is required", errors.WithMetadata("field", "text"))
	}
	if limit <= 0 {
		limit = 10
	}

	fields := map[string]float64{"name": 2, "shortName": 2, "description": 1, "requirements": 1}
	disjunction := bleve.NewDisjunctionQuery()
	for field, boost := range fields {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(field)
		mq.SetBoost(boost)
		disjunction.AddQuery(mq)
	}

	req := bleve.NewSearchRequest(disjunction)
	req.Size = limit

	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "full-text search failed", errors.WithMetadata("text", text))
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	hits := make([]FullTextHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		s, ok := l.standards[h.ID]
		if !ok {
			continue
		}
		hits = append(hits, FullTextHit{Standard: s.Clone(), Score: h.Score})
	}
	return hits, nil
}
