// Package patterns persists successful plans as append-only JSON records and
// retrieves them by feature similarity so the planner can adapt prior work.
package patterns

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"queryforge/internal/models"
)

// Store reads and writes SuccessPattern records under a directory, one file
// per pattern. Records are immutable once written; concurrent appenders are
// safe because every append targets a fresh, uniquely named file.
type Store struct {
	dir string
}

func NewStore(dir string) *Store { return &Store{dir: dir} }

// Append persists one pattern. The file is written to a temp name and renamed
// so a concurrent ListAll never observes a half-written record.
func (s *Store) Append(p models.SuccessPattern) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("patterns: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("patterns: encode: %w", err)
	}
	name := fmt.Sprintf("pattern_%s_%s.json",
		p.Timestamp.Format("20060102_150405"), uuid.NewString()[:8])
	tmp := filepath.Join(s.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("patterns: write: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("patterns: rename: %w", err)
	}
	return nil
}

// ListAll loads every stored pattern. Unreadable or malformed files are
// skipped rather than failing the whole read.
func (s *Store) ListAll() ([]models.SuccessPattern, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("patterns: %w", err)
	}
	var out []models.SuccessPattern
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var p models.SuccessPattern
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Match pairs a stored pattern with its similarity to the current query.
type Match struct {
	models.SuccessPattern
	Similarity float64
}

// FindSimilar returns up to limit stored patterns ranked by similarity to the
// query, most similar first.
func (s *Store) FindSimilar(query string, limit int) ([]Match, error) {
	stored, err := s.ListAll()
	if err != nil {
		return nil, err
	}
	features := ExtractFeatures(query)
	matches := make([]Match, 0, len(stored))
	for _, p := range stored {
		matches = append(matches, Match{
			SuccessPattern: p,
			Similarity:     Similarity(features, p.QueryFeatures),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// domainKeywords maps a domain label to the trigger phrases that place a
// query in that domain. Checked against the lowercased query as substrings.
var domainKeywords = []struct {
	domain   string
	triggers []string
}{
	{"ai", []string{"ai", "artificial intelligence", "machine learning", "deep learning", "neural"}},
	{"science", []string{"research", "study", "scientific", "academic", "paper"}},
	{"news", []string{"news", "recent", "latest", "current", "update"}},
	{"analysis", []string{"analyze", "sentiment", "trend", "pattern", "data"}},
	{"technical", []string{"how", "technical", "implement", "code", "algorithm"}},
}

// ExtractFeatures derives the coarse features similarity is computed over.
func ExtractFeatures(query string) models.QueryFeatures {
	lower := strings.ToLower(query)
	f := models.QueryFeatures{
		Length:      len(strings.Fields(query)),
		HasQuestion: strings.Contains(query, "?"),
		Type:        queryType(lower),
	}
	for _, d := range domainKeywords {
		for _, t := range d.triggers {
			if strings.Contains(lower, t) {
				f.Keywords = append(f.Keywords, d.domain)
				break
			}
		}
	}
	return f
}

func queryType(lower string) string {
	switch {
	case containsAny(lower, "what", "explain", "define"):
		return "explanation"
	case containsAny(lower, "how", "implement", "create"):
		return "how-to"
	case containsAny(lower, "analyze", "sentiment", "trend"):
		return "analysis"
	case containsAny(lower, "research", "find", "papers"):
		return "research"
	default:
		return "general"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Similarity scores two feature sets in [0, 1]: 0.4 for matching type, up to
// 0.4 for keyword Jaccard overlap, 0.2 for a matching question flag.
func Similarity(a, b models.QueryFeatures) float64 {
	score := 0.0
	if a.Type == b.Type {
		score += 0.4
	}
	if len(a.Keywords) > 0 && len(b.Keywords) > 0 {
		setA := toSet(a.Keywords)
		setB := toSet(b.Keywords)
		inter, union := 0, len(setA)
		for k := range setB {
			if _, ok := setA[k]; ok {
				inter++
			} else {
				union++
			}
		}
		score += 0.4 * float64(inter) / float64(union)
	}
	if a.HasQuestion == b.HasQuestion {
		score += 0.2
	}
	return score
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// NewPattern assembles the append-only record for a plan that worked.
func NewPattern(query string, plan *models.Plan, score int) models.SuccessPattern {
	return models.SuccessPattern{
		Timestamp:     time.Now(),
		Query:         query,
		QueryFeatures: ExtractFeatures(query),
		Plan: models.PlanSnapshot{
			Pipeline:  plan.Pipeline,
			ToolsUsed: plan.Tools(),
		},
		Score: score,
	}
}
