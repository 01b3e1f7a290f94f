// Package clubs resolves human club names ("Fairview Golf Club") to the
// portal slugs its URLs are keyed by. Matches come from a Postgres cache
// first; unknown names are guessed from the normalized words and probed
// against the portal's login page, with confirmed slugs written back.
package clubs

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/teeswap/internal/db"
)

const maxResults = 20

type Club struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Resolver struct {
	DB   *db.DB
	Base string
	Log  *logrus.Logger

	// HTTP is the probe client; injectable for tests.
	HTTP *http.Client
}

var (
	trailingNoise = regexp.MustCompile(`(golf( club)?|g\.c\.|g&cc|g\s*&\s*c|\bgc\b)$`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9\s-]`)
	multiSpace    = regexp.MustCompile(`\s+`)
)

// Normalize lower-cases a club name and strips the suffix noise members
// type ("... Golf Club", "... G.C.").
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = trailingNoise.ReplaceAllString(s, "")
	s = nonAlnum.ReplaceAllString(s, "")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SlugCandidates generates plausible portal slugs for a free-text query,
// most likely first, deduplicated.
func SlugCandidates(q string) []string {
	parts := strings.Fields(Normalize(q))
	if len(parts) == 0 {
		return nil
	}

	cands := []string{
		strings.Join(parts, "-"),
		strings.Join(parts, "_"),
		strings.Join(parts, ""),
	}
	var meaningful []string
	for _, p := range parts {
		if p != "golf" && p != "club" {
			meaningful = append(meaningful, p)
		}
	}
	cands = append(cands, strings.Join(meaningful, "-"))
	if len(parts) > 2 {
		cands = append(cands, strings.Join(parts[:2], "-"), strings.Join(parts[len(parts)-2:], "-"))
	}

	seen := map[string]bool{}
	var out []string
	for _, c := range cands {
		c = strings.Trim(c, "-_")
		if c != "" && !seen[c] {
			out = append(out, c)
			seen[c] = true
		}
	}
	return out
}

// Search returns cached clubs matching q plus any newly confirmed slug
// guesses, which are persisted for next time.
func (r *Resolver) Search(ctx context.Context, q string) ([]Club, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}

	like := "%" + strings.ReplaceAll(Normalize(q), " ", "%") + "%"
	rows, err := r.DB.Query(ctx,
		`SELECT name, slug FROM clubs WHERE name ILIKE $1 OR slug ILIKE $1 ORDER BY name ASC`, like)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bydSlug := map[string]Club{}
	var order []string
	for rows.Next() {
		var c Club
		if err := rows.Scan(&c.Name, &c.Slug); err != nil {
			return nil, err
		}
		if _, ok := bydSlug[c.Slug]; !ok {
			order = append(order, c.Slug)
		}
		bydSlug[c.Slug] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, slug := range SlugCandidates(q) {
		if _, ok := bydSlug[slug]; ok {
			continue
		}
		if !r.probe(ctx, slug) {
			continue
		}
		c := Club{Name: q, Slug: slug}
		if err := r.DB.Exec(ctx,
			`INSERT INTO clubs(name, slug) VALUES ($1,$2) ON CONFLICT (slug) DO NOTHING`,
			c.Name, c.Slug); err != nil {
			r.Log.Warnf("clubs: cache insert for %q: %v", slug, err)
		}
		bydSlug[slug] = c
		order = append(order, slug)
	}

	out := make([]Club, 0, len(order))
	for _, slug := range order {
		out = append(out, bydSlug[slug])
		if len(out) == maxResults {
			break
		}
	}
	return out, nil
}

// probe checks whether a login page exists for slug.
func (r *Resolver) probe(ctx context.Context, slug string) bool {
	hc := r.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(r.Base, "/")+"/"+slug+"/login", nil)
	if err != nil {
		return false
	}
	res, err := hc.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return res.StatusCode == http.StatusOK || res.StatusCode == http.StatusFound
}
