package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobintel/internal/model"
)

// dialect captures what differs between the two SQL backends. Queries are
// written with ? placeholders and rebound for postgres.
type dialect struct {
	numbered bool   // $1, $2 … instead of ?
	like     string // case-insensitive LIKE operator
	dayExpr  string // created_at as YYYY-MM-DD in UTC
	timeArg  func(time.Time) any
}

const postColumns = `id, source, source_job_id, title, company, location, url, posted_at,
	work_mode, experience_level, role_category, created_at, updated_at`

const upsertSQL = `INSERT INTO job_posts (` + postColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (source, url) DO UPDATE SET
	source_job_id    = COALESCE(excluded.source_job_id, job_posts.source_job_id),
	title            = excluded.title,
	company          = COALESCE(excluded.company, job_posts.company),
	location         = COALESCE(excluded.location, job_posts.location),
	posted_at        = COALESCE(excluded.posted_at, job_posts.posted_at),
	work_mode        = excluded.work_mode,
	experience_level = excluded.experience_level,
	role_category    = excluded.role_category,
	updated_at       = excluded.updated_at
RETURNING id, created_at`

const insertIgnoreSQL = `INSERT INTO job_posts (` + postColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (source, url) DO NOTHING`

var facetColumns = map[model.Facet]string{
	model.FacetSource:          "source",
	model.FacetRoleCategory:    "role_category",
	model.FacetWorkMode:        "work_mode",
	model.FacetExperienceLevel: "experience_level",
}

func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// insertArgs orders r's fields as postColumns. Empty optional strings and a
// missing postedAt become NULL so an upsert keeps the stored value.
func (d dialect) insertArgs(id string, r model.JobRecord, now time.Time) []any {
	var posted any
	if r.PostedAt != nil {
		posted = d.timeArg(r.PostedAt.UTC())
	}
	return []any{
		id, r.Source, nullString(r.SourceJobID), r.Title, nullString(r.Company), nullString(r.Location), r.URL, posted,
		string(r.WorkMode), string(r.ExperienceLevel), string(r.RoleCategory), d.timeArg(now), d.timeArg(now),
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// escapeLike escapes LIKE wildcards; queries use ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// where translates a predicate into a WHERE clause (empty when nothing
// constrains) and its arguments. It is the single place filters become SQL.
func (d dialect) where(p model.Predicate) (string, []any) {
	var conds []string
	var args []any

	like := func(col string) string { return col + " " + d.like + ` ? ESCAPE '\'` }

	if p.Q != "" {
		pat := escapeLike(p.Q)
		conds = append(conds, "("+like("title")+" OR "+like("company")+" OR "+like("location")+")")
		args = append(args, pat, pat, pat)
	}
	if p.Location != "" {
		conds = append(conds, like("location"))
		args = append(args, escapeLike(p.Location))
	}
	if p.Company != "" {
		conds = append(conds, like("company"))
		args = append(args, escapeLike(p.Company))
	}
	if p.WorkMode != "" {
		conds = append(conds, "work_mode = ?")
		args = append(args, string(p.WorkMode))
	}
	if p.ExperienceLevel != "" {
		conds = append(conds, "experience_level = ?")
		args = append(args, string(p.ExperienceLevel))
	}
	if p.RoleCategory != "" {
		conds = append(conds, "role_category = ?")
		args = append(args, string(p.RoleCategory))
	}
	if p.CreatedFrom != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, d.timeArg(p.CreatedFrom.UTC()))
	}
	if p.CreatedTo != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, d.timeArg(p.CreatedTo.UTC()))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (d dialect) listQuery(p model.Predicate, page model.Page) (string, []any) {
	where, args := d.where(p)
	q := "SELECT " + postColumns + " FROM job_posts" + where +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	return d.rebind(q), append(args, page.Take, page.Skip)
}

func (d dialect) countQuery(p model.Predicate) (string, []any) {
	where, args := d.where(p)
	return d.rebind("SELECT COUNT(*) FROM job_posts" + where), args
}

func (d dialect) countByQuery(facet model.Facet, p model.Predicate) (string, []any, error) {
	col, ok := facetColumns[facet]
	if !ok {
		return "", nil, fmt.Errorf("unknown facet %q", facet)
	}
	where, args := d.where(p)
	q := "SELECT " + col + ", COUNT(*) AS n FROM job_posts" + where +
		" GROUP BY " + col + " ORDER BY n DESC, " + col + " ASC"
	return d.rebind(q), args, nil
}

func (d dialect) dailyQuery(p model.Predicate) (string, []any) {
	where, args := d.where(p)
	q := "SELECT " + d.dayExpr + " AS day, COUNT(*) FROM job_posts" + where +
		" GROUP BY 1 ORDER BY 1 ASC"
	return d.rebind(q), args
}
