// Package classify derives work mode, experience level and role category from
// a posting's title and location.
//
// Each dimension is an ordered rule list evaluated with case-insensitive
// substring matching. The first rule with a matching keyword wins, so the
// order below is part of the contract:
//
//	work mode   remote, anywhere > hybrid > onsite, on-site            (title and location)
//	experience  intern > junior, jr > senior, sr, staff, principal >
//	            lead, manager, head > engineer, developer (MID)        (title)
//	role        backend, back end, api > frontend, front end, ui >
//	            fullstack, full stack > devops, sre >
//	            data engineer, data analyst > machine learning,
//	            ml engineer, "ai " > security, infosec >
//	            mobile, android, ios > qa, test, sdet >
//	            product manager, " pm "                                (title)
//
// Anything unmatched falls back to UNKNOWN (work mode, experience) or OTHER
// (role).
package classify

import (
	"strings"

	"github.com/amishk599/jobintel/internal/model"
)

// Classification is the derived triple for one posting.
type Classification struct {
	WorkMode        model.WorkMode
	ExperienceLevel model.ExperienceLevel
	RoleCategory    model.RoleCategory
}

type rule[T any] struct {
	result   T
	keywords []string
}

var workModeRules = []rule[model.WorkMode]{
	{model.WorkModeRemote, []string{"remote", "anywhere"}},
	{model.WorkModeHybrid, []string{"hybrid"}},
	{model.WorkModeOnsite, []string{"onsite", "on-site"}},
}

var experienceRules = []rule[model.ExperienceLevel]{
	{model.ExperienceIntern, []string{"intern"}},
	{model.ExperienceJunior, []string{"junior", "jr"}},
	{model.ExperienceSenior, []string{"senior", "sr", "staff", "principal"}},
	{model.ExperienceLead, []string{"lead", "manager", "head"}},
	{model.ExperienceMid, []string{"engineer", "developer"}},
}

var roleRules = []rule[model.RoleCategory]{
	{model.RoleBackend, []string{"backend", "back end", "api"}},
	{model.RoleFrontend, []string{"frontend", "front end", "ui"}},
	{model.RoleFullstack, []string{"fullstack", "full stack"}},
	{model.RoleDevOps, []string{"devops", "sre"}},
	{model.RoleData, []string{"data engineer", "data analyst"}},
	{model.RoleML, []string{"machine learning", "ml engineer", "ai "}},
	{model.RoleSecurity, []string{"security", "infosec"}},
	{model.RoleMobile, []string{"mobile", "android", "ios"}},
	{model.RoleQA, []string{"qa", "test", "sdet"}},
	{model.RolePM, []string{"product manager", " pm "}},
}

// Classify evaluates every rule list against r. It is pure and total.
func Classify(r model.JobRecord) Classification {
	title := strings.ToLower(r.Title)
	location := strings.ToLower(r.Location)

	return Classification{
		WorkMode:        firstMatch(workModeRules, model.WorkModeUnknown, title, location),
		ExperienceLevel: firstMatch(experienceRules, model.ExperienceUnknown, title),
		RoleCategory:    firstMatch(roleRules, model.RoleOther, title),
	}
}

// Apply returns r with its classifier fields overwritten by Classify(r).
func Apply(r model.JobRecord) model.JobRecord {
	c := Classify(r)
	r.WorkMode = c.WorkMode
	r.ExperienceLevel = c.ExperienceLevel
	r.RoleCategory = c.RoleCategory
	return r
}

func firstMatch[T any](rules []rule[T], fallback T, texts ...string) T {
	for _, rl := range rules {
		for _, kw := range rl.keywords {
			for _, text := range texts {
				if strings.Contains(text, kw) {
					return rl.result
				}
			}
		}
	}
	return fallback
}
