package matching

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type UserSkill struct {
	SkillID          uuid.UUID
	SkillName        string
	ProficiencyLevel *int
	YearsExperience  *int
}

// JobRequirement mirrors one job_skills row. Nil pointers are unspecified.
type JobRequirement struct {
	SkillID          uuid.UUID
	SkillName        string
	ImportanceWeight *int
	RequiredLevel    *int
	IsMandatory      bool
	RequiredYears    *int
}

// Weights holds the tunable coefficients of the scoring formula.
type Weights struct {
	// DefaultWeight applies to requirements without an importance_weight.
	DefaultWeight float64
	// LevelShare and YearsShare split coverage between proficiency and experience
	// when a requirement specifies both.
	LevelShare float64
	YearsShare float64
}

// DefaultWeights uses the midpoint of the 1..5 importance range.
func DefaultWeights() Weights {
	return Weights{DefaultWeight: 3, LevelShare: 0.7, YearsShare: 0.3}
}

type MatchedSkill struct {
	SkillID      uuid.UUID
	SkillName    string
	Weight       float64
	Coverage     float64
	Contribution float64
	Mandatory    bool
}

type MissingSkill struct {
	SkillID     uuid.UUID
	SkillName   string
	IsMandatory bool
}

type Result struct {
	MatchScore decimal.Decimal
	// Disqualified is set when a mandatory requirement was not met.
	Disqualified bool
	// NoRequirements is set for jobs without any skill requirement; they score 0.
	NoRequirements bool
	MatchedSkills  []MatchedSkill
	MissingSkills  []MissingSkill
	// Unmet lists the mandatory requirements that failed the gate.
	Unmet []MissingSkill
}

var hundred = decimal.NewFromInt(100)

// Calculate scores a user against a job's requirements.
//
// Mandatory requirements are a hard gate: any one unmet (skill absent, level or
// years below requirement) scores 0. Passed mandatory requirements contribute
// their full weight; the others contribute weight*coverage. The sum is
// normalised by the total weight and scaled to [0,100] with 2 decimals.
func Calculate(userSkills []UserSkill, reqs []JobRequirement, w Weights) Result {
	w = w.normalized()

	userBySkillID := make(map[uuid.UUID]UserSkill, len(userSkills))
	for _, us := range userSkills {
		if us.SkillID == uuid.Nil {
			continue
		}
		userBySkillID[us.SkillID] = us
	}

	seen := make(map[uuid.UUID]struct{}, len(reqs))
	valid := make([]JobRequirement, 0, len(reqs))
	for _, r := range reqs {
		if r.SkillID == uuid.Nil {
			continue
		}
		if _, dup := seen[r.SkillID]; dup {
			continue
		}
		seen[r.SkillID] = struct{}{}
		valid = append(valid, r)
	}

	if len(valid) == 0 {
		return Result{MatchScore: decimal.Zero, NoRequirements: true}
	}

	res := Result{
		MatchedSkills: make([]MatchedSkill, 0, len(valid)),
		MissingSkills: make([]MissingSkill, 0),
	}

	for _, r := range valid {
		if !r.IsMandatory {
			continue
		}
		us, ok := userBySkillID[r.SkillID]
		if !ok || !meetsMandatory(us, r) {
			res.Unmet = append(res.Unmet, MissingSkill{SkillID: r.SkillID, SkillName: r.SkillName, IsMandatory: true})
		}
	}
	if len(res.Unmet) > 0 {
		res.Disqualified = true
		res.MatchScore = decimal.Zero
		res.MissingSkills = append(res.MissingSkills, res.Unmet...)
		return res
	}

	var total, weightSum float64
	for _, r := range valid {
		weight := w.weightOf(r)
		weightSum += weight

		us, ok := userBySkillID[r.SkillID]
		if !ok {
			res.MissingSkills = append(res.MissingSkills, MissingSkill{SkillID: r.SkillID, SkillName: r.SkillName})
			continue
		}

		coverage := 1.0
		if !r.IsMandatory {
			coverage = w.coverage(us, r)
		}
		contrib := weight * coverage
		total += contrib
		res.MatchedSkills = append(res.MatchedSkills, MatchedSkill{
			SkillID:      r.SkillID,
			SkillName:    r.SkillName,
			Weight:       weight,
			Coverage:     coverage,
			Contribution: contrib,
			Mandatory:    r.IsMandatory,
		})
	}

	if weightSum <= 0 {
		res.MatchScore = decimal.Zero
		return res
	}

	score := decimal.NewFromFloat(total / weightSum).Mul(hundred).Round(2)
	if score.LessThan(decimal.Zero) {
		score = decimal.Zero
	}
	if score.GreaterThan(hundred) {
		score = hundred
	}
	res.MatchScore = score
	return res
}

func meetsMandatory(us UserSkill, r JobRequirement) bool {
	if r.RequiredLevel != nil && valueOf(us.ProficiencyLevel) < clampInt(*r.RequiredLevel, 1, 5) {
		return false
	}
	if r.RequiredYears != nil && *r.RequiredYears > 0 && valueOf(us.YearsExperience) < *r.RequiredYears {
		return false
	}
	return true
}

func (w Weights) normalized() Weights {
	d := DefaultWeights()
	if w.DefaultWeight < 1 || w.DefaultWeight > 5 {
		w.DefaultWeight = d.DefaultWeight
	}
	if w.LevelShare < 0 || w.YearsShare < 0 || w.LevelShare+w.YearsShare == 0 {
		w.LevelShare, w.YearsShare = d.LevelShare, d.YearsShare
	}
	return w
}

func (w Weights) weightOf(r JobRequirement) float64 {
	if r.ImportanceWeight == nil {
		return w.DefaultWeight
	}
	return float64(clampInt(*r.ImportanceWeight, 1, 5))
}

// coverage is the share-weighted mean of the level and years ratios over the
// dimensions the requirement specifies. Possession alone covers a requirement
// that specifies neither.
func (w Weights) coverage(us UserSkill, r JobRequirement) float64 {
	var num, den float64
	if r.RequiredLevel != nil {
		num += w.LevelShare * ratio(clampInt(valueOf(us.ProficiencyLevel), 0, 5), clampInt(*r.RequiredLevel, 1, 5))
		den += w.LevelShare
	}
	if r.RequiredYears != nil && *r.RequiredYears > 0 {
		num += w.YearsShare * ratio(valueOf(us.YearsExperience), *r.RequiredYears)
		den += w.YearsShare
	}
	if den == 0 {
		return 1
	}
	return num / den
}

func ratio(have, want int) float64 {
	if want <= 0 {
		return 1
	}
	if have <= 0 {
		return 0
	}
	r := float64(have) / float64(want)
	if r > 1 {
		return 1
	}
	return r
}

func valueOf(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
