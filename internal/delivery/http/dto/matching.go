package dto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"skill-sync-engine/internal/domain/match"
	"skill-sync-engine/internal/domain/matching"
)

type MatchedSkillResponse struct {
	SkillID      uuid.UUID `json:"skill_id"`
	SkillName    string    `json:"skill_name"`
	Weight       float64   `json:"weight"`
	Coverage     float64   `json:"coverage"`
	Contribution float64   `json:"contribution"`
	Mandatory    bool      `json:"mandatory"`
}

type MissingSkillResponse struct {
	SkillID     uuid.UUID `json:"skill_id"`
	SkillName   string    `json:"skill_name"`
	IsMandatory bool      `json:"is_mandatory"`
}

type ScoreResponse struct {
	UserID         uuid.UUID              `json:"user_id"`
	JobID          uuid.UUID              `json:"job_id"`
	MatchScore     decimal.Decimal        `json:"match_score"`
	Disqualified   bool                   `json:"disqualified"`
	NoRequirements bool                   `json:"no_requirements"`
	MatchedSkills  []MatchedSkillResponse `json:"matched_skills"`
	MissingSkills  []MissingSkillResponse `json:"missing_skills"`
}

func NewScoreResponse(userID, jobID uuid.UUID, res matching.Result) ScoreResponse {
	out := ScoreResponse{
		UserID:         userID,
		JobID:          jobID,
		MatchScore:     res.MatchScore,
		Disqualified:   res.Disqualified,
		NoRequirements: res.NoRequirements,
		MatchedSkills:  make([]MatchedSkillResponse, 0, len(res.MatchedSkills)),
		MissingSkills:  make([]MissingSkillResponse, 0, len(res.MissingSkills)),
	}
	for _, m := range res.MatchedSkills {
		out.MatchedSkills = append(out.MatchedSkills, MatchedSkillResponse(m))
	}
	for _, m := range res.MissingSkills {
		out.MissingSkills = append(out.MissingSkills, MissingSkillResponse(m))
	}
	return out
}

type RankedResponse struct {
	UserID uuid.UUID         `json:"user_id"`
	Items  []match.RankedJob `json:"items"`
}
