package domain

import "fmt"

// ConstraintKind separates rules that invalidate a schedule from weighted
// preferences.
type ConstraintKind string

const (
	ConstraintHard ConstraintKind = "hard"
	ConstraintSoft ConstraintKind = "soft"
)

// ConstraintType enumerates the rule families the evaluator understands.
type ConstraintType string

const (
	// ConstraintMinGap is a hard distribution rule: sessions of the same
	// subject must be at least Settings.MinGapDays days apart.
	ConstraintMinGap ConstraintType = "min_gap"
	// ConstraintPreferredSlot is a soft preference for placing the scoped
	// activities at Settings.Day / Settings.Period.
	ConstraintPreferredSlot ConstraintType = "preferred_slot"
	// ConstraintPreferredSpace is a soft preference for Settings.SpaceID.
	ConstraintPreferredSpace ConstraintType = "preferred_space"
	// ConstraintMorningBias is a soft preference for starting before
	// Settings.Period.
	ConstraintMorningBias ConstraintType = "morning_bias"
)

// ConstraintSettings is the payload interpreted per constraint type.
// Unused fields are ignored.
type ConstraintSettings struct {
	MinGapDays int    `json:"min_gap_days,omitempty"`
	Day        int    `json:"day,omitempty"`
	Period     int    `json:"period,omitempty"`
	SpaceID    string `json:"space_id,omitempty"`
}

// Constraint scopes a rule to a set of activities. An empty scope applies
// to every activity.
type Constraint struct {
	ID          string             `json:"id"`
	Kind        ConstraintKind     `json:"kind"`
	Type        ConstraintType     `json:"type"`
	Weight      float64            `json:"weight,omitempty"`
	ActivityIDs []string           `json:"activity_ids,omitempty"`
	Settings    ConstraintSettings `json:"settings"`
}

// AppliesTo reports whether the constraint scopes the given activity.
func (c Constraint) AppliesTo(activityID string) bool {
	if len(c.ActivityIDs) == 0 {
		return true
	}
	for _, id := range c.ActivityIDs {
		if id == activityID {
			return true
		}
	}
	return false
}

// Validate rejects malformed kinds, weights, and settings payloads before
// any run starts.
func (c Constraint) Validate(cal Calendar) error {
	switch c.Kind {
	case ConstraintHard, ConstraintSoft:
	default:
		return fmt.Errorf("constraint %s: unknown kind %q", c.ID, c.Kind)
	}
	if c.Kind == ConstraintSoft && c.Weight <= 0 {
		return fmt.Errorf("constraint %s: soft constraints require a positive weight", c.ID)
	}
	switch c.Type {
	case ConstraintMinGap:
		if c.Settings.MinGapDays <= 0 {
			return fmt.Errorf("constraint %s: min_gap requires min_gap_days > 0", c.ID)
		}
	case ConstraintPreferredSlot:
		if c.Settings.Day < 0 || c.Settings.Day >= len(cal.Days) {
			return fmt.Errorf("constraint %s: preferred day %d outside calendar", c.ID, c.Settings.Day)
		}
		if c.Settings.Period < 0 || c.Settings.Period >= len(cal.Periods) {
			return fmt.Errorf("constraint %s: preferred period %d outside calendar", c.ID, c.Settings.Period)
		}
	case ConstraintPreferredSpace:
		if c.Settings.SpaceID == "" {
			return fmt.Errorf("constraint %s: preferred_space requires space_id", c.ID)
		}
	case ConstraintMorningBias:
		if c.Settings.Period <= 0 || c.Settings.Period > len(cal.Periods) {
			return fmt.Errorf("constraint %s: morning_bias period %d outside calendar", c.ID, c.Settings.Period)
		}
	default:
		return fmt.Errorf("constraint %s: unknown type %q", c.ID, c.Type)
	}
	return nil
}
