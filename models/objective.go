package models

// MasteryThreshold marks an objective as already known.
const MasteryThreshold = 0.7

type Objective struct {
	ID          string  `json:"id" db:"id"`
	Description string  `json:"description" db:"description"`
	Mastery     float64 `json:"mastery" db:"mastery"`
	NodeID      string  `json:"node_id" db:"node_id"`
}

func (o Objective) IsMastered() bool {
	return o.Mastery >= MasteryThreshold
}

// ClampMastery keeps mastery values inside [0, 1].
func ClampMastery(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
