package domain

// Activity is a course session requiring a contiguous block of periods and
// a space. Immutable once a run starts.
type Activity struct {
	ID                 string   `json:"id"`
	Subject            string   `json:"subject"`
	Name               string   `json:"name,omitempty"`
	Duration           int      `json:"duration"`
	TeacherIDs         []string `json:"teacher_ids"`
	GroupIDs           []string `json:"group_ids"`
	RequiredAttributes []string `json:"required_attributes,omitempty"`
}

// StudentGroup is a cohort attending activities together.
type StudentGroup struct {
	ID   string `json:"id"`
	Size int    `json:"size"`
}

// Space is a physical room. Immutable reference data.
type Space struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	Capacity   int      `json:"capacity"`
	Attributes []string `json:"attributes,omitempty"`
}

// HasAttributes reports whether the space carries every required attribute.
func (s Space) HasAttributes(required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range s.Attributes {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
