package services

// Caller is an identity already authenticated by the session collaborator.
// Elevated carries that collaborator's decision that the caller may moderate
// any remark; the engine only records it.
type Caller struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Elevated bool   `json:"elevated"`
}

func (c Caller) Anonymous() bool {
	return c.UserID == ""
}

// ElevatedFor reports whether role is one of the moderator-equivalent roles.
func ElevatedFor(role string, elevatedRoles []string) bool {
	for _, r := range elevatedRoles {
		if r == role {
			return true
		}
	}
	return false
}
