package types

// Repository identifies the destination GitHub repository
type Repository struct {
	Owner string
	Name  string
}

// FullName returns owner/name
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}
