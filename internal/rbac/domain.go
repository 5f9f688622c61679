package rbac

// Permission represents an atomic capability.
type Permission struct {
	ID          int64
	Name        string
	Description string
}
