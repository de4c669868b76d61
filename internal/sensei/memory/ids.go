package memory

import "github.com/google/uuid"

// NewID returns a time-ordered UUIDv7. Two ids generated in the same
// millisecond still differ in their random tail.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
