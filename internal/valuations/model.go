package valuations

import "time"

// Valuation is the persisted request/response record. Inputs are fixed at
// creation; Task 1 writes Result and Status, Task 2 only touches
// PresentationStatus and ArtifactURL.
type Valuation struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"userId"`
	Inputs             Inputs             `json:"inputs"`
	Status             Status             `json:"status"`
	Result             map[string]any     `json:"result,omitempty"`
	PresentationStatus PresentationStatus `json:"presentationStatus"`
	ArtifactURL        *string            `json:"artifactUrl,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}
