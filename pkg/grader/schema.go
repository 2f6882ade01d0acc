package grader

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Report is what the CLI prints for one graded submission.
type Report struct {
	JobID   string  `json:"jobId,omitempty"`
	Outcome Outcome `json:"outcome"`
	Grade   *Grade  `json:"grade,omitempty"`
}

// Schema returns the JSON schema of Report.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{}
	s := r.Reflect(&Report{})
	s.Title = "cadgrade report"
	return json.MarshalIndent(s, "", "  ")
}
