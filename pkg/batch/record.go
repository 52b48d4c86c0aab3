package batch

import (
	"time"

	"github.com/otherjamesbrown/judgeroute/pkg/resolver"
)

// ProcessRecord is one row of the writ export plus its resolved judge.
// Everything except ProcessID, QueryID and Judge is carried through to the
// reports untouched.
type ProcessRecord struct {
	ProcessID     string `json:"process_id" yaml:"process_id"`
	QueryID       string `json:"query_id,omitempty" yaml:"query_id,omitempty"`
	WritNumber    string `json:"writ_number" yaml:"writ_number"`
	CourtDivision string `json:"court_division" yaml:"court_division"`
	Jurisdiction  string `json:"jurisdiction" yaml:"jurisdiction"`
	WritStatus    string `json:"writ_status" yaml:"writ_status"`
	WritValue     string `json:"writ_value" yaml:"writ_value"`
	ActionUser    string `json:"action_user" yaml:"action_user"`
	// ActionDate is zero when the export left it empty or unparseable.
	ActionDate time.Time `json:"action_date" yaml:"action_date"`
	// ActionDateRaw is the cell as exported, printed when ActionDate is zero.
	ActionDateRaw string `json:"action_date_raw,omitempty" yaml:"action_date_raw,omitempty"`

	Judge      resolver.Outcome `json:"judge" yaml:"judge"`
	Overridden bool             `json:"overridden,omitempty" yaml:"overridden,omitempty"`
}
