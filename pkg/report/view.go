package report

import "github.com/otherjamesbrown/judgeroute/pkg/batch"

// ActionDateLayout is how action dates are printed.
const ActionDateLayout = "02/01/2006"

// recordView is a record with every field already formatted for print.
type recordView struct {
	ProcessID    string
	WritNumber   string
	Division     string
	Jurisdiction string
	WritStatus   string
	WritValue    string
	ActionUser   string
	ActionDate   string
	Judge        string
	Overridden   bool
}

func view(rec batch.ProcessRecord) recordView {
	v := recordView{
		ProcessID:    rec.ProcessID,
		WritNumber:   rec.WritNumber,
		Division:     rec.CourtDivision,
		Jurisdiction: rec.Jurisdiction,
		WritStatus:   rec.WritStatus,
		WritValue:    rec.WritValue,
		ActionUser:   rec.ActionUser,
		Judge:        rec.Judge.Display(),
		Overridden:   rec.Overridden,
	}
	if !rec.ActionDate.IsZero() {
		v.ActionDate = rec.ActionDate.Format(ActionDateLayout)
	} else {
		v.ActionDate = rec.ActionDateRaw
	}
	return v
}
