package analysis

import (
	"time"

	"github.com/joseph-ayodele/faxintake/internal/extract"
)

const (
	statusNotStarted = "notStarted"
	statusRunning    = "running"
	statusSucceeded  = "succeeded"
	statusFailed     = "failed"
	statusCanceled   = "canceled"
)

type operation struct {
	Status        string         `json:"status"`
	Error         *serviceError  `json:"error,omitempty"`
	AnalyzeResult *analyzeResult `json:"analyzeResult,omitempty"`
}

type serviceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type analyzeResult struct {
	ModelID   string     `json:"modelId"`
	Documents []document `json:"documents"`
}

type document struct {
	DocType    string           `json:"docType"`
	Confidence float64          `json:"confidence"`
	Fields     map[string]field `json:"fields"`
}

type field struct {
	Type         string  `json:"type"`
	ValueString  *string `json:"valueString,omitempty"`
	ValueDate    *string `json:"valueDate,omitempty"`
	ValueInteger *int64  `json:"valueInteger,omitempty"`
	ValueArray   []field `json:"valueArray,omitempty"`
	Content      string  `json:"content,omitempty"`
}

// value converts a wire field into the tagged variant. Types the adapter cannot coerce become KindUnknown.
func (f field) value() extract.Value {
	switch f.Type {
	case "string":
		if f.ValueString != nil {
			return extract.StringValue(*f.ValueString)
		}
	case "date":
		if f.ValueDate != nil {
			if t, err := time.Parse("2006-01-02", *f.ValueDate); err == nil {
				return extract.DateValue(t)
			}
		}
	case "integer":
		if f.ValueInteger != nil {
			return extract.IntegerValue(*f.ValueInteger)
		}
	case "array":
		items := make([]string, 0, len(f.ValueArray))
		for _, it := range f.ValueArray {
			if it.Type != "string" || it.ValueString == nil {
				return extract.Value{}
			}
			items = append(items, *it.ValueString)
		}
		return extract.StringListValue(items)
	}
	return extract.Value{}
}

func (r *analyzeResult) toResult() *extract.Result {
	out := &extract.Result{ModelID: r.ModelID}
	for _, d := range r.Documents {
		doc := extract.Document{DocType: d.DocType, Confidence: d.Confidence, Fields: make(map[string]extract.Value, len(d.Fields))}
		for name, f := range d.Fields {
			doc.Fields[name] = f.value()
		}
		out.Documents = append(out.Documents, doc)
	}
	return out
}
