package extract

import (
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/internal/entity"
)

// binding assigns one backend field onto ExtractedFields using the coercion rule of its target type.
type binding struct {
	name   string
	assign func(f *entity.ExtractedFields, v Value) bool
}

func stringField(name string, target func(*entity.ExtractedFields) **string) binding {
	return binding{name: name, assign: func(f *entity.ExtractedFields, v Value) bool {
		s, ok := v.AsString()
		if ok {
			*target(f) = &s
		}
		return ok
	}}
}

func dateField(name string, target func(*entity.ExtractedFields) **entity.Date) binding {
	return binding{name: name, assign: func(f *entity.ExtractedFields, v Value) bool {
		d, ok := v.AsDate()
		if ok {
			*target(f) = &d
		}
		return ok
	}}
}

func intField(name string, target func(*entity.ExtractedFields) **int) binding {
	return binding{name: name, assign: func(f *entity.ExtractedFields, v Value) bool {
		n, ok := v.AsInt()
		if ok {
			*target(f) = &n
		}
		return ok
	}}
}

func listField(name string, target func(*entity.ExtractedFields) *[]string) binding {
	return binding{name: name, assign: func(f *entity.ExtractedFields, v Value) bool {
		l, ok := v.AsList()
		if ok {
			*target(f) = l
		}
		return ok
	}}
}

// bindings lists the model's field labels. Labels are matched case-insensitively.
var bindings = []binding{
	stringField("PatientName", func(f *entity.ExtractedFields) **string { return &f.PatientName }),
	dateField("PatientDOB", func(f *entity.ExtractedFields) **entity.Date { return &f.PatientDateOfBirth }),
	stringField("PatientID", func(f *entity.ExtractedFields) **string { return &f.PatientID }),
	stringField("PatientPhone", func(f *entity.ExtractedFields) **string { return &f.PatientPhone }),
	stringField("PatientAddress", func(f *entity.ExtractedFields) **string { return &f.PatientAddress }),

	stringField("ProviderName", func(f *entity.ExtractedFields) **string { return &f.ProviderName }),
	stringField("ProviderNPI", func(f *entity.ExtractedFields) **string { return &f.ProviderNPI }),
	stringField("ProviderPhone", func(f *entity.ExtractedFields) **string { return &f.ProviderPhone }),
	stringField("ProviderFax", func(f *entity.ExtractedFields) **string { return &f.ProviderFax }),
	stringField("FacilityName", func(f *entity.ExtractedFields) **string { return &f.FacilityName }),

	listField("CPTCodes", func(f *entity.ExtractedFields) *[]string { return &f.CPTCodes }),
	listField("ICD10Codes", func(f *entity.ExtractedFields) *[]string { return &f.ICD10Codes }),
	dateField("ServiceStartDate", func(f *entity.ExtractedFields) **entity.Date { return &f.ServiceStartDate }),
	dateField("ServiceEndDate", func(f *entity.ExtractedFields) **entity.Date { return &f.ServiceEndDate }),
	intField("RequestedUnits", func(f *entity.ExtractedFields) **int { return &f.RequestedUnits }),
	intField("VisitCount", func(f *entity.ExtractedFields) **int { return &f.VisitCount }),
	stringField("AuthorizationNumber", func(f *entity.ExtractedFields) **string { return &f.AuthorizationNumber }),
	stringField("InsurancePlan", func(f *entity.ExtractedFields) **string { return &f.InsurancePlan }),

	stringField("DiagnosisDescription", func(f *entity.ExtractedFields) **string { return &f.DiagnosisDescription }),
	stringField("ClinicalNotes", func(f *entity.ExtractedFields) **string { return &f.ClinicalNotes }),
	stringField("Urgency", func(f *entity.ExtractedFields) **string { return &f.Urgency }),

	dateField("FaxDate", func(f *entity.ExtractedFields) **entity.Date { return &f.FaxDate }),
	stringField("FaxFrom", func(f *entity.ExtractedFields) **string { return &f.FaxFrom }),
	stringField("FaxTo", func(f *entity.ExtractedFields) **string { return &f.FaxTo }),
	intField("PageCount", func(f *entity.ExtractedFields) **int { return &f.PageCount }),
}

// FieldNames returns the backend labels the adapter understands, in declaration order.
func FieldNames() []string {
	out := make([]string, len(bindings))
	for i, b := range bindings {
		out[i] = b.name
	}
	return out
}

// Adapter calls the analysis backend once and maps its answer into ExtractedFields.
type Adapter struct {
	analyzer Analyzer
	logger   *zap.Logger
}

func NewAdapter(analyzer Analyzer, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{analyzer: analyzer, logger: logger}
}

// Extract analyzes content with modelID. Backend errors are returned unchanged.
// A result without documents yields an all-absent ExtractedFields.
func (a *Adapter) Extract(ctx context.Context, content io.Reader, modelID string) (entity.ExtractedFields, error) {
	if strings.TrimSpace(modelID) == "" {
		return entity.ExtractedFields{}, ErrModelNotConfigured
	}

	start := time.Now()
	res, err := a.analyzer.Analyze(ctx, content, modelID)
	if err != nil {
		a.logger.Error("extract.analyze.failed",
			zap.String("model_id", modelID),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
			zap.Error(err),
		)
		return entity.ExtractedFields{}, err
	}
	if res == nil || len(res.Documents) == 0 {
		a.logger.Warn("extract.no_documents", zap.String("model_id", modelID))
		return entity.ExtractedFields{}, nil
	}

	fields, mapped, dropped := MapFields(res.Documents[0].Fields)
	a.logger.Info("extract.ok",
		zap.String("model_id", modelID),
		zap.String("doc_type", res.Documents[0].DocType),
		zap.Int("documents", len(res.Documents)),
		zap.Int("mapped", mapped),
		zap.Strings("dropped", dropped),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return fields, nil
}

// MapFields applies the coercion rules to a backend field bag.
// It returns the mapped structure, the count of populated fields and the labels
// that were present but could not be coerced.
func MapFields(raw map[string]Value) (entity.ExtractedFields, int, []string) {
	var out entity.ExtractedFields
	if len(raw) == 0 {
		return out, 0, nil
	}

	byLower := make(map[string]Value, len(raw))
	for k, v := range raw {
		byLower[strings.ToLower(k)] = v
	}

	mapped := 0
	var dropped []string
	for _, b := range bindings {
		v, ok := byLower[strings.ToLower(b.name)]
		if !ok {
			continue
		}
		if b.assign(&out, v) {
			mapped++
		} else {
			dropped = append(dropped, b.name)
		}
	}
	return out, mapped, dropped
}
