package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fixedResult(fields map[string]Value) Analyzer {
	return AnalyzerFunc(func(ctx context.Context, content io.Reader, modelID string) (*Result, error) {
		return &Result{ModelID: modelID, Documents: []Document{{DocType: "fax", Fields: fields}}}, nil
	})
}

func TestAdapter_Extract_ScenarioA(t *testing.T) {
	a := NewAdapter(fixedResult(map[string]Value{
		"PatientName": StringValue("John Doe"),
		"CPTCodes":    StringListValue([]string{"97110", "97140"}),
	}), zap.NewNop())

	got, err := a.Extract(context.Background(), bytes.NewReader([]byte("%PDF")), "fax-model")
	require.NoError(t, err)
	require.NotNil(t, got.PatientName)
	assert.Equal(t, "John Doe", *got.PatientName)
	assert.Equal(t, []string{"97110", "97140"}, got.CPTCodes)
	assert.Nil(t, got.ICD10Codes)
	assert.Nil(t, got.PatientDateOfBirth)
}

func TestAdapter_Extract_CommaSeparatedCodes(t *testing.T) {
	a := NewAdapter(fixedResult(map[string]Value{
		"CPTCodes": StringValue("97110, 97140 ,97530"),
	}), nil)

	got, err := a.Extract(context.Background(), bytes.NewReader(nil), "fax-model")
	require.NoError(t, err)
	assert.Equal(t, []string{"97110", "97140", "97530"}, got.CPTCodes)
}

func TestAdapter_Extract_NoDocuments(t *testing.T) {
	a := NewAdapter(AnalyzerFunc(func(ctx context.Context, _ io.Reader, _ string) (*Result, error) {
		return &Result{}, nil
	}), nil)

	got, err := a.Extract(context.Background(), bytes.NewReader(nil), "fax-model")
	require.NoError(t, err)
	assert.Nil(t, got.PatientName)
	assert.Nil(t, got.CPTCodes)
}

func TestAdapter_Extract_PropagatesBackendError(t *testing.T) {
	boom := errors.New("timeout")
	a := NewAdapter(AnalyzerFunc(func(ctx context.Context, _ io.Reader, _ string) (*Result, error) {
		return nil, boom
	}), nil)

	_, err := a.Extract(context.Background(), bytes.NewReader(nil), "fax-model")
	assert.Same(t, boom, err)
}

func TestAdapter_Extract_MissingModel(t *testing.T) {
	called := false
	a := NewAdapter(AnalyzerFunc(func(ctx context.Context, _ io.Reader, _ string) (*Result, error) {
		called = true
		return &Result{}, nil
	}), nil)

	_, err := a.Extract(context.Background(), bytes.NewReader(nil), "  ")
	assert.ErrorIs(t, err, ErrModelNotConfigured)
	assert.False(t, called)
}

func TestMapFields_Coercion(t *testing.T) {
	dob := time.Date(1980, 3, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		raw   map[string]Value
		check func(t *testing.T, f mappedFields)
	}{
		{
			name: "string field rejects non-string",
			raw:  map[string]Value{"PatientName": IntegerValue(7)},
			check: func(t *testing.T, f mappedFields) {
				assert.Nil(t, f.PatientName)
				assert.Equal(t, []string{"PatientName"}, f.dropped)
			},
		},
		{
			name: "native date",
			raw:  map[string]Value{"PatientDOB": DateValue(dob)},
			check: func(t *testing.T, f mappedFields) {
				require.NotNil(t, f.PatientDateOfBirth)
				assert.Equal(t, "1980-03-14", f.PatientDateOfBirth.String())
			},
		},
		{
			name: "date parsed from string",
			raw:  map[string]Value{"FaxDate": StringValue("03/14/2024")},
			check: func(t *testing.T, f mappedFields) {
				require.NotNil(t, f.FaxDate)
				assert.Equal(t, "2024-03-14", f.FaxDate.String())
			},
		},
		{
			name: "unparseable date string is absent",
			raw:  map[string]Value{"FaxDate": StringValue("sometime soon")},
			check: func(t *testing.T, f mappedFields) {
				assert.Nil(t, f.FaxDate)
			},
		},
		{
			name: "integer native and from string",
			raw: map[string]Value{
				"PageCount":      IntegerValue(4),
				"RequestedUnits": StringValue(" 12 "),
				"VisitCount":     StringValue("twelve"),
			},
			check: func(t *testing.T, f mappedFields) {
				require.NotNil(t, f.PageCount)
				assert.Equal(t, 4, *f.PageCount)
				require.NotNil(t, f.RequestedUnits)
				assert.Equal(t, 12, *f.RequestedUnits)
				assert.Nil(t, f.VisitCount)
			},
		},
		{
			name: "list from empty string is absent",
			raw:  map[string]Value{"ICD10Codes": StringValue(" , ,")},
			check: func(t *testing.T, f mappedFields) {
				assert.Nil(t, f.ICD10Codes)
			},
		},
		{
			name: "list rejects date",
			raw:  map[string]Value{"CPTCodes": DateValue(dob)},
			check: func(t *testing.T, f mappedFields) {
				assert.Nil(t, f.CPTCodes)
			},
		},
		{
			name: "labels are case-insensitive",
			raw:  map[string]Value{"patientname": StringValue("Jane Roe")},
			check: func(t *testing.T, f mappedFields) {
				require.NotNil(t, f.PatientName)
				assert.Equal(t, "Jane Roe", *f.PatientName)
			},
		},
		{
			name: "unknown labels are ignored",
			raw:  map[string]Value{"Signature": StringValue("x")},
			check: func(t *testing.T, f mappedFields) {
				assert.Zero(t, f.mapped)
				assert.Empty(t, f.dropped)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, mapped, dropped := MapFields(tt.raw)
			tt.check(t, mappedFields{ExtractedFields: f, mapped: mapped, dropped: dropped})
		})
	}
}

func TestFieldNames(t *testing.T) {
	names := FieldNames()
	assert.Len(t, names, 25)
	assert.Contains(t, names, "CPTCodes")
	assert.Contains(t, names, "ICD10Codes")
}
