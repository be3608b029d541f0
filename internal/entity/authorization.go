package entity

import (
	"time"

	"github.com/joseph-ayodele/faxintake/constants"
)

// AuthorizationRecord is one intake attempt for one organized fax file.
type AuthorizationRecord struct {
	ID              string                        `json:"id"`
	SourcePath      string                        `json:"blobName"`
	FileName        string                        `json:"fileName"`
	UploadedAt      time.Time                     `json:"uploadedAt"`
	Status          constants.AuthorizationStatus `json:"status"`
	ExtractedFields *ExtractedFields              `json:"extractedData,omitempty"`
	ProcessedAt     *time.Time                    `json:"processedAt,omitempty"`
	ErrorMessage    *string                       `json:"errorMessage,omitempty"`
}

// ExtractedFields is the flat set of values pulled from a fax by the analysis model.
// Every field is optional; nil means the backend did not find it.
type ExtractedFields struct {
	// Patient
	PatientName        *string `json:"patientName,omitempty"`
	PatientDateOfBirth *Date   `json:"patientDateOfBirth,omitempty"`
	PatientID          *string `json:"patientId,omitempty"`
	PatientPhone       *string `json:"patientPhone,omitempty"`
	PatientAddress     *string `json:"patientAddress,omitempty"`

	// Provider
	ProviderName  *string `json:"providerName,omitempty"`
	ProviderNPI   *string `json:"providerNpi,omitempty"`
	ProviderPhone *string `json:"providerPhone,omitempty"`
	ProviderFax   *string `json:"providerFax,omitempty"`
	FacilityName  *string `json:"facilityName,omitempty"`

	// Service
	CPTCodes            []string `json:"cptCodes,omitempty"`
	ICD10Codes          []string `json:"icd10Codes,omitempty"`
	ServiceStartDate    *Date    `json:"serviceStartDate,omitempty"`
	ServiceEndDate      *Date    `json:"serviceEndDate,omitempty"`
	RequestedUnits      *int     `json:"requestedUnits,omitempty"`
	VisitCount          *int     `json:"visitCount,omitempty"`
	AuthorizationNumber *string  `json:"authorizationNumber,omitempty"`
	InsurancePlan       *string  `json:"insurancePlan,omitempty"`

	// Clinical
	DiagnosisDescription *string `json:"diagnosisDescription,omitempty"`
	ClinicalNotes        *string `json:"clinicalNotes,omitempty"`
	Urgency              *string `json:"urgency,omitempty"`

	// Fax transmission
	FaxDate   *Date   `json:"faxDate,omitempty"`
	FaxFrom   *string `json:"faxFrom,omitempty"`
	FaxTo     *string `json:"faxTo,omitempty"`
	PageCount *int    `json:"pageCount,omitempty"`
}
