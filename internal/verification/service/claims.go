package service

import (
	"time"

	"verigate/internal/verification/models"
	derrors "verigate/pkg/domain-errors"
)

const dateLayout = "2006-01-02"

// claim is the kind-specific input to the shared pipeline. Validation must
// be side-effect free: a claim that fails validation never reaches the rate
// limiter or the store.
type claim interface {
	kind() models.Kind
	validate() error
	payload() map[string]string
	// credential projection for a verified claim
	issuerName() string
	title() string
	issueDate() string
}

// EducationClaim asserts a degree from an educational institution.
type EducationClaim struct {
	EmiratesID      string
	InstitutionName string
	DegreeType      string
	GraduationDate  string // YYYY-MM-DD
}

func (c EducationClaim) kind() models.Kind { return models.KindEducation }

func (c EducationClaim) validate() error {
	if err := requireFields(map[string]string{
		"emirates_id":      c.EmiratesID,
		"institution_name": c.InstitutionName,
		"degree_type":      c.DegreeType,
		"graduation_date":  c.GraduationDate,
	}); err != nil {
		return err
	}
	_, err := parseDate("graduation_date", c.GraduationDate)
	return err
}

func (c EducationClaim) payload() map[string]string {
	return map[string]string{
		"emirates_id":      c.EmiratesID,
		"institution_name": c.InstitutionName,
		"degree_type":      c.DegreeType,
		"graduation_date":  c.GraduationDate,
	}
}

func (c EducationClaim) issuerName() string { return c.InstitutionName }
func (c EducationClaim) title() string      { return c.DegreeType }
func (c EducationClaim) issueDate() string  { return c.GraduationDate }

// EmploymentClaim asserts a period of employment. EndDate is optional; when
// given it must be strictly after StartDate.
type EmploymentClaim struct {
	EmiratesID   string
	EmployerName string
	JobTitle     string
	StartDate    string // YYYY-MM-DD
	EndDate      string // optional, YYYY-MM-DD
}

func (c EmploymentClaim) kind() models.Kind { return models.KindEmployment }

func (c EmploymentClaim) validate() error {
	if err := requireFields(map[string]string{
		"emirates_id":   c.EmiratesID,
		"employer_name": c.EmployerName,
		"job_title":     c.JobTitle,
		"start_date":    c.StartDate,
	}); err != nil {
		return err
	}
	start, err := parseDate("start_date", c.StartDate)
	if err != nil {
		return err
	}
	if c.EndDate != "" {
		end, err := parseDate("end_date", c.EndDate)
		if err != nil {
			return err
		}
		if !end.After(start) {
			return derrors.New(derrors.CodeInvalidInput, "end_date must be after start_date")
		}
	}
	return nil
}

func (c EmploymentClaim) payload() map[string]string {
	p := map[string]string{
		"emirates_id":   c.EmiratesID,
		"employer_name": c.EmployerName,
		"job_title":     c.JobTitle,
		"start_date":    c.StartDate,
	}
	if c.EndDate != "" {
		p["end_date"] = c.EndDate
	}
	return p
}

func (c EmploymentClaim) issuerName() string { return c.EmployerName }
func (c EmploymentClaim) title() string      { return c.JobTitle }
func (c EmploymentClaim) issueDate() string  { return c.StartDate }

// CertificationClaim asserts a professional certification. ExpiryDate is
// optional; when given it must be strictly after IssueDate.
type CertificationClaim struct {
	EmiratesID        string
	CertificationName string
	IssuingAuthority  string
	IssueDateField    string // YYYY-MM-DD
	ExpiryDate        string // optional, YYYY-MM-DD
}

func (c CertificationClaim) kind() models.Kind { return models.KindCertification }

func (c CertificationClaim) validate() error {
	if err := requireFields(map[string]string{
		"emirates_id":        c.EmiratesID,
		"certification_name": c.CertificationName,
		"issuing_authority":  c.IssuingAuthority,
		"issue_date":         c.IssueDateField,
	}); err != nil {
		return err
	}
	issued, err := parseDate("issue_date", c.IssueDateField)
	if err != nil {
		return err
	}
	if c.ExpiryDate != "" {
		expiry, err := parseDate("expiry_date", c.ExpiryDate)
		if err != nil {
			return err
		}
		if !expiry.After(issued) {
			return derrors.New(derrors.CodeInvalidInput, "expiry_date must be after issue_date")
		}
	}
	return nil
}

func (c CertificationClaim) payload() map[string]string {
	p := map[string]string{
		"emirates_id":        c.EmiratesID,
		"certification_name": c.CertificationName,
		"issuing_authority":  c.IssuingAuthority,
		"issue_date":         c.IssueDateField,
	}
	if c.ExpiryDate != "" {
		p["expiry_date"] = c.ExpiryDate
	}
	return p
}

func (c CertificationClaim) issuerName() string { return c.IssuingAuthority }
func (c CertificationClaim) title() string      { return c.CertificationName }
func (c CertificationClaim) issueDate() string  { return c.IssueDateField }

func requireFields(fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			return derrors.Newf(derrors.CodeInvalidInput, "%s is required", name)
		}
	}
	return nil
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, derrors.Newf(derrors.CodeInvalidInput, "%s must be a YYYY-MM-DD date", field)
	}
	return t, nil
}
