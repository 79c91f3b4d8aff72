package httptransport

import (
	"net/http"
	"strconv"

	"verigate/internal/verification/service"
	id "verigate/pkg/domain"
	derrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
)

type educationRequest struct {
	UserID          string `json:"user_id"`
	EmiratesID      string `json:"emirates_id"`
	InstitutionName string `json:"institution_name"`
	DegreeType      string `json:"degree_type"`
	GraduationDate  string `json:"graduation_date"`
}

type employmentRequest struct {
	UserID       string `json:"user_id"`
	EmiratesID   string `json:"emirates_id"`
	EmployerName string `json:"employer_name"`
	JobTitle     string `json:"job_title"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date,omitempty"`
}

type certificationRequest struct {
	UserID            string `json:"user_id"`
	EmiratesID        string `json:"emirates_id"`
	CertificationName string `json:"certification_name"`
	IssuingAuthority  string `json:"issuing_authority"`
	IssueDate         string `json:"issue_date"`
	ExpiryDate        string `json:"expiry_date,omitempty"`
}

func (h *Handler) handleVerifyEducation(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[educationRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res := h.verifier.VerifyEducation(r.Context(), userID, service.EducationClaim{
		EmiratesID:      req.EmiratesID,
		InstitutionName: req.InstitutionName,
		DegreeType:      req.DegreeType,
		GraduationDate:  req.GraduationDate,
	})
	h.writeResult(w, res)
}

func (h *Handler) handleVerifyEmployment(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[employmentRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res := h.verifier.VerifyEmployment(r.Context(), userID, service.EmploymentClaim{
		EmiratesID:   req.EmiratesID,
		EmployerName: req.EmployerName,
		JobTitle:     req.JobTitle,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
	})
	h.writeResult(w, res)
}

func (h *Handler) handleVerifyCertification(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[certificationRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res := h.verifier.VerifyCertification(r.Context(), userID, service.CertificationClaim{
		EmiratesID:        req.EmiratesID,
		CertificationName: req.CertificationName,
		IssuingAuthority:  req.IssuingAuthority,
		IssueDateField:    req.IssueDate,
		ExpiryDate:        req.ExpiryDate,
	})
	h.writeResult(w, res)
}

// writeResult maps the pipeline's typed result onto HTTP. The body is always
// the result itself; only the status line and the Retry-After hint vary.
func (h *Handler) writeResult(w http.ResponseWriter, res service.Result) {
	status := http.StatusOK
	if !res.Success {
		status = derrors.HTTPStatus(res.Code)
		if res.Code == derrors.CodeRateLimited && res.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
		}
	}
	httputil.WriteJSON(w, status, res)
}
