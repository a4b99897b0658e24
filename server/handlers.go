package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wudi/rxverify/document"
	rxerrors "github.com/wudi/rxverify/errors"
	"github.com/wudi/rxverify/reference"
	"github.com/wudi/rxverify/report"
	"github.com/wudi/rxverify/rx"
	"github.com/wudi/rxverify/store"
)

type verifyMeta struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	DocumentDigest string    `json:"document_digest"`
	ReportDigest   string    `json:"report_digest"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"history":            s.history != nil,
		"doctor_registry":    s.doctors != nil,
		"reference_writable": s.findings != nil,
	})
}

func (s *Server) verify(c *gin.Context) {
	if c.Request.ContentLength > s.maxUpload {
		s.reject(c, http.StatusRequestEntityTooLarge, "File too large",
			"Uploads are limited to "+strconv.FormatInt(s.maxUpload>>20, 10)+" MB.")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(c, http.StatusRequestEntityTooLarge, "File too large", "")
			return
		}
		s.reject(c, http.StatusBadRequest, "No file provided", "")
		return
	}
	if file.Filename == "" {
		s.reject(c, http.StatusBadRequest, "No file selected", "")
		return
	}
	f, err := file.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.fail(c, err)
		return
	}

	env, err := s.verifier.Verify(c.Request.Context(), document.New(file.Filename, data))
	if err != nil {
		s.fail(c, err)
		return
	}
	if strings.EqualFold(c.Query("format"), "html") {
		s.writeHTML(c, env)
		return
	}
	ok(c, http.StatusOK, env.Report, verifyMeta{
		ID:             env.ID,
		CreatedAt:      env.CreatedAt,
		DocumentDigest: env.DocumentDigest,
		ReportDigest:   env.ReportDigest,
	})
}

func (s *Server) writeHTML(c *gin.Context, env report.Envelope) {
	page, err := report.RenderHTML(env)
	if err != nil {
		s.fail(c, rxerrors.Wrap(err, rxerrors.CategoryInternalFailure, "render_failed", "Error rendering verification report", ""))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) getVerification(c *gin.Context) {
	if s.history == nil {
		s.fail(c, historyUnavailable())
		return
	}
	env, err := s.history.GetVerification(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.fail(c, rxerrors.Wrap(err, rxerrors.CategoryNotFound, "verification_not_found", "Verification not found", ""))
			return
		}
		s.fail(c, err)
		return
	}
	if strings.EqualFold(c.Query("format"), "html") {
		s.writeHTML(c, env)
		return
	}
	ok(c, http.StatusOK, env, nil)
}

func (s *Server) listHistory(c *gin.Context) {
	if s.history == nil {
		s.fail(c, historyUnavailable())
		return
	}
	license := strings.TrimSpace(c.Query("license"))
	if license == "" {
		s.reject(c, http.StatusBadRequest, "No license number provided", "Pass the prescriber license as ?license=.")
		return
	}
	limit := s.historyLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.reject(c, http.StatusBadRequest, "Invalid limit", err.Error())
			return
		}
		limit = n
	}
	records, err := s.history.History(c.Request.Context(), license, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, records, nil)
}

type doctorRequest struct {
	LicenseNumber string `json:"license_number" binding:"required"`
	Name          string `json:"name" binding:"required"`
	Specialty     string `json:"specialty"`
	Status        string `json:"status"`
}

func (s *Server) addDoctor(c *gin.Context) {
	if s.doctors == nil {
		s.fail(c, registryUnavailable())
		return
	}
	var req doctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, http.StatusBadRequest, "Invalid doctor record", err.Error())
		return
	}
	d := rx.Doctor{
		LicenseNumber: strings.TrimSpace(req.LicenseNumber),
		Name:          strings.TrimSpace(req.Name),
		Specialty:     strings.TrimSpace(req.Specialty),
		Status:        strings.TrimSpace(req.Status),
	}
	if d.Status == "" {
		d.Status = "active"
	}
	if err := s.doctors.AddDoctor(c.Request.Context(), d); err != nil {
		if errors.Is(err, reference.ErrDuplicate) {
			s.reject(c, http.StatusConflict, "License number already registered", d.LicenseNumber)
			return
		}
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, d, nil)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) updateDoctorStatus(c *gin.Context) {
	if s.doctors == nil {
		s.fail(c, registryUnavailable())
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, http.StatusBadRequest, "Invalid status update", err.Error())
		return
	}
	license := c.Param("license")
	found, err := s.doctors.UpdateDoctorStatus(c.Request.Context(), license, strings.TrimSpace(req.Status))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !found {
		s.reject(c, http.StatusNotFound, "License number not found in database", license)
		return
	}
	ok(c, http.StatusOK, gin.H{"license_number": license, "status": strings.TrimSpace(req.Status)}, nil)
}

type interactionRequest struct {
	DrugA       string `json:"drug_a" binding:"required"`
	DrugB       string `json:"drug_b" binding:"required"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

func (s *Server) upsertInteraction(c *gin.Context) {
	if s.findings == nil {
		s.fail(c, referenceReadOnly())
		return
	}
	var req interactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, http.StatusBadRequest, "Invalid interaction", err.Error())
		return
	}
	in := rx.Interaction{
		DrugA:       strings.TrimSpace(req.DrugA),
		DrugB:       strings.TrimSpace(req.DrugB),
		Severity:    rx.ParseSeverity(strings.ToLower(strings.TrimSpace(req.Severity))),
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.findings.UpsertInteraction(c.Request.Context(), in); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, in, nil)
}

type contraindicationRequest struct {
	Drug        string   `json:"drug" binding:"required"`
	Conditions  []string `json:"conditions" binding:"required,min=1"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
}

func (s *Server) upsertContraindication(c *gin.Context) {
	if s.findings == nil {
		s.fail(c, referenceReadOnly())
		return
	}
	var req contraindicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, http.StatusBadRequest, "Invalid contraindication", err.Error())
		return
	}
	ci := rx.Contraindication{
		Drug:        strings.TrimSpace(req.Drug),
		Conditions:  req.Conditions,
		Severity:    rx.ParseSeverity(strings.ToLower(strings.TrimSpace(req.Severity))),
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.findings.UpsertContraindication(c.Request.Context(), ci); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, ci, nil)
}

var errNotConfigured = errors.New("store not configured")

func historyUnavailable() error {
	return rxerrors.Wrap(errNotConfigured, rxerrors.CategoryDependencyMissing, "history_unavailable",
		"Verification history unavailable", "Configure registry.mongodb_uri to keep verification history.")
}

func registryUnavailable() error {
	return rxerrors.Wrap(errNotConfigured, rxerrors.CategoryDependencyMissing, "registry_unavailable",
		msgLicenseDBUnavailable, "Configure registry.mongodb_uri or reference.seed_file.")
}

func referenceReadOnly() error {
	return rxerrors.Wrap(errNotConfigured, rxerrors.CategoryDependencyMissing, "reference_unavailable",
		"Reference database unavailable", "Configure reference.postgres_url or reference.seed_file.")
}

const msgLicenseDBUnavailable = "License database unavailable"
