package http

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"firmadoc/internal/domain"
	"firmadoc/internal/usecase"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type createContractRequest struct {
	OwnerID       int64  `json:"owner_id"`
	Title         string `json:"title"`
	FileName      string `json:"file_name"`
	MimeType      string `json:"mime_type"`
	ContentBase64 string `json:"content_base64"`
}

type signRequest struct {
	SignerID             int64  `json:"signer_id"`
	SignatureImageBase64 string `json:"signature_image_base64,omitempty"`
}

type addSignatureRequest struct {
	SignerID             int64  `json:"signer_id"`
	Role                 string `json:"role"`
	SignatureImageBase64 string `json:"signature_image_base64,omitempty"`
}

type rejectRequest struct {
	ActorID int64  `json:"actor_id"`
	Reason  string `json:"reason,omitempty"`
}

type signatureResponse struct {
	SignerID         int64  `json:"signer_id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Document         string `json:"document"`
	Role             string `json:"role"`
	OriginIP         string `json:"origin_ip,omitempty"`
	SignedAt         string `json:"signed_at"`
	KeyID            string `json:"key_id"`
	DigitalSignature string `json:"digital_signature"`
}

type digestResponse struct {
	SHA512    string `json:"sha512"`
	SHA256    string `json:"sha256"`
	Size      int64  `json:"size"`
	Timestamp string `json:"timestamp"`
}

type compressionResponse struct {
	Algorithm      string  `json:"algorithm"`
	OriginalSize   int64   `json:"original_size"`
	CompressedSize int64   `json:"compressed_size"`
	Ratio          float64 `json:"ratio"`
}

type contractResponse struct {
	ID                   string               `json:"id"`
	OwnerID              int64                `json:"owner_id"`
	Title                string               `json:"title"`
	FileName             string               `json:"file_name"`
	MimeType             string               `json:"mime_type"`
	KeyID                string               `json:"key_id"`
	Status               string               `json:"status"`
	SignedAt             string               `json:"signed_at,omitempty"`
	InitiatingSignature  *signatureResponse   `json:"initiating_signature,omitempty"`
	AdditionalSignatures []signatureResponse  `json:"additional_signatures,omitempty"`
	Digest               *digestResponse      `json:"digest,omitempty"`
	Compression          *compressionResponse `json:"compression,omitempty"`
	CreatedAt            string               `json:"created_at"`
}

// signResultResponse is the contract plus the render job the signature
// enqueued.
type signResultResponse struct {
	contractResponse
	JobID string `json:"job_id,omitempty"`
}

type integrityResponse struct {
	ContractID    string                   `json:"contract_id"`
	ContentIntact bool                     `json:"content_intact"`
	Mismatches    []string                 `json:"mismatches,omitempty"`
	Signatures    []signatureCheckResponse `json:"signatures"`
	AllValid      bool                     `json:"all_valid"`
	CheckedAt     string                   `json:"checked_at"`
}

type signatureCheckResponse struct {
	Role    string `json:"role"`
	KeyID   string `json:"key_id"`
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) handleCreateContract(c *gin.Context) {
	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "content_base64 is not valid base64")
		return
	}

	contract, err := s.contracts.Create(c.Request.Context(), usecase.CreateContractRequest{
		OwnerID:  req.OwnerID,
		Title:    req.Title,
		FileName: req.FileName,
		MimeType: req.MimeType,
		Content:  content,
		OriginIP: c.ClientIP(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contractToResponse(contract))
}

func (s *Server) handleGetContract(c *gin.Context) {
	contract, err := s.contracts.GetContract(c.Request.Context(), c.Param("contract_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, contractToResponse(contract))
}

func (s *Server) handleDownload(c *gin.Context) {
	content, mimeType, err := s.contracts.DownloadContent(c.Request.Context(), c.Param("contract_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	c.Data(http.StatusOK, mimeType, content)
}

func (s *Server) handleSign(c *gin.Context) {
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	image, err := decodeOptionalBase64(req.SignatureImageBase64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "signature_image_base64 is not valid base64")
		return
	}

	result, err := s.contracts.Sign(c.Request.Context(), usecase.SignRequest{
		ContractID:     c.Param("contract_id"),
		SignerID:       req.SignerID,
		OriginIP:       c.ClientIP(),
		SignatureImage: image,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, signResultResponse{
		contractResponse: contractToResponse(result.Contract),
		JobID:            result.JobID,
	})
}

func (s *Server) handleAddSignature(c *gin.Context) {
	var req addSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	image, err := decodeOptionalBase64(req.SignatureImageBase64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "signature_image_base64 is not valid base64")
		return
	}

	result, err := s.contracts.AddSignature(c.Request.Context(), usecase.AddSignatureRequest{
		ContractID:     c.Param("contract_id"),
		SignerID:       req.SignerID,
		Role:           domain.SignerRole(req.Role),
		OriginIP:       c.ClientIP(),
		SignatureImage: image,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, signResultResponse{
		contractResponse: contractToResponse(result.Contract),
		JobID:            result.JobID,
	})
}

func (s *Server) handleReject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	err := s.contracts.Reject(c.Request.Context(), usecase.RejectRequest{
		ContractID: c.Param("contract_id"),
		ActorID:    req.ActorID,
		OriginIP:   c.ClientIP(),
		Reason:     req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.ContractStatusRejected)})
}

func (s *Server) handleVerifyIntegrity(c *gin.Context) {
	actorID, _ := strconv.ParseInt(c.Query("actor_id"), 10, 64)
	report, err := s.contracts.VerifyIntegrity(c.Request.Context(), c.Param("contract_id"), actorID)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := integrityResponse{
		ContractID:    report.ContractID,
		ContentIntact: report.ContentIntact,
		Mismatches:    report.Mismatches,
		AllValid:      report.AllValid(),
		CheckedAt:     report.CheckedAt.Format(time.RFC3339),
	}
	for _, check := range report.Signatures {
		resp.Signatures = append(resp.Signatures, signatureCheckResponse{
			Role:    string(check.Role),
			KeyID:   check.KeyID,
			IsValid: check.IsValid,
			Reason:  check.Reason,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListContracts(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Param("owner_id"), 10, 64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "owner_id must be numeric")
		return
	}
	contracts, err := s.contracts.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]contractResponse, 0, len(contracts))
	for i := range contracts {
		out = append(out, contractToResponse(&contracts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"contracts": out})
}

func (s *Server) handleStorageStats(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Param("owner_id"), 10, 64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "owner_id must be numeric")
		return
	}
	stats, err := s.contracts.StorageStats(c.Request.Context(), ownerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_contracts":           stats.TotalContracts,
		"total_original_size":       stats.TotalOriginalSize,
		"total_compressed_size":     stats.TotalCompressedSize,
		"average_compression_ratio": stats.AverageCompressionRatio,
		"space_saved":               stats.SpaceSaved,
	})
}

func (s *Server) handleManifest(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Param("owner_id"), 10, 64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "owner_id must be numeric")
		return
	}
	manifest, err := s.contracts.Manifest(c.Request.Context(), ownerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, manifest)
}

func (s *Server) handleAuditQuery(c *gin.Context) {
	filter := domain.AuditFilter{
		ContractID: c.Query("contract_id"),
		Action:     domain.AuditAction(c.Query("action")),
		Severity:   domain.AuditSeverity(c.Query("severity")),
	}
	filter.ActorID, _ = strconv.ParseInt(c.Query("actor_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "from must be RFC3339")
			return
		}
		filter.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "to must be RFC3339")
			return
		}
		filter.To = t
	}

	records, err := s.audit.Query(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": auditRecordsToResponse(records)})
}

func (s *Server) handleSecurityEvents(c *gin.Context) {
	var from, to time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "from must be RFC3339")
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "to must be RFC3339")
			return
		}
		to = t
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	actorID, _ := strconv.ParseInt(c.Query("actor_id"), 10, 64)

	events, err := s.audit.SecurityEvents(c.Request.Context(), actorID, from, to, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": auditRecordsToResponse(events)})
}

func (s *Server) handleAnomalies(c *gin.Context) {
	actorID, err := strconv.ParseInt(c.Query("actor_id"), 10, 64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "actor_id must be numeric")
		return
	}
	window := time.Hour
	if v := c.Query("window_minutes"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "window_minutes must be a positive integer")
			return
		}
		window = time.Duration(minutes) * time.Minute
	}

	signals, err := s.audit.DetectAnomalies(c.Request.Context(), actorID, window)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(signals))
	for _, signal := range signals {
		out = append(out, gin.H{
			"action":      string(signal.Action),
			"event_count": signal.EventCount,
			"first_event": signal.FirstEvent.Format(time.RFC3339),
			"last_event":  signal.LastEvent.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"anomalies": out})
}

func contractToResponse(contract *domain.ContractDocument) contractResponse {
	resp := contractResponse{
		ID:        contract.ID,
		OwnerID:   contract.OwnerID,
		Title:     contract.Title,
		FileName:  contract.FileName,
		MimeType:  contract.FileMimeType,
		KeyID:     contract.KeyID,
		Status:    string(contract.Status),
		CreatedAt: contract.CreatedAt.Format(time.RFC3339),
	}
	if contract.SignedAt != nil {
		resp.SignedAt = contract.SignedAt.Format(time.RFC3339)
	}
	if contract.InitiatingSignature != nil {
		sig := signatureToResponse(contract.InitiatingSignature)
		resp.InitiatingSignature = &sig
	}
	for i := range contract.AdditionalSignatures {
		resp.AdditionalSignatures = append(resp.AdditionalSignatures, signatureToResponse(&contract.AdditionalSignatures[i]))
	}
	if contract.Digest != nil {
		resp.Digest = &digestResponse{
			SHA512:    contract.Digest.SHA512,
			SHA256:    contract.Digest.SHA256,
			Size:      contract.Digest.Size,
			Timestamp: contract.Digest.Timestamp.Format(time.RFC3339),
		}
	}
	if contract.Compression != nil {
		resp.Compression = &compressionResponse{
			Algorithm:      contract.Compression.Algorithm,
			OriginalSize:   contract.Compression.OriginalSize,
			CompressedSize: contract.Compression.CompressedSize,
			Ratio:          contract.Compression.Ratio,
		}
	}
	return resp
}

func signatureToResponse(sig *domain.Signature) signatureResponse {
	return signatureResponse{
		SignerID:         sig.SignerID,
		Name:             sig.Name,
		Email:            sig.Email,
		Document:         sig.Document,
		Role:             string(sig.Role),
		OriginIP:         sig.OriginIP,
		SignedAt:         sig.SignedAt.Format(time.RFC3339),
		KeyID:            sig.KeyID,
		DigitalSignature: sig.DigitalSignature,
	}
}

func auditRecordsToResponse(records []domain.AuditRecord) []gin.H {
	out := make([]gin.H, 0, len(records))
	for i := range records {
		rec := &records[i]
		out = append(out, gin.H{
			"id":          rec.ID,
			"action":      string(rec.Action),
			"actor_id":    rec.ActorID,
			"contract_id": rec.ContractID,
			"origin_ip":   rec.OriginIP,
			"details":     rec.Details,
			"severity":    string(rec.Severity),
			"success":     rec.Success,
			"timestamp":   rec.Timestamp.Format(time.RFC3339),
		})
	}
	return out
}

func decodeOptionalBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(value)
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, domain.ErrAuthenticationFailed):
		status, code = http.StatusUnauthorized, "AUTHENTICATION_FAILED"
	case errors.Is(err, domain.ErrKeyNotFound):
		status, code = http.StatusNotFound, "KEY_NOT_FOUND"
	case errors.Is(err, domain.ErrDocumentNotFound):
		status, code = http.StatusNotFound, "DOCUMENT_NOT_FOUND"
	case errors.Is(err, domain.ErrNoBaseline):
		status, code = http.StatusConflict, "NO_BASELINE_DIGEST"
	case errors.Is(err, domain.ErrStateConflict):
		status, code = http.StatusConflict, "STATE_CONFLICT"
	case errors.Is(err, domain.ErrStorageUnavailable):
		status, code = http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"
	case errors.Is(err, domain.ErrSigningFailed):
		status, code = http.StatusInternalServerError, "SIGNING_FAILED"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
