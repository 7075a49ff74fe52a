package httpadapter

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/core/usecase"
	"github.com/kirillkom/document-intake/internal/observability/logging"
)

type wrongUploadsBody struct {
	DocumentDetected []domain.WrongUpload `json:"documentDetected"`
}

type batchResponse struct {
	Success          bool                             `json:"success"`
	ClientID         string                           `json:"clientId"`
	ProductType      string                           `json:"productType"`
	NewPlate         string                           `json:"newPlate,omitempty"`
	ExpectedCount    int                              `json:"expectedCount"`
	ValidCount       int                              `json:"validCount"`
	ExtractedNumbers map[domain.DocumentType]string   `json:"extractedNumbers"`
	CrossCheckMatch  *bool                            `json:"crossCheckMatch"`
	WrongUploads     *wrongUploadsBody                `json:"wrongUploads,omitempty"`
	Message          string                           `json:"message,omitempty"`
	Missing          []domain.DocumentType            `json:"missing"`
	ValidDocs        []domain.DocumentType            `json:"validDocs"`
	Replaced         []domain.DocumentType            `json:"replaced,omitempty"`
	Results          map[domain.DocumentType][]string `json:"results"`
	Records          []domain.ProcessedRecord         `json:"records"`
	Version          int64                            `json:"version"`
}

func (rt *Router) createBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)

	req, err := parseBatchRequest(r, rt.opts.MaxUploadBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeDomainError(w, r, err)
		return
	}

	ctx := logging.WithSessionID(r.Context(), strings.TrimSpace(req.SessionID))
	start := time.Now()
	verdict, err := rt.intake.ProcessBatch(ctx, req)
	if rt.opts.IntakeMetrics != nil {
		rt.opts.IntakeMetrics.ObserveBatch(time.Since(start), verdict, err)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if !verdict.Complete {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, newBatchResponse(verdict))
}

func newBatchResponse(v *domain.Verdict) batchResponse {
	resp := batchResponse{
		Success:          v.Complete,
		ClientID:         v.SessionID,
		ProductType:      v.ProductLine,
		NewPlate:         v.Variant,
		ExpectedCount:    v.ExpectedCount,
		ValidCount:       v.ValidCount,
		ExtractedNumbers: v.CrossCheckNumbers,
		CrossCheckMatch:  v.CrossCheck,
		Missing:          v.Missing,
		ValidDocs:        v.Accepted,
		Replaced:         v.Replaced,
		Results:          v.Files,
		Records:          v.Records,
		Version:          v.Version,
	}
	if resp.ExtractedNumbers == nil {
		resp.ExtractedNumbers = map[domain.DocumentType]string{}
	}
	if resp.Missing == nil {
		resp.Missing = []domain.DocumentType{}
	}
	if resp.ValidDocs == nil {
		resp.ValidDocs = []domain.DocumentType{}
	}
	if resp.Records == nil {
		resp.Records = []domain.ProcessedRecord{}
	}
	if len(v.WrongUploads) > 0 {
		resp.WrongUploads = &wrongUploadsBody{DocumentDetected: v.WrongUploads}
	}
	if len(v.Missing) > 0 {
		names := make([]string, len(v.Missing))
		for i, m := range v.Missing {
			names[i] = string(m)
		}
		resp.Message = "Missing required documents: " + strings.Join(names, ", ")
	}
	return resp
}

func parseBatchRequest(r *http.Request, maxMemory int64) (ports.BatchRequest, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ports.BatchRequest{}, err
		}
		if strings.Contains(err.Error(), "request body too large") {
			return ports.BatchRequest{}, &http.MaxBytesError{Limit: maxMemory}
		}
		return ports.BatchRequest{}, domain.InvalidInput("parse batch", "multipart/form-data body is required")
	}

	req := ports.BatchRequest{
		SessionID:   r.FormValue("clientId"),
		UseFor:      r.FormValue("useFor"),
		ProductLine: r.FormValue("productType"),
		Variant:     strings.TrimSpace(r.FormValue("newPlate")),
		Files:       make(map[string]domain.UploadedFile),
	}

	for _, slot := range usecase.UploadSlots {
		file, ok, err := readSlot(r.MultipartForm, slot)
		if err != nil {
			return ports.BatchRequest{}, err
		}
		if !ok {
			continue
		}
		if hint := strings.TrimSpace(r.FormValue(slot + "_type")); hint != "" {
			file.TypeHint = domain.DocumentType(strings.ToUpper(hint))
		}
		req.Files[slot] = file
	}
	return req, nil
}

// readSlot takes the first file part of slot, or a data URI string field.
func readSlot(form *multipart.Form, slot string) (domain.UploadedFile, bool, error) {
	if headers := form.File[slot]; len(headers) > 0 {
		return readFilePart(slot, headers[0])
	}
	if values := form.Value[slot]; len(values) > 0 && strings.TrimSpace(values[0]) != "" {
		return decodeDataURI(slot, strings.TrimSpace(values[0]))
	}
	return domain.UploadedFile{}, false, nil
}

func readFilePart(slot string, header *multipart.FileHeader) (domain.UploadedFile, bool, error) {
	f, err := header.Open()
	if err != nil {
		return domain.UploadedFile{}, false, fmt.Errorf("open upload %s: %w", slot, err)
	}
	defer f.Close()

	payload, err := io.ReadAll(f)
	if err != nil {
		return domain.UploadedFile{}, false, fmt.Errorf("read upload %s: %w", slot, err)
	}
	return domain.UploadedFile{
		Slot:     slot,
		FileName: header.Filename,
		MimeType: resolveMimeType(header.Header.Get("Content-Type"), payload),
		Payload:  payload,
	}, true, nil
}

func decodeDataURI(slot, value string) (domain.UploadedFile, bool, error) {
	rest, ok := strings.CutPrefix(value, "data:")
	if !ok {
		return domain.UploadedFile{}, false, domain.InvalidInput("parse batch",
			fmt.Sprintf("%s must be a file or a data:<mime>;base64, string", slot))
	}
	meta, body, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return domain.UploadedFile{}, false, domain.InvalidInput("parse batch",
			fmt.Sprintf("%s data URI must be base64 encoded", slot))
	}
	payload, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return domain.UploadedFile{}, false, domain.InvalidInput("parse batch",
			fmt.Sprintf("%s data URI is not valid base64", slot))
	}
	return domain.UploadedFile{
		Slot:     slot,
		MimeType: resolveMimeType(strings.TrimSuffix(meta, ";base64"), payload),
		Payload:  payload,
	}, true, nil
}

// resolveMimeType trusts a declared type unless it is missing or generic.
func resolveMimeType(declared string, payload []byte) string {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
		return strings.ToLower(mediaType)
	}
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(payload))
	return sniffed
}
