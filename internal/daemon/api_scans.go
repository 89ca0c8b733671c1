package daemon

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"leaflens/internal/api"
	"leaflens/internal/lifecycle"
	"leaflens/internal/scans"
	"leaflens/internal/services"
)

// maxImageBytes bounds one decoded photo accepted over HTTP.
const maxImageBytes = 25 << 20

func (s *apiServer) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	maxImages := max(s.maxImages, 1)
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxImages)*maxImageBytes*2)

	owner, images, err := readScanImages(r)
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	rec, err := s.scans.CreateScan(r.Context(), owner, images)
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}

	if r.URL.Query().Get("process") != "sync" {
		s.wake()
		s.writeJSON(w, http.StatusCreated, api.CreateScanResponse{ID: rec.ID, Status: string(rec.Status)})
		return
	}
	processed, err := s.scans.Process(r.Context(), rec.ID)
	if err != nil {
		s.writeFailure(w, r, err, firstRecord(processed, rec))
		return
	}
	s.writeJSON(w, http.StatusCreated, api.ProcessResult(processed))
}

func (s *apiServer) handleListScans(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := scans.ListOptions{OwnerID: strings.TrimSpace(query.Get("owner"))}
	for _, raw := range strings.Split(query.Get("status"), ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, ok := scans.ParseStatus(raw)
		if !ok {
			s.writeFailure(w, r, services.Wrap(services.ErrValidation, "", "list scans",
				fmt.Sprintf("unknown status %q", raw), nil), nil)
			return
		}
		opts.Statuses = append(opts.Statuses, status)
	}
	limit, err := parseLimit(query.Get("limit"), 0)
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	opts.Limit = limit

	recs, err := s.scans.ListScans(r.Context(), opts)
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ScanListResponse{Scans: api.FromRecords(recs)})
}

func (s *apiServer) handleGetScan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.scans.GetScan(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromRecord(rec))
}

func (s *apiServer) handleProcessScan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.scans.Process(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err, rec)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ProcessResult(rec))
}

func (s *apiServer) handleRetryScan(w http.ResponseWriter, r *http.Request) {
	rec, cleared, err := s.scans.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err, rec)
		return
	}
	if cleared {
		s.wake()
	}
	s.writeJSON(w, http.StatusOK, api.RetryResponse{Cleared: cleared, Scan: api.FromRecord(rec)})
}

func (s *apiServer) handleSelection(w http.ResponseWriter, r *http.Request) {
	var req api.SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFailure(w, r, services.Wrap(services.ErrValidation, "", "select match", "invalid JSON body", err), nil)
		return
	}
	rec, err := s.scans.SaveSelectedMatch(r.Context(), r.PathValue("id"), req.CatalogEntryID)
	if err != nil {
		s.writeFailure(w, r, err, rec)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromRecord(rec))
}

// readScanImages accepts either a JSON body of base64 photos or a multipart
// form with one "image" part per photo.
func readScanImages(r *http.Request) (string, []lifecycle.Image, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return readMultipartImages(r)
	}

	var req api.CreateScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", nil, services.Wrap(services.ErrValidation, "", "create scan", "invalid JSON body", err)
	}
	images := make([]lifecycle.Image, 0, len(req.Images))
	for i, img := range req.Images {
		data, err := decodeBase64(img.Base64)
		if err != nil {
			return "", nil, services.Wrap(services.ErrValidation, "", "create scan",
				fmt.Sprintf("image %d is not valid base64", i), err)
		}
		images = append(images, lifecycle.Image{Filename: img.Filename, ContentType: img.ContentType, Data: data})
	}
	return req.OwnerID, images, nil
}

func readMultipartImages(r *http.Request) (string, []lifecycle.Image, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", nil, services.Wrap(services.ErrValidation, "", "create scan", "invalid multipart body", err)
	}
	defer r.MultipartForm.RemoveAll()

	var images []lifecycle.Image
	for _, header := range r.MultipartForm.File["image"] {
		file, err := header.Open()
		if err != nil {
			return "", nil, services.Wrap(services.ErrValidation, "", "create scan", "unreadable image part", err)
		}
		data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
		file.Close()
		if err != nil {
			return "", nil, services.Wrap(services.ErrValidation, "", "create scan", "unreadable image part", err)
		}
		if len(data) > maxImageBytes {
			return "", nil, services.Wrap(services.ErrValidation, "", "create scan",
				fmt.Sprintf("image %s exceeds %d bytes", header.Filename, maxImageBytes), nil)
		}
		images = append(images, lifecycle.Image{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return r.FormValue("ownerId"), images, nil
}

// decodeBase64 accepts standard base64, with or without a data URL prefix.
func decodeBase64(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "data:") {
		if comma := strings.IndexByte(value, ','); comma >= 0 {
			value = value[comma+1:]
		}
	}
	if value == "" {
		return nil, errors.New("empty payload")
	}
	return base64.StdEncoding.DecodeString(value)
}

func parseLimit(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, services.Wrap(services.ErrValidation, "", "parse limit", fmt.Sprintf("invalid limit %q", raw), nil)
	}
	return limit, nil
}

func firstRecord(recs ...*scans.Record) *scans.Record {
	for _, rec := range recs {
		if rec != nil {
			return rec
		}
	}
	return nil
}
