package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dontdude/markcheck/internal/apperr"
	"github.com/dontdude/markcheck/internal/domain"
	"github.com/dontdude/markcheck/internal/trademark"
)

// handleSubmit accepts a multipart form with name, product_name and an image file.
func (s *Server) handleSubmit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
		if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "image too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		req := trademark.SubmitRequest{
			OwnerKey:        id.OwnerKey,
			Name:            r.FormValue("name"),
			ProductCategory: r.FormValue("product_name"),
		}
		file, header, err := r.FormFile("image")
		switch {
		case err == nil:
			defer file.Close()
			req.Image = trademark.Image{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
				Body:        file,
			}
		case !errors.Is(err, http.ErrMissingFile):
			writeError(w, http.StatusBadRequest, "invalid image upload")
			return
		}

		slog.Info("Received submission", "ownerKey", id.OwnerKey, "name", req.Name)
		ack, err := s.svc.Submit(r.Context(), req)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	}
}

type historyResponse struct {
	Message string          `json:"message,omitempty"`
	Records []domain.Record `json:"records"`
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		hist, err := s.svc.History(r.Context(), id.OwnerKey)
		if err != nil {
			writeAppError(w, err)
			return
		}

		resp := historyResponse{Records: hist.Records}
		if hist.Empty() {
			resp.Message = domain.NoRecordsMessage
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleSignup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		var body struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := s.svc.Signup(r.Context(), id, body.Name, body.Email)
		if err != nil {
			writeAppError(w, err)
			return
		}
		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, res)
	}
}

func (s *Server) handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		u, err := s.svc.Profile(r.Context(), id.OwnerKey)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// writeAppError answers with the status and client-safe message of err.
func writeAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", status, "error", err)
	}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) && appErr.Field != "" {
		writeJSON(w, status, map[string]string{"error": appErr.Message, "field": appErr.Field})
		return
	}
	writeError(w, status, apperr.PublicMessage(err))
}
