package web

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/vbonduro/tcmtongue/internal/service"
)

// maxUploadSize matches the upload ceiling of typical hosted form front-ends.
const maxUploadSize = 200 << 20 // 200 MB

// allowedExtensions is the file picker allowlist. Content is not checked
// beyond sniffing the MIME type sent to the model.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

func allowedExtension(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// imageMIME picks the MIME type sent to the model: sniffed from the bytes when
// they are JPEG or PNG, otherwise derived from the extension.
func imageMIME(data []byte, filename string) string {
	switch mime := http.DetectContentType(data); mime {
	case "image/jpeg", "image/png":
		return mime
	}
	if strings.ToLower(filepath.Ext(filename)) == ".png" {
		return "image/png"
	}
	return "image/jpeg"
}

type indexView struct {
	ActiveNav string
	Filename  string
	Result    *service.Result
	Error     string
}

var indexPage = []string{"base.html", "pages/index.html"}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.renderPage(w, http.StatusOK, indexView{ActiveNav: "analyze"}, indexPage...); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	view := indexView{ActiveNav: "analyze"}
	fail := func(status int, msg string) {
		view.Error = msg
		if err := s.renderPage(w, status, view, indexPage...); err != nil {
			s.logger.Error("render page failed", "error", err)
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		fail(http.StatusBadRequest, "failed to parse form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		fail(http.StatusBadRequest, "Please choose a photo to upload.")
		return
	}
	defer closeWithLog(file, "upload file", s.logger)

	view.Filename = header.Filename
	if !allowedExtension(header.Filename) {
		fail(http.StatusBadRequest, "Unsupported file type. Please upload a jpg, jpeg or png photo.")
		return
	}

	imageData, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("read upload failed", "filename", header.Filename, "error", err)
		fail(http.StatusInternalServerError, fmt.Sprintf("An error occurred: %v", err))
		return
	}

	result, err := s.service.Analyze(r.Context(), header.Filename, imageData, imageMIME(imageData, header.Filename))
	view.Result = result
	if err != nil {
		fail(http.StatusInternalServerError, fmt.Sprintf("An error occurred: %v", err))
		return
	}

	if err := s.renderPage(w, http.StatusOK, view, indexPage...); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
