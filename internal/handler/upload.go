package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/crownvault/internal/upload"
)

// UploadHandler serves the image list inside the upload form.
type UploadHandler struct {
	uploader *upload.Uploader
	render   *Renderer
	logger   *slog.Logger
	maxBody  int64
}

func NewUploadHandler(u *upload.Uploader, render *Renderer, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{uploader: u, render: render, logger: logger, maxBody: maxUploadBody}
}

const (
	maxUploadBody  = 200 << 20
	msgUploadLarge = "Upload too large. Try fewer images at once."
)

func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		// The image list travels in the same body, so it cannot be
		// rebuilt here. Leave it in place and show only the error.
		h.logger.Warn("parse upload form", "error", err)
		w.Header().Set("HX-Retarget", "#upload-error")
		w.Header().Set("HX-Reswap", "outerHTML")
		h.render.Partial(w, http.StatusRequestEntityTooLarge, "upload-error", msgUploadLarge)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := upload.FromMultipart(r.MultipartForm.File["files"])
	images, errMsg := h.uploader.HandleFiles(r.Context(), files, currentImages(r))
	h.render.Partial(w, http.StatusOK, "image-list", imageList{Images: images, Error: errMsg})
}

func (h *UploadHandler) Remove(w http.ResponseWriter, r *http.Request) {
	images := currentImages(r)
	index, err := strconv.Atoi(r.FormValue("index"))
	if err != nil {
		h.render.Partial(w, http.StatusOK, "image-list", imageList{Images: images})
		return
	}
	h.render.Partial(w, http.StatusOK, "image-list", imageList{Images: upload.Remove(images, index)})
}

func currentImages(r *http.Request) []string {
	if r.Form == nil {
		r.ParseForm()
	}
	var images []string
	for _, img := range r.Form["images"] {
		if img != "" {
			images = append(images, img)
		}
	}
	return images
}
