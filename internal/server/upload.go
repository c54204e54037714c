package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/upload"
)

// MissingKeyMessage is answered when no upstream API key is configured.
const MissingKeyMessage = "Server configuration error: LYZR_API_KEY is not set."

type UploadHandler struct {
	Uploads        *upload.Service
	HasAPIKey      func() bool
	MaxUploadBytes int64
	ShowDebug      bool
}

func (h *UploadHandler) Register(g *echo.Group) {
	g.GET("", h.ready)
	g.POST("", h.upload)
}

func (h *UploadHandler) ready(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":           "ready",
		"message":          "Upload endpoint is ready. POST multipart/form-data with a file or files field.",
		"accepted_types":   upload.AcceptedExtensions,
		"accepted_mime":    upload.AcceptedMIMETypes,
		"max_upload_bytes": h.MaxUploadBytes,
	})
}

func (h *UploadHandler) upload(c echo.Context) error {
	if h.HasAPIKey != nil && !h.HasAPIKey() {
		return c.JSON(http.StatusInternalServerError, failedResult(apperror.Configuration(MissingKeyMessage)))
	}
	if h.Uploads == nil {
		return c.JSON(http.StatusInternalServerError,
			failedResult(apperror.Configuration("Server configuration error: upload service is not available.")))
	}

	files, err := formFiles(c, upload.FieldNames...)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form: "+err.Error())
	}
	res := h.Uploads.UploadAll(c.Request().Context(), files)
	if !h.ShowDebug {
		res.Debug = nil
	}
	return c.JSON(res.StatusCode(), res)
}

func failedResult(err *apperror.Error) upload.Result {
	return upload.Result{
		AssetIDs: []string{},
		Files:    []upload.FileResult{},
		Message:  err.Message,
		Error:    err.Message,
		Err:      err,
	}
}

// formFiles reads every file posted under fields, in field order. A request
// that is not multipart yields no files.
func formFiles(c echo.Context, fields ...string) ([]upload.File, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	var files []upload.File
	for _, field := range fields {
		for _, fh := range form.File[field] {
			f, err := readFile(fh)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
	}
	return files, nil
}

func readFile(fh *multipart.FileHeader) (upload.File, error) {
	src, err := fh.Open()
	if err != nil {
		return upload.File{}, err
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return upload.File{}, err
	}
	return upload.File{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}
