package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/export"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/models"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/repository"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// IncidentIDHeader 客户端生成的事故 ID，用于重试去重
const IncidentIDHeader = "X-Incident-ID"

// 内存中缓存的 multipart 大小，超出部分落临时文件
const multipartMemory = 32 << 20

// IncidentService 处理器依赖的服务
type IncidentService interface {
	Ingest(ctx context.Context, upload *models.Upload) (*models.Incident, bool, error)
	Reject(reason string)
	Get(ctx context.Context, id string) (*models.Incident, error)
	List(ctx context.Context, limit int) ([]*models.Incident, error)
}

// IncidentHandler 事故接口处理器
type IncidentHandler struct {
	svc            IncidentService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewIncidentHandler 创建处理器
func NewIncidentHandler(svc IncidentService, maxUploadBytes int64, logger *zap.Logger) *IncidentHandler {
	return &IncidentHandler{
		svc:            svc,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

type ingestResponse struct {
	IncidentID string `json:"incident_id"`
	Duplicate  bool   `json:"duplicate,omitempty"`
}

type listResponse struct {
	Items []*models.Incident `json:"items"`
	Total int                `json:"total"`
}

// Create POST /api/v1/incidents
func (h *IncidentHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	upload, err := parseUpload(r)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.svc.Reject("body too large")
			writeJSON(w, http.StatusRequestEntityTooLarge, Fail(fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)))
			return
		}
		h.svc.Reject(err.Error())
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	inc, created, err := h.svc.Ingest(r.Context(), upload)
	if err != nil {
		h.logger.Error("Failed to ingest incident", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to store incident"))
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, Ok(ingestResponse{IncidentID: inc.ID, Duplicate: !created}))
}

// Get GET /api/v1/incidents/{id}
func (h *IncidentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	inc, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, Fail("incident not found"))
		return
	}
	if err != nil {
		h.logger.Error("Failed to get incident", zap.String("incident_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get incident"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(inc))
}

// List GET /api/v1/incidents?limit=N
func (h *IncidentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 0)

	incidents, err := h.svc.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list incidents", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list incidents"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(listResponse{Items: incidents, Total: len(incidents)}))
}

// Export GET /api/v1/incidents/export
func (h *IncidentHandler) Export(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 0)

	incidents, err := h.svc.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list incidents for export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to export incidents"))
		return
	}

	data, err := export.IncidentsXLSX(incidents)
	if err != nil {
		h.logger.Error("Failed to generate incidents xlsx", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to export incidents"))
		return
	}

	filename := fmt.Sprintf("incidents-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// parseUpload 解析 multipart 上传：timestamp/latitude/longitude 必填，audio 必须存在（可为空），photos 0..N
func parseUpload(r *http.Request) (*models.Upload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid multipart body: %w", err)
	}

	upload := &models.Upload{ID: r.Header.Get(IncidentIDHeader)}

	var err error
	if upload.Timestamp, err = formFloat(r.MultipartForm, "timestamp"); err != nil {
		return nil, err
	}
	if upload.Latitude, err = formFloat(r.MultipartForm, "latitude"); err != nil {
		return nil, err
	}
	if upload.Longitude, err = formFloat(r.MultipartForm, "longitude"); err != nil {
		return nil, err
	}
	if upload.Latitude < -90 || upload.Latitude > 90 {
		return nil, fmt.Errorf("latitude out of range: %v", upload.Latitude)
	}
	if upload.Longitude < -180 || upload.Longitude > 180 {
		return nil, fmt.Errorf("longitude out of range: %v", upload.Longitude)
	}

	audio := r.MultipartForm.File["audio"]
	if len(audio) == 0 {
		return nil, errors.New("missing audio part")
	}
	if upload.Audio, err = readPart(audio[0]); err != nil {
		return nil, err
	}

	for _, fh := range r.MultipartForm.File["photos"] {
		photo, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		upload.Photos = append(upload.Photos, photo)
	}

	return upload, nil
}

func formFloat(form *multipart.Form, name string) (float64, error) {
	values := form.Value[name]
	if len(values) == 0 || values[0] == "" {
		return 0, fmt.Errorf("missing field %s", name)
	}
	v, err := strconv.ParseFloat(values[0], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid field %s: %q", name, values[0])
	}
	return v, nil
}

func readPart(fh *multipart.FileHeader) (models.File, error) {
	f, err := fh.Open()
	if err != nil {
		return models.File{}, fmt.Errorf("failed to open part %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return models.File{}, fmt.Errorf("failed to read part %s: %w", fh.Filename, err)
	}
	return models.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
