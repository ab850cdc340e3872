package advisor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/hair-advisor/internal/constants"
	"github.com/kozaktomas/hair-advisor/internal/database"
	"github.com/kozaktomas/hair-advisor/internal/recommend"
)

const defaultRecentLimit = 20

var validate = validator.New()

// Handler serves the advisor HTTP API.
type Handler struct {
	advisor *Advisor
	reader  database.SubmissionReader // nil when persistence is disabled
	log     logrus.FieldLogger
}

// NewHandler creates the HTTP handler. reader may be nil.
func NewHandler(advisor *Advisor, reader database.SubmissionReader, log logrus.FieldLogger) *Handler {
	return &Handler{advisor: advisor, reader: reader, log: log}
}

// Routes mounts the advisor endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Post(recommend.EndpointPath, h.AnalyzeAndRecommend)
	r.Post(recommend.ChatPath, h.Chat)
	r.Get("/submissions", h.ListSubmissions)
	r.Get("/submissions/{userID}", h.GetSubmission)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"provider": h.advisor.provider.Name(),
		"model":    h.advisor.provider.Model(),
	})
}

// AnalyzeAndRecommend accepts a multipart form with a required quiz_data_json field and an optional file.
func (h *Handler) AnalyzeAndRecommend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	if _, ok := r.MultipartForm.Value[recommend.FieldProfile]; !ok {
		respondError(w, http.StatusUnprocessableEntity, recommend.FieldProfile+" is required")
		return
	}
	quizData := r.FormValue(recommend.FieldProfile)

	var image []byte
	file, _, err := r.FormFile(recommend.FieldImage)
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		respondError(w, http.StatusBadRequest, "invalid file upload")
		return
	default:
		image, err = io.ReadAll(file)
		file.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read file")
			return
		}
	}

	res, err := h.advisor.Recommend(r.Context(), []byte(quizData), image)
	switch {
	case errors.Is(err, ErrInvalidQuizData):
		respondError(w, http.StatusBadRequest, "Invalid JSON for quiz data")
		return
	case errors.Is(err, ErrInvalidImage):
		respondError(w, http.StatusBadRequest, "invalid image")
		return
	case err != nil:
		h.log.WithError(err).Error("recommendation failed")
		respondError(w, http.StatusBadGateway, "recommendation failed")
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// Chat answers a JSON follow-up question keyed by the user id of an earlier recommendation.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxJSONBodySize)
	var req recommend.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "user_id and message are required")
		return
	}

	reply, err := h.advisor.Chat(r.Context(), req.UserID, req.Message)
	switch {
	case errors.Is(err, ErrUnknownUser):
		respondError(w, http.StatusNotFound, "User profile not found")
		return
	case errors.Is(err, ErrChatUnavailable):
		respondError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	case err != nil:
		h.log.WithError(err).Error("chat failed")
		respondError(w, http.StatusBadGateway, "chat failed")
		return
	}

	respondJSON(w, http.StatusOK, recommend.ChatReply{UserID: req.UserID, Response: reply})
}

type submissionResponse struct {
	UserID          string          `json:"user_id"`
	QuizData        json.RawMessage `json:"quiz_data"`
	HasImage        bool            `json:"has_image"`
	ImageAnalysis   string          `json:"image_analysis"`
	RecommendedLine string          `json:"recommended_line"`
	Reason          string          `json:"reason"`
	ProductRoutine  string          `json:"product_routine"`
	Alternative     string          `json:"alternative"`
	Provider        string          `json:"provider"`
	Model           string          `json:"model"`
	Cost            float64         `json:"cost"`
	CreatedAt       string          `json:"created_at"`
}

func toSubmissionResponse(s database.StoredSubmission) submissionResponse {
	return submissionResponse{
		UserID:          s.UserID,
		QuizData:        s.QuizData,
		HasImage:        s.HasImage,
		ImageAnalysis:   s.ImageAnalysis,
		RecommendedLine: s.RecommendedLine,
		Reason:          s.Reason,
		ProductRoutine:  s.ProductRoutine,
		Alternative:     s.Alternative,
		Provider:        s.Provider,
		Model:           s.Model,
		Cost:            s.Cost,
		CreatedAt:       s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		respondError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}

	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 100)
	}

	subs, err := h.reader.Recent(r.Context(), limit)
	if err != nil {
		h.log.WithError(err).Error("failed to list submissions")
		respondError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}
	total, err := h.reader.Count(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to count submissions")
		respondError(w, http.StatusInternalServerError, "failed to count submissions")
		return
	}

	out := make([]submissionResponse, len(subs))
	for i, s := range subs {
		out[i] = toSubmissionResponse(s)
	}
	respondJSON(w, http.StatusOK, map[string]any{"submissions": out, "total": total})
}

func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		respondError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}

	s, err := h.reader.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.log.WithError(err).Error("failed to get submission")
		respondError(w, http.StatusInternalServerError, "failed to get submission")
		return
	}
	if s == nil {
		respondError(w, http.StatusNotFound, "submission not found")
		return
	}
	respondJSON(w, http.StatusOK, toSubmissionResponse(*s))
}
