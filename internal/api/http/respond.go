package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/grading"
	"github.com/mind-engage/mindengage-passcut/internal/ranking"
	"github.com/mind-engage/mindengage-passcut/internal/rescore"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make([]string, 0, len(ve))
			for _, fe := range ve {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			http.Error(w, "invalid request: "+strings.Join(fields, "; "), http.StatusBadRequest)
			return false
		}
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := parseID(chi.URLParam(r, name))
	if err != nil {
		http.Error(w, name+" required", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err == nil && id <= 0 {
		err = fmt.Errorf("id must be positive: %d", id)
	}
	return id, err
}

// writeError maps engine errors onto HTTP statuses.
func writeError(w http.ResponseWriter, op string, err error) {
	var ve *rescore.ValidationError
	var ce *rescore.ChunkError
	switch {
	case errors.As(err, &ve), errors.Is(err, grading.ErrBonus):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, exam.ErrNotFound), errors.Is(err, exam.ErrNoActiveExam), errors.Is(err, ranking.ErrNoPopulation):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, exam.ErrDuplicateRelease):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, grading.ErrSubjectConfig), errors.Is(err, grading.ErrKeyIncomplete):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &ce):
		log.Printf("[api] %s: %v", op, err)
		http.Error(w, op+": "+err.Error(), http.StatusInternalServerError)
	default:
		log.Printf("[api] %s: %v", op, err)
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}
