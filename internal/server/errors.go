package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/store"
)

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

type fieldErrorJSON struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error  string           `json:"error"`
	Fields []fieldErrorJSON `json:"fields,omitempty"`
	Unmet  []string         `json:"unmet,omitempty"`
	Cycle  []string         `json:"cycle,omitempty"`
}

// writeServiceError maps an error returned by the scheduler to an HTTP
// status and a JSON body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ie  inputError
		ve  *model.ValidationError
		nf  *model.NotFoundError
		dv  *model.DependencyViolationError
		cyc *model.CyclicDependencyError
		te  *model.TransitionError
		cm  *model.ConcurrentModificationError
	)
	resp := errorResponse{Error: err.Error()}
	var code int
	switch {
	case errors.As(err, &ie):
		code = http.StatusBadRequest
	case errors.As(err, &ve):
		code = http.StatusBadRequest
		for _, fe := range ve.Errors {
			resp.Fields = append(resp.Fields, fieldErrorJSON{Field: fe.Field, Message: fe.Message})
		}
	case errors.As(err, &nf):
		code = http.StatusNotFound
	case errors.As(err, &dv):
		code = http.StatusUnprocessableEntity
		resp.Unmet = dv.Unmet
	case errors.As(err, &cyc):
		code = http.StatusUnprocessableEntity
		resp.Cycle = cyc.Cycle
	case errors.As(err, &te):
		code = http.StatusUnprocessableEntity
	case errors.As(err, &cm), errors.Is(err, store.ErrDuplicate):
		code = http.StatusConflict
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		code = http.StatusInternalServerError
		resp.Error = "internal server error"
	}
	writeJSON(w, code, resp)
}
