// Package api holds the HTTP contract described by openapi.yaml: request and
// response types, the server interface and the chi routing that binds path
// and query parameters.
package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// TransformJobRequest defines model for TransformJobRequest.
type TransformJobRequest struct {
	// ImageUrl is the http(s) source image.
	ImageUrl string `json:"imageUrl"`
	// Params uses the query-string form of GET /transform, e.g. "w=200&h=200&t=crop".
	Params string `json:"params,omitempty"`
}

// TransformResult is stored on a finished job.
type TransformResult struct {
	ImageUrl string `json:"imageUrl"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	Bytes    int    `json:"bytes"`
}

// JobResponse defines model for JobResponse.
type JobResponse struct {
	Id        openapi_types.UUID `json:"id"`
	Status    string             `json:"status"`
	ImageUrl  *string            `json:"imageUrl,omitempty"`
	Width     *int               `json:"width,omitempty"`
	Height    *int               `json:"height,omitempty"`
	Format    *string            `json:"format,omitempty"`
	Error     *string            `json:"error,omitempty"`
	CreatedAt string             `json:"createdAt"`
	UpdatedAt string             `json:"updatedAt"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Message string `json:"message"`
}

// GetTransformParams defines parameters for GetTransform.
type GetTransformParams struct {
	Url    string  `form:"url" json:"url"`
	W      *int    `form:"w,omitempty" json:"w,omitempty"`
	H      *int    `form:"h,omitempty" json:"h,omitempty"`
	T      *string `form:"t,omitempty" json:"t,omitempty"`
	A      *string `form:"a,omitempty" json:"a,omitempty"`
	Or     *string `form:"or,omitempty" json:"or,omitempty"`
	Trim   *string `form:"trim,omitempty" json:"trim,omitempty"`
	Bg     *string `form:"bg,omitempty" json:"bg,omitempty"`
	Filt   *string `form:"filt,omitempty" json:"filt,omitempty"`
	Output *string `form:"output,omitempty" json:"output,omitempty"`
	Q      *int    `form:"q,omitempty" json:"q,omitempty"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Create an asynchronous transform job
	// (POST /jobs/transform)
	PostJobsTransform(w http.ResponseWriter, r *http.Request)
	// Get job status
	// (GET /jobs/{id})
	GetJobsId(w http.ResponseWriter, r *http.Request, id openapi_types.UUID)
	// Fetch and transform an image synchronously
	// (GET /transform)
	GetTransform(w http.ResponseWriter, r *http.Request, params GetTransformParams)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// PostJobsTransform operation middleware
func (siw *ServerInterfaceWrapper) PostJobsTransform(w http.ResponseWriter, r *http.Request) {
	siw.Handler.PostJobsTransform(w, r)
}

// GetJobsId operation middleware
func (siw *ServerInterfaceWrapper) GetJobsId(w http.ResponseWriter, r *http.Request) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithLocation("simple", false, "id", runtime.ParamLocationPath, chi.URLParam(r, "id"), &id)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
		return
	}
	siw.Handler.GetJobsId(w, r, id)
}

// GetTransform operation middleware
func (siw *ServerInterfaceWrapper) GetTransform(w http.ResponseWriter, r *http.Request) {
	var params GetTransformParams
	query := r.URL.Query()

	if err := runtime.BindQueryParameter("form", true, true, "url", query, &params.Url); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "url", Err: err})
		return
	}
	optional := []struct {
		name string
		dest any
	}{
		{"w", &params.W},
		{"h", &params.H},
		{"t", &params.T},
		{"a", &params.A},
		{"or", &params.Or},
		{"trim", &params.Trim},
		{"bg", &params.Bg},
		{"filt", &params.Filt},
		{"output", &params.Output},
		{"q", &params.Q},
	}
	for _, p := range optional {
		if err := runtime.BindQueryParameter("form", true, false, p.name, query, p.dest); err != nil {
			siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: p.name, Err: err})
			return
		}
	}
	siw.Handler.GetTransform(w, r, params)
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// HandlerFromMux creates http.Handler with routing matching OpenAPI spec based on the provided mux.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	wrapper := ServerInterfaceWrapper{
		Handler: si,
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		},
	}
	r.Post("/jobs/transform", wrapper.PostJobsTransform)
	r.Get("/jobs/{id}", wrapper.GetJobsId)
	r.Get("/transform", wrapper.GetTransform)
	return r
}
