// Package httpd exposes an open camera over HTTP.  Each camera gets a
// goji submux built from a RouteTable; the caller mounts it wherever it
// wants in its router.
package httpd

import (
	"encoding/json"
	"net/http"

	"goji.io"
	"goji.io/pat"
)

// MethodPath is one HTTP method and URL pattern pair.
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps method/pattern pairs to handlers.
type RouteTable map[MethodPath]http.HandlerFunc

// Bind attaches every route in the table to mux.
func (rt RouteTable) Bind(mux *goji.Mux) {
	for mp, handler := range rt {
		mux.HandleFunc(pat.NewWithMethods(mp.Path, mp.Method), handler)
	}
}

// Endpoints lists the bound method/pattern pairs.
func (rt RouteTable) Endpoints() []MethodPath {
	out := make([]MethodPath, 0, len(rt))
	for mp := range rt {
		out = append(out, mp)
	}
	return out
}

// FloatT is the JSON envelope for a single float payload.
type FloatT struct {
	F64 float64 `json:"f64"`
}

// StrT is the JSON envelope for a single string payload.
type StrT struct {
	Str string `json:"str"`
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetFloat wraps a float getter in a handler responding {"f64": value}.
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, FloatT{F64: f})
	}
}

// SetFloat wraps a float setter in a handler parsing {"f64": value}.
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f FloatT
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := fcn(f.F64); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetString wraps a string getter in a handler responding {"str": value}.
func GetString(fcn func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, StrT{Str: s})
	}
}
