package httpd

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"goji.io"
	"goji.io/pat"

	"github.com/tiagocoutinho/hamamatsu/dcam"
)

// snapGrace is added to the exposure time when bounding a single-frame
// capture.
const snapGrace = 5 * time.Second

// HTTPCamera wraps one open device in a route table.
type HTTPCamera struct {
	dev    *dcam.Device
	routes RouteTable
}

// New builds the HTTP surface for an open device.
func New(dev *dcam.Device) *HTTPCamera {
	h := &HTTPCamera{dev: dev}
	h.routes = RouteTable{
		{http.MethodGet, "/image"}:           h.getImage,
		{http.MethodGet, "/exposure-time"}:   GetFloat(h.exposureSeconds),
		{http.MethodPost, "/exposure-time"}:  SetFloat(h.setExposureSeconds),
		{http.MethodGet, "/status"}:          GetString(h.statusString),
		{http.MethodGet, "/info"}:            h.getInfo,
		{http.MethodGet, "/properties"}:      h.listProperties,
		{http.MethodGet, "/property/:name"}:  h.getProperty,
		{http.MethodPost, "/property/:name"}: h.setProperty,
		{http.MethodPost, "/trigger"}:        h.fireTrigger,
	}
	return h
}

// RT returns the route table.
func (h *HTTPCamera) RT() RouteTable { return h.routes }

// Mux returns a goji submux with all camera routes bound, ready to
// mount under a prefix pattern on a goji parent.
func (h *HTTPCamera) Mux() *goji.Mux {
	mux := goji.SubMux()
	h.routes.Bind(mux)
	return mux
}

// Handler returns a self-contained handler serving the camera routes at
// the root of its own path space.  Mount it behind http.StripPrefix
// when the parent router does not strip for you.
func (h *HTTPCamera) Handler() http.Handler {
	mux := goji.NewMux()
	h.routes.Bind(mux)
	return mux
}

func (h *HTTPCamera) exposureSeconds() (float64, error) {
	t, err := h.dev.GetExposureTime()
	if err != nil {
		return 0, err
	}
	return t.Seconds(), nil
}

func (h *HTTPCamera) setExposureSeconds(s float64) error {
	_, err := h.dev.SetExposureTime(time.Duration(s * float64(time.Second)))
	return err
}

func (h *HTTPCamera) statusString() (string, error) {
	st, err := h.dev.Status()
	if err != nil {
		return "", err
	}
	return st.String(), nil
}

func (h *HTTPCamera) getInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.dev.Info()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make(map[string]string, len(info))
	for id, v := range info {
		out[id.String()] = v
	}
	respondJSON(w, out)
}

func (h *HTTPCamera) fireTrigger(w http.ResponseWriter, r *http.Request) {
	if err := h.dev.FireTrigger(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// propertyJSON is the wire form of one capability, with its current
// value and rendered text.
type propertyJSON struct {
	Name     string   `json:"name"`
	UName    string   `json:"uname"`
	Type     string   `json:"type"`
	Unit     string   `json:"unit,omitempty"`
	Readable bool     `json:"readable"`
	Writable bool     `json:"writable"`
	Min      float64  `json:"min"`
	Max      float64  `json:"max"`
	Step     float64  `json:"step"`
	Default  float64  `json:"default"`
	Value    float64  `json:"value"`
	Text     string   `json:"text,omitempty"`
	Choices  []string `json:"choices,omitempty"`
}

func (h *HTTPCamera) describe(c *dcam.Capability) propertyJSON {
	p := propertyJSON{
		Name:     c.Name,
		UName:    c.UName,
		Type:     c.DTypeName(),
		Unit:     c.Unit.String(),
		Readable: c.Readable(),
		Writable: c.Writable(),
		Min:      c.Min,
		Max:      c.Max,
		Step:     c.Step,
		Default:  c.Default,
	}
	if c.Readable() {
		if v, err := c.Read(); err == nil {
			p.Value = v
			p.Text = c.Format(v)
		}
	}
	if len(c.Enum) > 0 {
		for label := range c.Enum {
			p.Choices = append(p.Choices, label)
		}
		sort.Strings(p.Choices)
	}
	return p
}

func (h *HTTPCamera) listProperties(w http.ResponseWriter, r *http.Request) {
	caps := h.dev.Capabilities()
	out := make([]propertyJSON, 0, len(caps))
	for _, c := range caps {
		out = append(out, h.describe(c))
	}
	respondJSON(w, out)
}

func (h *HTTPCamera) getProperty(w http.ResponseWriter, r *http.Request) {
	c, err := h.dev.CapByName(pat.Param(r, "name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	respondJSON(w, h.describe(c))
}

func (h *HTTPCamera) setProperty(w http.ResponseWriter, r *http.Request) {
	c, err := h.dev.CapByName(pat.Param(r, "name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	var body struct {
		F64 *float64 `json:"f64"`
		Str *string  `json:"str"`
	}
	err = json.NewDecoder(r.Body).Decode(&body)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var v float64
	switch {
	case body.Str != nil:
		v, err = c.WriteText(*body.Str)
	case body.F64 != nil:
		v, err = c.Write(*body.F64)
	default:
		http.Error(w, "body must carry f64 or str", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, FloatT{F64: v})
}

// getImage captures a single frame and streams it back in the requested
// format.
//
// Query parameters:
//
//	exposureTime  any time.ParseDuration input ("25ms", "10us"); a bare
//	              number is taken as seconds.  Sets the exposure before
//	              the capture.
//	fmt           jpg (default), png, or fits
//	scale         output width in pixels for jpg/png previews; the
//	              height follows the aspect ratio
func (h *HTTPCamera) getImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if texp := q.Get("exposureTime"); texp != "" {
		if _, err := strconv.ParseFloat(texp, 64); err == nil {
			texp += "s"
		}
		T, err := time.ParseDuration(texp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, err := h.dev.SetExposureTime(T); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	exp, err := h.dev.GetExposureTime()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	pix, err := h.dev.Snap(exp + snapGrace)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	format := q.Get("fmt")
	if format == "" {
		format = "jpg"
	}
	switch format {
	case "jpg", "png":
		scale := 0
		if s := q.Get("scale"); s != "" {
			scale, err = strconv.Atoi(s)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		h.servePreview(w, pix, format, scale)
	case "fits":
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=image.fits")
		if err := h.writeFits(w, pix); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, "unknown format "+format, http.StatusBadRequest)
	}
}
