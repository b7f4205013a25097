package httpd

import (
	"fmt"
	"image"
	"net/http"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"

	"github.com/tiagocoutinho/hamamatsu/dcam"
)

// grayPreview renders a packed pixel buffer as an 8-bit grayscale
// image.  16-bit data keeps its high byte.
func grayPreview(pix dcam.PixelBuffer) (image.Image, error) {
	rect := image.Rect(0, 0, pix.Width, pix.Height)
	switch pix.PixelType {
	case dcam.PixelMono8:
		return &image.Gray{Pix: pix.Uint8(), Stride: pix.Width, Rect: rect}, nil
	case dcam.PixelMono16:
		samples := pix.Uint16()
		buf := make([]byte, len(samples))
		for i, s := range samples {
			buf[i] = byte(s >> 8)
		}
		return &image.Gray{Pix: buf, Stride: pix.Width, Rect: rect}, nil
	}
	return nil, fmt.Errorf("no preview for pixel type %s", pix.PixelType)
}

func (h *HTTPCamera) servePreview(w http.ResponseWriter, pix dcam.PixelBuffer, format string, scale int) {
	img, err := grayPreview(pix)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if scale > 0 && scale != pix.Width {
		img = imaging.Resize(img, scale, 0, imaging.Lanczos)
	}
	var f imaging.Format
	switch format {
	case "jpg":
		f = imaging.JPEG
		w.Header().Set("Content-Type", "image/jpeg")
	case "png":
		f = imaging.PNG
		w.Header().Set("Content-Type", "image/png")
	}
	w.WriteHeader(http.StatusOK)
	if err := imaging.Encode(w, img, f); err != nil {
		// status is already written; the client sees a short body
		log.WithError(err).Warn("could not encode preview")
	}
}
