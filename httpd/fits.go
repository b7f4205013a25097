package httpd

import (
	"fmt"
	"io"
	"time"

	"github.com/astrogo/fitsio"

	"github.com/tiagocoutinho/hamamatsu/dcam"
)

// headerCards collects camera identity and capture settings for the
// FITS header.
func (h *HTTPCamera) headerCards() []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "INSTRUME", Value: "Hamamatsu DCAM", Comment: "instrument"},
		{Name: "DATE-OBS", Value: time.Now().UTC().Format(time.RFC3339), Comment: "capture time, UTC"},
	}
	if info, err := h.dev.Info(); err == nil {
		if m, ok := info[dcam.IDStrModel]; ok {
			cards = append(cards, fitsio.Card{Name: "CAMMODEL", Value: m, Comment: "camera model"})
		}
		if s, ok := info[dcam.IDStrCameraID]; ok {
			cards = append(cards, fitsio.Card{Name: "CAMSN", Value: s, Comment: "camera id"})
		}
	}
	if exp, err := h.dev.GetExposureTime(); err == nil {
		cards = append(cards, fitsio.Card{Name: "EXPTIME", Value: exp.Seconds(), Comment: "exposure time, s"})
	}
	return cards
}

// writeFits streams one frame as a 16-bit FITS image.  FITS carries
// signed 16-bit data, so unsigned samples are offset by -32768 and the
// standard BZERO rewind is recorded in the header.
func (h *HTTPCamera) writeFits(w io.Writer, pix dcam.PixelBuffer) error {
	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer f.Close()
	im := fitsio.NewImage(16, []int{pix.Width, pix.Height})
	defer im.Close()
	cards := append(h.headerCards(),
		fitsio.Card{Name: "BZERO", Value: 32768.0, Comment: "unsigned offset"},
		fitsio.Card{Name: "BSCALE", Value: 1.0},
	)
	if err := im.Header().Append(cards...); err != nil {
		return err
	}
	var data []int16
	switch pix.PixelType {
	case dcam.PixelMono8:
		src := pix.Uint8()
		data = make([]int16, len(src))
		for i, s := range src {
			data[i] = int16(int(s) - 32768)
		}
	case dcam.PixelMono16:
		src := pix.Uint16()
		data = make([]int16, len(src))
		for i, s := range src {
			data[i] = int16(int(s) - 32768)
		}
	default:
		return fmt.Errorf("no FITS encoding for pixel type %s", pix.PixelType)
	}
	if err := im.Write(data); err != nil {
		return err
	}
	return f.Write(im)
}
