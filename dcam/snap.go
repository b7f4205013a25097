package dcam

import "time"

// Snap acquires a single frame and returns an owned, packed copy of its
// pixels.  It arms a one-slot acquisition, starts capture, waits up to
// timeout for the frame, and tears everything down before returning.
func (d *Device) Snap(timeout time.Duration) (PixelBuffer, error) {
	s, err := d.NewStream(1)
	if err != nil {
		return PixelBuffer{}, err
	}
	defer s.Close()
	s.Timeout = timeout
	if err := d.Start(false); err != nil {
		return PixelBuffer{}, err
	}
	defer d.Stop()
	f, err := s.Next()
	if err != nil {
		return PixelBuffer{}, err
	}
	return CopyFrame(&f, nil)
}
