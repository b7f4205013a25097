//go:build !dcam

package dcam

// Native reports that this binary was built without the vendor library
// binding.  Build with -tags dcam and the DCAM-API SDK installed to get
// the real one.
func Native() (API, error) {
	return nil, Check(ErrNoModule, "Native")
}
