package dcam

import (
	"strings"
	"testing"
)

func TestCheckBenignCodes(t *testing.T) {
	if err := Check(ErrSuccess, "op"); err != nil {
		t.Errorf("SUCCESS produced %v", err)
	}
	if err := Check(ErrNone, "op"); err != nil {
		t.Errorf("NONE produced %v", err)
	}
}

func TestCheckCarriesOp(t *testing.T) {
	err := Check(ErrTimeout, "dcamwait_start")
	if err == nil {
		t.Fatal("TIMEOUT produced nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "dcamwait_start") || !strings.Contains(msg, "TIMEOUT") {
		t.Errorf("message %q missing op or code name", msg)
	}
}

func TestErrorClassifiers(t *testing.T) {
	if !IsTimeout(Check(ErrTimeout, "w")) {
		t.Error("IsTimeout false for TIMEOUT")
	}
	if !IsAborted(Check(ErrAbort, "w")) {
		t.Error("IsAborted false for ABORT")
	}
	for _, code := range []EError{ErrBusy, ErrNotReady, ErrExcluded} {
		if !IsBusy(Check(code, "open")) {
			t.Errorf("IsBusy false for %s", code)
		}
	}
	if IsBusy(Check(ErrTimeout, "w")) || IsTimeout(nil) || IsAborted(nil) {
		t.Error("classifier matched the wrong input")
	}
}

func TestUnknownCodeString(t *testing.T) {
	got := EError(0x80123456).String()
	if !strings.Contains(got, "80123456") {
		t.Errorf("unknown code rendered as %q", got)
	}
}
