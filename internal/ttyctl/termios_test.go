package ttyctl

import "testing"

func TestTermiosTOSTOP(t *testing.T) {
	tm := &Termios{}
	if tm.TOSTOPSet() {
		t.Fatalf("zero-value termios should not have TOSTOP set")
	}
	tm.SetTOSTOP(true)
	if !tm.TOSTOPSet() {
		t.Fatalf("SetTOSTOP(true) did not set the bit")
	}
	tm.SetTOSTOP(false)
	if tm.TOSTOPSet() {
		t.Fatalf("SetTOSTOP(false) did not clear the bit")
	}
}
