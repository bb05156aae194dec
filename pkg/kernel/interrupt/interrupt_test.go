package interrupt

import "testing"

func TestBootStateIsOff(t *testing.T) {
	c := New()
	if c.Level() != Off {
		t.Error("controller should boot with interrupts off")
	}
	if c.InHandler() {
		t.Error("controller should boot outside any handler")
	}
}

func TestDisableReturnsPreviousLevel(t *testing.T) {
	c := New()
	c.Enable()

	if prev := c.Disable(); prev != On {
		t.Errorf("Disable returned %v, want On", prev)
	}
	if c.Level() != Off {
		t.Error("level should be Off after Disable")
	}

	// Nested disable sees Off and restores are no-ops until the outer
	// restore runs.
	if prev := c.Disable(); prev != Off {
		t.Errorf("nested Disable returned %v, want Off", prev)
	}
	c.SetLevel(Off)
	if c.Level() != Off {
		t.Error("inner restore should keep interrupts off")
	}
	c.SetLevel(On)
	if c.Level() != On {
		t.Error("outer restore should re-enable interrupts")
	}
}

func TestHandlerForcesInterruptsOff(t *testing.T) {
	c := New()
	c.Enable()

	prev := c.EnterHandler()
	if prev != On {
		t.Errorf("EnterHandler returned %v, want On", prev)
	}
	if c.Level() != Off || !c.InHandler() {
		t.Error("handler should run with interrupts off")
	}

	c.LeaveHandler(prev)
	if c.Level() != On || c.InHandler() {
		t.Error("LeaveHandler should restore the pre-interrupt level")
	}
}

func TestEnableInsideHandlerPanics(t *testing.T) {
	c := New()
	c.Enable()
	c.EnterHandler()

	defer func() {
		if recover() == nil {
			t.Error("Enable inside a handler should panic")
		}
	}()
	c.Enable()
}

func TestYieldRequestIsDeferredAndConsumed(t *testing.T) {
	c := New()
	c.Enable()

	prev := c.EnterHandler()
	c.RequestYieldOnReturn()
	c.LeaveHandler(prev)

	if !c.TakeYieldRequest() {
		t.Error("yield request should be pending after the handler")
	}
	if c.TakeYieldRequest() {
		t.Error("TakeYieldRequest should consume the flag")
	}
}

func TestYieldRequestOutsideHandlerPanics(t *testing.T) {
	c := New()
	defer func() {
		if recover() == nil {
			t.Error("RequestYieldOnReturn outside a handler should panic")
		}
	}()
	c.RequestYieldOnReturn()
}
