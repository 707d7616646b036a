package trap

import "testing"

func TestDispatchFixedVector(t *testing.T) {
	d := NewDispatcher()
	called := false
	d.Register(VecPageFault, func(frame *InterruptFrame, errorCode uint64, hasErrorCode bool) {
		called = true
		if !hasErrorCode {
			t.Fatalf("expected page fault to carry an error code")
		}
	})
	d.Dispatch(VecPageFault, &InterruptFrame{}, 0x2, true)
	if !called {
		t.Fatalf("expected handler to run")
	}
}

func TestDispatchUnregisteredVectorPanics(t *testing.T) {
	d := NewDispatcher()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for an unregistered vector")
		}
	}()
	d.Dispatch(200, &InterruptFrame{}, 0, false)
}

func TestRegisterDynamicRoundTrip(t *testing.T) {
	d := NewDispatcher()
	vec := d.RegisterDynamic(func(frame *InterruptFrame, errorCode uint64, hasErrorCode bool) {})
	d.Dispatch(vec, &InterruptFrame{}, 0, false)
	d.Release(vec)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected dispatch after release to panic")
		}
	}()
	d.Dispatch(vec, &InterruptFrame{}, 0, false)
}

func TestDecodePageFaultCode(t *testing.T) {
	r := DecodePageFaultCode(0x7)
	if !r.Present || !r.Write || !r.User {
		t.Fatalf("expected all three bits set, got %+v", r)
	}
	r = DecodePageFaultCode(0)
	if r.Present || r.Write || r.User {
		t.Fatalf("expected all three bits clear, got %+v", r)
	}
}
