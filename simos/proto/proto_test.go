package proto

import "testing"

func TestStatusPayloadNegative(t *testing.T) {
	got, ok := DecodeStatusPayload(StatusPayload(-3))
	if !ok || got != -3 {
		t.Fatalf("DecodeStatusPayload = %d, %v; want -3, true", got, ok)
	}
	if _, ok := DecodeStatusPayload([]byte{1, 2}); ok {
		t.Fatalf("short payload decoded")
	}
}

func TestSysArgsSlots(t *testing.T) {
	a := SysArgs{Number: SysSemP, Arg1: 4, Arg2: []byte("hi"), Arg5: "name"}

	if v, ok := a.Int(1); !ok || v != 4 {
		t.Fatalf("Int(1) = %d, %v", v, ok)
	}
	if _, ok := a.Int(2); ok {
		t.Fatalf("Int(2) accepted a byte slice")
	}
	if b, ok := a.Bytes(2); !ok || string(b) != "hi" {
		t.Fatalf("Bytes(2) = %q, %v", b, ok)
	}
	if s, ok := a.Text(5); !ok || s != "name" {
		t.Fatalf("Text(5) = %q, %v", s, ok)
	}
	if rc := a.Rc(); rc != RcInvalid {
		t.Fatalf("Rc() on empty arg4 = %d", rc)
	}
	a.SetRc(RcWouldBlock)
	if rc := a.Rc(); rc != RcWouldBlock {
		t.Fatalf("Rc() = %d", rc)
	}
}

func TestOpcodeString(t *testing.T) {
	if s := SysDiskSize.String(); s != "disk_size" {
		t.Fatalf("String() = %q", s)
	}
	if s := Opcode(44).String(); s != "sys(44)" {
		t.Fatalf("String() = %q", s)
	}
	if Opcode(MaxSyscalls).Valid() || Opcode(-1).Valid() || !SysSpawn.Valid() {
		t.Fatalf("Valid() bounds wrong")
	}
}
