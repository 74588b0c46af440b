// internal/pdo/pdo_test.go
package pdo

import (
	"encoding/binary"
	"testing"
)

func TestEncodeRx_Layout(t *testing.T) {
	rx := RxProcessData{
		ControlWord:     CtrlEnableOperation,
		TargetPosition:  -123456,
		ModeOfOperation: ModeCSP,
	}

	buf := make([]byte, RxSize)
	if err := EncodeRx(buf, rx); err != nil {
		t.Fatalf("EncodeRx err=%v", err)
	}

	if got := binary.LittleEndian.Uint16(buf[0:2]); got != 0x000F {
		t.Fatalf("control word at offset 0: got=0x%04x", got)
	}
	if got := int32(binary.LittleEndian.Uint32(buf[2:6])); got != -123456 {
		t.Fatalf("target position at offset 2: got=%d", got)
	}
	if buf[6] != 8 {
		t.Fatalf("mode of operation at offset 6: got=%d", buf[6])
	}
	if buf[7] != 0 {
		t.Fatalf("reserved byte at offset 7: got=%d", buf[7])
	}
}

func TestRxRoundTrip(t *testing.T) {
	in := RxProcessData{
		ControlWord:     CtrlShutdown,
		TargetPosition:  2147483600,
		ModeOfOperation: ModeCSP,
		Reserved:        0,
	}

	buf := make([]byte, RxSize)
	if err := EncodeRx(buf, in); err != nil {
		t.Fatalf("EncodeRx err=%v", err)
	}
	out, err := DecodeRx(buf)
	if err != nil {
		t.Fatalf("DecodeRx err=%v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: in=%+v out=%+v", in, out)
	}
}

func TestTxRoundTrip(t *testing.T) {
	in := TxProcessData{
		StatusWord:     0x1237,
		ActualPosition: -1,
		ActualVelocity: 30000,
		ActualTorque:   -512,
	}

	buf := make([]byte, TxSize)
	if err := EncodeTx(buf, in); err != nil {
		t.Fatalf("EncodeTx err=%v", err)
	}
	out, err := DecodeTx(buf)
	if err != nil {
		t.Fatalf("DecodeTx err=%v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: in=%+v out=%+v", in, out)
	}
}

func TestDecode_ShortBuffers(t *testing.T) {
	if _, err := DecodeRx(make([]byte, RxSize-1)); err == nil {
		t.Fatal("DecodeRx accepted short buffer")
	}
	if _, err := DecodeTx(make([]byte, TxSize-1)); err == nil {
		t.Fatal("DecodeTx accepted short buffer")
	}
	if err := EncodeRx(make([]byte, RxSize-1), RxProcessData{}); err == nil {
		t.Fatal("EncodeRx accepted short buffer")
	}
	if err := EncodeTx(make([]byte, TxSize-1), TxProcessData{}); err == nil {
		t.Fatal("EncodeTx accepted short buffer")
	}
}

func TestOperationEnabled(t *testing.T) {
	if !OperationEnabled(0x0637) {
		t.Fatal("0x0637 should read as operation enabled")
	}
	if OperationEnabled(0x0608) {
		t.Fatal("0x0608 should not read as operation enabled")
	}
	if !Faulted(0x0008) {
		t.Fatal("fault bit not detected")
	}
}
