// internal/pdo/pdo.go
package pdo

import (
	"encoding/binary"
	"fmt"
)

// RxSize is the exact byte size of the command record (master -> device).
const RxSize = 8

// TxSize is the exact byte size of the status record (device -> master).
const TxSize = 12

// RxProcessData is the cyclic command record written into each device's
// output buffer. Layout is protocol-locked, little-endian, no implicit
// padding:
//
//	offset 0: control word      (uint16, object 0x6040)
//	offset 2: target position   (int32,  object 0x607A)
//	offset 6: mode of operation (uint8,  object 0x6060)
//	offset 7: reserved          (uint8)
type RxProcessData struct {
	ControlWord     uint16
	TargetPosition  int32
	ModeOfOperation uint8
	Reserved        uint8
}

// TxProcessData is the cyclic status record read from each device's input
// buffer. Layout is protocol-locked, little-endian:
//
//	offset  0: status word     (uint16, object 0x6041)
//	offset  2: actual position (int32,  object 0x6064)
//	offset  6: actual velocity (int32,  object 0x606C)
//	offset 10: actual torque   (int16,  object 0x6077)
type TxProcessData struct {
	StatusWord     uint16
	ActualPosition int32
	ActualVelocity int32
	ActualTorque   int16
}

// EncodeRx packs the command record into dst. dst must hold at least RxSize
// bytes. No IO. No side effects.
func EncodeRx(dst []byte, rx RxProcessData) error {
	if len(dst) < RxSize {
		return fmt.Errorf("pdo: rx buffer too short: %d < %d", len(dst), RxSize)
	}
	binary.LittleEndian.PutUint16(dst[0:2], rx.ControlWord)
	binary.LittleEndian.PutUint32(dst[2:6], uint32(rx.TargetPosition))
	dst[6] = rx.ModeOfOperation
	dst[7] = rx.Reserved
	return nil
}

// DecodeRx unpacks a command record from src.
func DecodeRx(src []byte) (RxProcessData, error) {
	if len(src) < RxSize {
		return RxProcessData{}, fmt.Errorf("pdo: rx buffer too short: %d < %d", len(src), RxSize)
	}
	return RxProcessData{
		ControlWord:     binary.LittleEndian.Uint16(src[0:2]),
		TargetPosition:  int32(binary.LittleEndian.Uint32(src[2:6])),
		ModeOfOperation: src[6],
		Reserved:        src[7],
	}, nil
}

// EncodeTx packs the status record into dst. dst must hold at least TxSize
// bytes.
func EncodeTx(dst []byte, tx TxProcessData) error {
	if len(dst) < TxSize {
		return fmt.Errorf("pdo: tx buffer too short: %d < %d", len(dst), TxSize)
	}
	binary.LittleEndian.PutUint16(dst[0:2], tx.StatusWord)
	binary.LittleEndian.PutUint32(dst[2:6], uint32(tx.ActualPosition))
	binary.LittleEndian.PutUint32(dst[6:10], uint32(tx.ActualVelocity))
	binary.LittleEndian.PutUint16(dst[10:12], uint16(tx.ActualTorque))
	return nil
}

// DecodeTx unpacks a status record from src.
func DecodeTx(src []byte) (TxProcessData, error) {
	if len(src) < TxSize {
		return TxProcessData{}, fmt.Errorf("pdo: tx buffer too short: %d < %d", len(src), TxSize)
	}
	return TxProcessData{
		StatusWord:     binary.LittleEndian.Uint16(src[0:2]),
		ActualPosition: int32(binary.LittleEndian.Uint32(src[2:6])),
		ActualVelocity: int32(binary.LittleEndian.Uint32(src[6:10])),
		ActualTorque:   int16(binary.LittleEndian.Uint16(src[10:12])),
	}, nil
}
