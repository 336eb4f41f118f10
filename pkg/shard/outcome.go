package shard

// Outcome is the structured return value of do_work. It packs into a
// single i64 so the export keeps a one-value signature:
//
//	bits  0-31  address of the result in guest memory
//	bits 32-47  result length in bytes
//	bits 48-55  status
//	bits 56-63  reserved, zero
//
// On success Address points at the appended table name. On failure it is
// the buffer base and Length is zero.
type Outcome struct {
	Status  Status
	Address uint32
	Length  uint16
}

// Success builds the outcome for a resolved name appended to the buffer at base.
func Success(base uint32, res Result) Outcome {
	return Outcome{
		Status:  StatusOK,
		Address: base + uint32(res.Offset),
		Length:  uint16(len(res.Name)),
	}
}

// Failure builds the outcome for err.
func Failure(base uint32, err error) Outcome {
	return Outcome{Status: StatusOf(err), Address: base}
}

// Pack encodes the outcome as an i64 result.
func (o Outcome) Pack() uint64 {
	return uint64(o.Address) | uint64(o.Length)<<32 | uint64(o.Status)<<48
}

// Unpack decodes a packed outcome.
func Unpack(v uint64) Outcome {
	return Outcome{
		Address: uint32(v),
		Length:  uint16(v >> 32),
		Status:  Status(v >> 48),
	}
}

// Err returns the error for a failed outcome, or nil.
func (o Outcome) Err() error {
	return o.Status.Err()
}
