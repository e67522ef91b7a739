// Package codec implements the positional binary encoding used for call
// arguments, return values and error payloads.
//
// Values are written back to back with no names, padding or delimiters. Each
// type defines its own rule:
//
//	integers    fixed width, big-endian
//	floats      IEEE-754 bits, big-endian
//	bool        1 byte, 0 or 1
//	string      4-byte length + UTF-8 bytes
//	bytes       4-byte length + raw bytes
//	optional    1-byte presence flag + value when present
//	sequence    4-byte count + elements
//	map         4-byte count + key/value pairs
//	duration    u64 seconds + u32 nanoseconds
//	handle      u64
//
// A Converter pairs the write and read rule for one Go type:
//
//	buf, err := codec.Lower(codec.Sequence(codec.String), []string{"a", "b"})
//	v, err := codec.Lift(codec.Sequence(codec.String), buf)
//
// Reads never truncate: a buffer that ends early fails with an out_of_bounds
// decode error, and Lift rejects bytes left over after the value.
package codec
