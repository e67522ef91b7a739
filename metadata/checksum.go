package metadata

import (
	"github.com/cespare/xxhash/v2"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/codec"
)

// Checksum folds an xxhash of the encoded interface to 16 bits. Two sides
// that agree on the checksum agree on method order and signatures.
func Checksum(iface *Interface) uint16 {
	return fold(xxhash.Sum64(Encode(iface)))
}

// MethodChecksum covers one method together with its owning interface.
func MethodChecksum(iface *Interface, idx callbackrt.MethodIndex) (uint16, bool) {
	m, ok := iface.Method(idx)
	if !ok {
		return 0, false
	}
	w := codec.NewWriter(64)
	w.WriteString(iface.modulePath)
	w.WriteString(iface.name)
	w.WriteU32(uint32(idx))
	w.WriteRaw(encodeMethod(m))
	return fold(xxhash.Sum64(w.Bytes())), true
}

func fold(h uint64) uint16 {
	return uint16(h ^ h>>16 ^ h>>32 ^ h>>48)
}
