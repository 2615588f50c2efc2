package artifact

import "github.com/fxamacker/cbor/v2"

var encMode = func() cbor.EncMode {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

var decMode = cbor.DecOptions{}.DecModeOrPanic()
