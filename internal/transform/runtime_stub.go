//go:build !govips || !cgo

package transform

func Startup() error {
	return nil
}

func Shutdown() {}

func newRenderer() renderer {
	return stdlibRenderer{}
}
