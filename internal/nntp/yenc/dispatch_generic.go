//go:build !amd64 && !arm64

package yenc

func init() {
	decodeLineFunc = decodeLineScalar
}
