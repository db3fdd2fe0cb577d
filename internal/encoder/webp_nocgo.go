//go:build !cgo

package encoder

// webpEncoder reports no WebP support; libwebp is linked through cgo.
func webpEncoder() RasterEncoder { return nil }
