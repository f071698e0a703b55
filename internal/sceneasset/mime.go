package sceneasset

import (
	"path"
	"strings"
)

const (
	MIMEGLTFJSON    = "model/gltf+json"
	MIMEGLTFBinary  = "model/gltf-binary"
	MIMEPNG         = "image/png"
	MIMEJPEG        = "image/jpeg"
	MIMEWebP        = "image/webp"
	MIMEOctetStream = "application/octet-stream"
)

var mimeByExt = map[string]string{
	".gltf": MIMEGLTFJSON,
	".glb":  MIMEGLTFBinary,
	".png":  MIMEPNG,
	".jpg":  MIMEJPEG,
	".jpeg": MIMEJPEG,
	".webp": MIMEWebP,
	".bin":  MIMEOctetStream,
}

// MIMETypeFor infers a MIME type from the file extension only.
func MIMETypeFor(name string) string {
	if t, ok := mimeByExt[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return MIMEOctetStream
}

func isImageMIME(t string) bool {
	return t == MIMEPNG || t == MIMEJPEG || t == MIMEWebP
}
