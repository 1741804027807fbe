package util

import (
	"mime"
	"net/http"
	"strings"
)

// SniffMimeHTTP определяет MIME по сигнатуре файла.
func SniffMimeHTTP(b []byte) string {
	// JPEG: FF D8
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8 {
		return "image/jpeg"
	}
	// PNG
	if len(b) >= 8 &&
		b[0] == 0x89 && b[1] == 0x50 && b[2] == 0x4E && b[3] == 0x47 &&
		b[4] == 0x0D && b[5] == 0x0A && b[6] == 0x1A && b[7] == 0x0A {
		return "image/png"
	}
	// WEBP: RIFF....WEBP
	if len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WEBP" {
		return "image/webp"
	}
	if len(b) >= 6 && (string(b[0:6]) == "GIF87a" || string(b[0:6]) == "GIF89a") {
		return "image/gif"
	}
	return "application/octet-stream"
}

func MakeDataURL(mime, b64 string) string {
	return "data:" + mime + ";base64," + b64
}

// PickMIME берёт явный MIME (если он осмысленный), иначе детектит по байтам.
func PickMIME(explicit string, data []byte) string {
	if exp := normalizeMIME(explicit); exp != "" && exp != "application/octet-stream" {
		return exp
	}
	if s := SniffMimeHTTP(data); s != "application/octet-stream" {
		return s
	}
	if len(data) > 0 {
		return normalizeMIME(http.DetectContentType(data))
	}
	return "application/octet-stream"
}

// IsImageMIME reports whether m is an image/* media type.
func IsImageMIME(m string) bool {
	return strings.HasPrefix(normalizeMIME(m), "image/")
}

func normalizeMIME(m string) string {
	m = strings.TrimSpace(m)
	if m == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(m); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(m)
}
