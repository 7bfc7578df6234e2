package mime

import "path"

// Default is used for files with unknown or no extension.
const Default = Plain

var Extension = map[string]MIME{
	".html":  HTML,
	".htm":   HTML,
	".xml":   XML,
	".xhtml": XHTML,
	".txt":   Plain,
	".rtf":   RTF,
	".pdf":   PDF,
	".word":  Word,
	".png":   PNG,
	".gif":   GIF,
	".jpg":   JPEG,
	".jpeg":  JPEG,
	".svg":   SVG,
	".ico":   ICO,
	".webp":  WEBP,
	".au":    AU,
	".mpeg":  MPEG,
	".mpg":   MPEG,
	".avi":   AVI,
	".mp4":   MP4,
	".gz":    GZIP,
	".tar":   TAR,
	".css":   CSS,
	".js":    JS,
	".json":  JSON,
	".wasm":  WASM,
}

// ByPath resolves the MIME by the file extension.
func ByPath(filename string) MIME {
	if m, found := Extension[path.Ext(filename)]; found {
		return m
	}

	return Default
}
