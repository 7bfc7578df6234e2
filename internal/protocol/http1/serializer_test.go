package http1

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/indigo-web/tinyweb/config"
	"github.com/indigo-web/tinyweb/http/status"
	"github.com/indigo-web/tinyweb/internal/buffer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, name, content string, mode os.FileMode) {
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	require.NoError(t, os.Chmod(path, mode))
}

func getRoot(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, root, "index.html", "<h1>index</h1>", 0o644)
	writeFile(t, root, "404.html", "<h1>not found</h1>", 0o644)
	writeFile(t, root, "403.html", "<h1>forbidden</h1>", 0o644)
	writeFile(t, root, "style.css", "body{}", 0o644)
	writeFile(t, root, "secret.html", "top secret", 0o600)
	writeFile(t, root, "docs/index.html", "<h1>docs</h1>", 0o644)
	writeFile(t, root, "empty.txt", "", 0o644)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "noindex"), 0o755))

	return root
}

// respond builds a response and returns its headers and the mapped body.
func respond(s *Serializer, root, path string, keepAlive bool, code status.Code) (string, string) {
	buff := buffer.New(128)
	s.Init(root, path, keepAlive, code)
	s.MakeResponse(buff)

	return buff.RetrieveAllToString(), string(s.File())
}

func TestSerializer(t *testing.T) {
	cfg := config.Default()
	root := getRoot(t)
	s := NewSerializer(cfg, zerolog.Nop())
	defer s.Unmap()

	t.Run("file", func(t *testing.T) {
		headers, body := respond(s, root, "/index.html", false, status.Unset)
		require.Equal(t, "HTTP/1.1 200 OK\r\n"+
			"Connection: close\r\n"+
			"Content-type: text/html\r\n"+
			"Content-length: 14\r\n\r\n", headers)
		require.Equal(t, "<h1>index</h1>", body)
		require.Equal(t, status.OK, s.Code())
		require.Equal(t, 14, s.FileLength())
	})

	t.Run("keep-alive", func(t *testing.T) {
		headers, _ := respond(s, root, "/style.css", true, status.OK)
		require.Equal(t, "HTTP/1.1 200 OK\r\n"+
			"Connection: keep-alive\r\n"+
			"Keep-Alive: max=6, timeout=120\r\n"+
			"Content-type: text/css\r\n"+
			"Content-length: 6\r\n\r\n", headers)
		require.True(t, s.KeepAlive())
	})

	t.Run("not found", func(t *testing.T) {
		headers, body := respond(s, root, "/missing.html", false, status.Unset)
		require.True(t, strings.HasPrefix(headers, "HTTP/1.1 404 Not Found\r\n"), headers)
		require.Contains(t, headers, "Content-type: text/html\r\n")
		require.Equal(t, "<h1>not found</h1>", body)
		require.Equal(t, "/404.html", s.Path())
	})

	t.Run("forbidden file", func(t *testing.T) {
		headers, body := respond(s, root, "/secret.html", false, status.Unset)
		require.True(t, strings.HasPrefix(headers, "HTTP/1.1 403 Forbidden\r\n"), headers)
		require.Equal(t, "<h1>forbidden</h1>", body)
	})

	t.Run("directory without index", func(t *testing.T) {
		_, body := respond(s, root, "/noindex", false, status.Unset)
		require.Equal(t, status.Forbidden, s.Code())
		require.Equal(t, "<h1>forbidden</h1>", body)
	})

	t.Run("directory index", func(t *testing.T) {
		_, body := respond(s, root, "/docs", false, status.Unset)
		require.Equal(t, status.OK, s.Code())
		require.Equal(t, "/docs/index.html", s.Path())
		require.Equal(t, "<h1>docs</h1>", body)
	})

	t.Run("empty file", func(t *testing.T) {
		headers, body := respond(s, root, "/empty.txt", false, status.Unset)
		require.Equal(t, "HTTP/1.1 200 OK\r\n"+
			"Connection: close\r\n"+
			"Content-type: text/plain\r\n"+
			"Content-length: 0\r\n\r\n", headers)
		require.Empty(t, body)
	})

	t.Run("missing error page", func(t *testing.T) {
		headers, body := respond(s, root, "/index.html", false, status.BadRequest)
		require.Empty(t, body)
		require.Zero(t, s.FileLength())

		content := "<html><title>Error</title><body bgcolor=\"ffffff\">" +
			"400 : Bad Request\n<p>File NotFound!</p><hr><em>tinyweb</em></body></html>"
		require.True(t, strings.HasPrefix(headers, "HTTP/1.1 400 Bad Request\r\n"), headers)
		require.True(t, strings.HasSuffix(headers, "\r\n\r\n"+content), headers)
		require.Contains(t, headers, "Content-type: text/html\r\n")
	})

	t.Run("code without error page", func(t *testing.T) {
		headers, body := respond(s, root, "/index.html", false, status.NotImplemented)
		require.Empty(t, body)
		require.True(t, strings.HasPrefix(headers, "HTTP/1.1 501 Not Implemented\r\n"), headers)
		require.Contains(t, headers, "501 : Not Implemented\n")
	})

	t.Run("path traversal", func(t *testing.T) {
		outside := filepath.Join(filepath.Dir(root), "outside.html")
		require.NoError(t, os.WriteFile(outside, []byte("outside"), 0o644))
		defer os.Remove(outside)

		_, body := respond(s, root, "/../outside.html", false, status.Unset)
		require.Equal(t, status.NotFound, s.Code())
		require.NotEqual(t, "outside", body)
	})

	t.Run("unmap", func(t *testing.T) {
		respond(s, root, "/index.html", false, status.Unset)
		require.NotEmpty(t, s.File())
		s.Unmap()
		require.Empty(t, s.File())
		s.Unmap()
	})
}

func TestErrorContent(t *testing.T) {
	s := NewSerializer(config.Default(), zerolog.Nop())
	s.Init("", "", false, status.InternalServerError)
	buff := buffer.New(16)
	s.ErrorContent(buff, "oops")

	content := "<html><title>Error</title><body bgcolor=\"ffffff\">" +
		"500 : Internal Server Error\n<p>oops</p><hr><em>tinyweb</em></body></html>"
	require.Equal(t, "Content-length: 122\r\n\r\n"+content, string(buff.Peek()))
	require.Len(t, content, 122)
}
