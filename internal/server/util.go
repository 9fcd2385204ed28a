package server

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

const errUnsafeDir = "invalid dir: must be absolute or stay inside the project root"

// sanitizeBase turns " api/ " into "/api"; "" and "/" mount at the root.
func sanitizeBase(bp string) string {
	bp = strings.Trim(strings.TrimSpace(bp), "/")
	if bp == "" {
		return ""
	}
	return "/" + bp
}

// isSafeDir accepts absolute paths and relative paths that stay inside the
// project root once cleaned.
func isSafeDir(p string) bool {
	if strings.TrimSpace(p) == "" || strings.ContainsRune(p, 0) {
		return false
	}
	if filepath.IsAbs(p) {
		return true
	}
	clean := filepath.Clean(p)
	return clean != ".." && !strings.HasPrefix(clean, ".."+string(filepath.Separator))
}

// bindDir decodes a dirReq body, answering 400 itself on failure.
func bindDir(c *gin.Context) (dirReq, bool) {
	var req dirReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return req, false
	}
	if !isSafeDir(req.Dir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: errUnsafeDir})
		return req, false
	}
	return req, true
}

// queryDir reads ?dir=, answering 400 itself when missing or unsafe.
func queryDir(c *gin.Context) (string, bool) {
	dir, ok := c.GetQuery("dir")
	switch {
	case !ok || dir == "":
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "dir query param required"})
		return "", false
	case !isSafeDir(dir):
		writeJSON(c, http.StatusBadRequest, errorResp{Error: errUnsafeDir})
		return "", false
	}
	return dir, true
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
