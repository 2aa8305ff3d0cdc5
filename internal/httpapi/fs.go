package httpapi

import (
	"archive/zip"
	"encoding/base64"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
	"github.com/lodestone-core/lodestone/infrastructure/httputil"
	"github.com/lodestone-core/lodestone/internal/app"
	"github.com/lodestone-core/lodestone/internal/auth"
)

// globalWriteExtensions are extensions §6 gates behind the global
// file-write capability even for an otherwise-permitted instance write.
var globalWriteExtensions = map[string]struct{}{
	"jar": {}, "lua": {}, "sh": {}, "exe": {}, "bat": {}, "cmd": {},
	"msi": {}, "lodestone_config": {}, "out": {}, "inf": {},
}

func decodeB64Path(encoded string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		if raw, err = base64.RawURLEncoding.DecodeString(encoded); err != nil {
			return "", coreerrors.BadRequestError("path", "invalid base64url path")
		}
	}
	return string(raw), nil
}

// resolveConfined joins root with the decoded relative path and rejects any
// result that escapes root, per §6's "confined to the instance root".
func resolveConfined(root, encodedPath string) (string, error) {
	rel, err := decodeB64Path(encodedPath)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, rel)
	if full != root && !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		return "", coreerrors.PermissionDeniedError("path escapes instance root")
	}
	return full, nil
}

func requiresGlobalWrite(path string) bool {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if _, ok := globalWriteExtensions[strings.ToLower(ext)]; ok {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "mods" {
			return true
		}
	}
	return false
}

func instanceRootDir(a *app.App, instName string) string {
	return filepath.Join(a.Dir, "instances", instName)
}

type fsEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// fsLs handles GET /instance/:uuid/fs/ls/:path.
func fsLs(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		uuid := vars["uuid"]
		if _, ok := requireAction(w, r, auth.ActionReadResource, uuid); !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		root := instanceRootDir(a, inst.Name())
		target, err := resolveConfined(root, vars["path"])
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		entries, err := os.ReadDir(target)
		if err != nil {
			writeCoreError(w, r, coreerrors.NotFoundError("path", vars["path"]))
			return
		}
		out := make([]fsEntry, 0, len(entries))
		for _, e := range entries {
			info, statErr := e.Info()
			size := int64(0)
			if statErr == nil {
				size = info.Size()
			}
			out = append(out, fsEntry{Name: e.Name(), IsDir: e.IsDir(), Size: size})
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

// fsRead handles GET /instance/:uuid/fs/read/:path.
func fsRead(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		uuid := vars["uuid"]
		if _, ok := requireAction(w, r, auth.ActionReadFile, uuid); !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		root := instanceRootDir(a, inst.Name())
		target, err := resolveConfined(root, vars["path"])
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		data, err := os.ReadFile(target)
		if err != nil {
			writeCoreError(w, r, coreerrors.NotFoundError("path", vars["path"]))
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// fsWrite handles PUT /instance/:uuid/fs/write/:path.
func fsWrite(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		uuid := vars["uuid"]
		u, ok := requireAction(w, r, auth.ActionWriteFile, uuid)
		if !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		root := instanceRootDir(a, inst.Name())
		target, err := resolveConfined(root, vars["path"])
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		if requiresGlobalWrite(target) && !auth.CanPerformAction(u, auth.ActionWriteGlobalFile, "") {
			writeCoreError(w, r, coreerrors.PermissionDeniedError(string(auth.ActionWriteGlobalFile)))
			return
		}
		body, err := httputil.ReadAllStrict(r.Body, 64<<20)
		if err != nil {
			writeCoreError(w, r, coreerrors.BadRequestError("body", "too large or unreadable"))
			return
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			writeCoreError(w, r, coreerrors.InternalError("create parent directory", err))
			return
		}
		if err := os.WriteFile(target, body, 0o644); err != nil {
			writeCoreError(w, r, coreerrors.InternalError("write file", err))
			return
		}
		httputil.RespondNoContent(w)
	}
}

// fsMkdir handles PUT /instance/:uuid/fs/mkdir/:path.
func fsMkdir(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		uuid := vars["uuid"]
		if _, ok := requireAction(w, r, auth.ActionWriteFile, uuid); !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		root := instanceRootDir(a, inst.Name())
		target, err := resolveConfined(root, vars["path"])
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			writeCoreError(w, r, coreerrors.InternalError("mkdir", err))
			return
		}
		httputil.RespondNoContent(w)
	}
}

type moveRequest struct {
	Dest string `json:"dest"`
}

// fsMove handles PUT /instance/:uuid/fs/move/:path.
func fsMove(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		uuid := vars["uuid"]
		if _, ok := requireAction(w, r, auth.ActionWriteFile, uuid); !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		root := instanceRootDir(a, inst.Name())
		src, err := resolveConfined(root, vars["path"])
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		var req moveRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		dest, err := resolveConfined(root, req.Dest)
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		if err := os.Rename(src, dest); err != nil {
			writeCoreError(w, r, coreerrors.InternalError("move", err))
			return
		}
		httputil.RespondNoContent(w)
	}
}

// fsRemove handles DELETE /instance/:uuid/fs/rm/:path (file) and
// /instance/:uuid/fs/rmdir/:path (directory, recursive).
func fsRemove(a *app.App, recursive bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		uuid := vars["uuid"]
		if _, ok := requireAction(w, r, auth.ActionWriteFile, uuid); !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		root := instanceRootDir(a, inst.Name())
		target, err := resolveConfined(root, vars["path"])
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		if recursive {
			err = os.RemoveAll(target)
		} else {
			err = os.Remove(target)
		}
		if err != nil {
			writeCoreError(w, r, coreerrors.InternalError("remove", err))
			return
		}
		httputil.RespondNoContent(w)
	}
}

// fsNew handles PUT /instance/:uuid/fs/new/:path, creating an empty file.
func fsNew(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		uuid := vars["uuid"]
		if _, ok := requireAction(w, r, auth.ActionWriteFile, uuid); !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		root := instanceRootDir(a, inst.Name())
		target, err := resolveConfined(root, vars["path"])
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			writeCoreError(w, r, coreerrors.InternalError("create parent directory", err))
			return
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			writeCoreError(w, r, coreerrors.InternalError("create file", err))
			return
		}
		f.Close()
		httputil.RespondNoContent(w)
	}
}

// fsUpload handles PUT /instance/:uuid/fs/upload/:path, accepting the raw
// body and writing it, honoring the same global-write gate as fsWrite.
func fsUpload(a *app.App) http.HandlerFunc {
	return fsWrite(a)
}

// fsDownload handles GET /file/:key, the single unauthenticated download
// route named in §6. The key is the base64url-encoded absolute path issued
// by a prior authenticated request (not implemented: key minting is left to
// the caller of this handler to wire once a key registry exists).
func fsDownload(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := mux.Vars(r)["key"]
		path, err := decodeB64Path(key)
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		if !strings.HasPrefix(path, a.Dir+string(os.PathSeparator)) {
			writeCoreError(w, r, coreerrors.PermissionDeniedError("path escapes lodestone root"))
			return
		}
		f, err := os.Open(path)
		if err != nil {
			writeCoreError(w, r, coreerrors.NotFoundError("file", key))
			return
		}
		defer f.Close()
		w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(path)+"\"")
		_, _ = io.Copy(w, f)
	}
}

// fsUnzip handles PUT /instance/:uuid/fs/unzip/:path, extracting a zip
// archive into its containing directory.
func fsUnzip(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		uuid := vars["uuid"]
		u, ok := requireAction(w, r, auth.ActionWriteFile, uuid)
		if !ok {
			return
		}
		inst, ok := lookupInstance(a, w, r, uuid)
		if !ok {
			return
		}
		root := instanceRootDir(a, inst.Name())
		archivePath, err := resolveConfined(root, vars["path"])
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		reader, err := zip.OpenReader(archivePath)
		if err != nil {
			writeCoreError(w, r, coreerrors.BadRequestError("path", "not a valid zip archive"))
			return
		}
		defer reader.Close()

		destDir := filepath.Dir(archivePath)
		for _, f := range reader.File {
			entryPath := filepath.Join(destDir, f.Name)
			if !strings.HasPrefix(entryPath, destDir+string(os.PathSeparator)) {
				writeCoreError(w, r, coreerrors.BadRequestError("path", "zip entry escapes destination"))
				return
			}
			if requiresGlobalWrite(entryPath) && !auth.CanPerformAction(u, auth.ActionWriteGlobalFile, "") {
				writeCoreError(w, r, coreerrors.PermissionDeniedError(string(auth.ActionWriteGlobalFile)))
				return
			}
			if f.FileInfo().IsDir() {
				_ = os.MkdirAll(entryPath, 0o755)
				continue
			}
			if err := extractZipEntry(f, entryPath); err != nil {
				writeCoreError(w, r, coreerrors.InternalError("extract zip entry", err))
				return
			}
		}
		httputil.RespondNoContent(w)
	}
}

func extractZipEntry(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, rc)
	return err
}

// globalFsLs handles GET /fs/ls/:path, scoped to the lodestone root and
// requiring the global file-read capability.
func globalFsLs(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAction(w, r, auth.ActionReadGlobalFile, ""); !ok {
			return
		}
		target, err := resolveConfined(a.Dir, mux.Vars(r)["path"])
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		entries, err := os.ReadDir(target)
		if err != nil {
			writeCoreError(w, r, coreerrors.NotFoundError("path", mux.Vars(r)["path"]))
			return
		}
		out := make([]fsEntry, 0, len(entries))
		for _, e := range entries {
			info, statErr := e.Info()
			size := int64(0)
			if statErr == nil {
				size = info.Size()
			}
			out = append(out, fsEntry{Name: e.Name(), IsDir: e.IsDir(), Size: size})
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}
