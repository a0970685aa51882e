package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/afm-api/internal/export"
	"github.com/sells-group/afm-api/internal/naming"
	"github.com/sells-group/afm-api/internal/resolve"
	"github.com/sells-group/afm-api/internal/store"
)

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"tools":  h.svc.Tools(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) tool(r *http.Request) string {
	return h.svc.ToolName(r.URL.Query().Get("tool"))
}

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	tool := h.tool(r)
	entries, err := h.svc.Files(tool)
	if err != nil {
		writeError(w, r, tool, err)
		return
	}
	writeOK(w, envelope{
		Data:    entries,
		Total:   intp(len(entries)),
		Tool:    tool,
		Message: fmt.Sprintf("Loaded %d measurements from %s", len(entries), tool),
	})
}

func (h *Handler) searchFiles(w http.ResponseWriter, r *http.Request) {
	tool := h.tool(r)
	q := r.URL.Query().Get("q")
	entries, err := h.svc.Search(tool, q)
	if err != nil {
		writeError(w, r, tool, err)
		return
	}
	writeOK(w, envelope{
		Data:    entries,
		Total:   intp(len(entries)),
		Tool:    tool,
		Message: fmt.Sprintf("Found %d measurements matching %q in %s", len(entries), q, tool),
	})
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	tool := h.tool(r)
	filename := pathParam(r, "filename")
	d, err := h.svc.Detail(tool, filename)
	if err != nil {
		writeError(w, r, tool, err)
		return
	}
	writeOK(w, envelope{
		Data:    d,
		Tool:    tool,
		Message: fmt.Sprintf("Loaded measurement data for %s from %s", filename, tool),
	})
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	tool := h.tool(r)
	filename := pathParam(r, "filename")
	av, err := h.svc.Availability(tool, filename)
	if err != nil {
		writeError(w, r, tool, err)
		return
	}
	writeOK(w, envelope{Data: av, Tool: tool})
}

func (h *Handler) exportFile(w http.ResponseWriter, r *http.Request) {
	tool := h.tool(r)
	filename := pathParam(r, "filename")
	q := r.URL.Query()

	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, r, tool, err)
		return
	}
	d, err := h.svc.Detail(tool, filename)
	if err != nil {
		writeError(w, r, tool, err)
		return
	}

	var buf bytes.Buffer
	switch format {
	case export.FormatCSV:
		recs, serr := export.Section(d.Detail, q.Get("section"))
		if serr != nil {
			writeError(w, r, tool, serr)
			return
		}
		err = export.WriteCSV(&buf, recs)
	default:
		err = export.WriteXLSX(&buf, d.Detail)
	}
	if err != nil {
		writeError(w, r, tool, err)
		return
	}

	name := strings.Trim(naming.StripExt(filename), "#") + "." + string(format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// siteSelector reads the point hints of a request. The point path segment
// stands in for a missing site_id; an invalid point_no is ignored.
func siteSelector(r *http.Request, point string) resolve.SiteSelector {
	q := r.URL.Query()
	sel := resolve.SiteSelector{
		SiteID: strings.TrimSpace(q.Get("site_id")),
		SiteX:  strings.TrimSpace(q.Get("site_x")),
		SiteY:  strings.TrimSpace(q.Get("site_y")),
	}
	if sel.SiteID == "" {
		sel.SiteID = point
	}
	if v := strings.TrimSpace(q.Get("point_no")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			sel.PointNo = &n
		}
	}
	return sel
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	tool := h.tool(r)
	filename := pathParam(r, "filename")
	point := pathParam(r, "point")

	p, err := h.svc.Profile(tool, filename, siteSelector(r, point))
	if err != nil {
		writeError(w, r, tool, err)
		return
	}
	writeOK(w, envelope{
		Data:    p.Points,
		Count:   intp(len(p.Points)),
		Tool:    tool,
		Message: fmt.Sprintf("Loaded profile data for %s, point %s from %s", filename, point, tool),
	})
}

func (h *Handler) image(w http.ResponseWriter, r *http.Request) {
	tool := h.tool(r)
	filename := pathParam(r, "filename")
	point := pathParam(r, "point")

	m, err := h.svc.Image(tool, filename, siteSelector(r, point))
	if err != nil {
		writeError(w, r, tool, err)
		return
	}

	link := "/api/afm-files/image-file/" + url.PathEscape(filename) + "/" + url.PathEscape(point)
	query := url.Values{"tool": {tool}}
	for _, k := range []string{"site_id", "site_x", "site_y", "point_no"} {
		if v := r.URL.Query().Get(k); v != "" {
			query.Set(k, v)
		}
	}
	writeOK(w, envelope{
		Data: map[string]any{
			"filename":      m.Name,
			"relative_path": m.RelativePath(),
			"url":           link + "?" + query.Encode(),
			"point_source":  m.PointSource,
		},
		Tool:    tool,
		Message: fmt.Sprintf("Found image for %s, point %s from %s", filename, point, tool),
	})
}

func (h *Handler) imageFile(w http.ResponseWriter, r *http.Request) {
	tool := h.tool(r)
	m, err := h.svc.Image(tool, pathParam(r, "filename"), siteSelector(r, pathParam(r, "point")))
	if err != nil {
		writeError(w, r, tool, err)
		return
	}
	h.serveFile(w, r, tool, m.Path)
}

func (h *Handler) typedImageFile(w http.ResponseWriter, r *http.Request) {
	tool := h.tool(r)
	path, err := h.svc.TypedImage(tool, pathParam(r, "type"), pathParam(r, "name"))
	if err != nil {
		writeError(w, r, tool, err)
		return
	}
	h.serveFile(w, r, tool, path)
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, tool, path string) {
	f, info, err := h.svc.OpenFile(path)
	if err != nil {
		writeError(w, r, tool, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", store.ContentType(path))
	w.Header().Set("Cache-Control", "private, max-age=300")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *Handler) images(w http.ResponseWriter, r *http.Request) {
	tool := h.tool(r)
	imageType := pathParam(r, "type")
	list, err := h.svc.Images(tool, imageType, r.URL.Query().Get("filename"))
	if err != nil {
		writeError(w, r, tool, err)
		return
	}
	writeOK(w, envelope{
		Data:    list,
		Tool:    tool,
		Message: fmt.Sprintf("Found %d images in %s directory", list.Count, imageType),
	})
}

func (h *Handler) cacheInfo(w http.ResponseWriter, r *http.Request) {
	tool := h.tool(r)
	art, err := h.svc.Artifact(tool)
	if err != nil {
		writeError(w, r, tool, err)
		return
	}
	writeOK(w, envelope{Data: art.Metadata, Total: intp(len(art.Measurements)), Tool: tool})
}

func (h *Handler) rebuild(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tool := h.tool(r)
	all, _ := strconv.ParseBool(q.Get("all"))
	if all {
		tool = ""
	}

	if !h.limiter.Allow() {
		writeError(w, r, tool, eris.Wrap(errThrottled, "rebuild requested too soon, try again later"))
		return
	}

	if all {
		results, err := h.svc.RebuildAll(r.Context())
		if err != nil {
			writeError(w, r, tool, err)
			return
		}
		writeOK(w, envelope{Data: results, Message: fmt.Sprintf("Rebuilt %d tools", len(results))})
		return
	}

	res, err := h.svc.Rebuild(tool)
	if err != nil {
		writeError(w, r, tool, err)
		return
	}
	h.log.Info("cache rebuilt on request",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("tool", tool),
		zap.Int("survivors", res.Survivors),
		zap.Bool("written", res.Written),
	)
	writeOK(w, envelope{
		Data:    res,
		Tool:    tool,
		Message: fmt.Sprintf("Cache for %s holds %d measurements", tool, res.Survivors),
	})
}
