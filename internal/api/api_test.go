package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/afm-api/internal/config"
	"github.com/sells-group/afm-api/internal/service"
)

const (
	testFile = "#250609#FSOXCMP_DISHING_9PT#T7HQR42TA_250709#21_1#.csv"
	testBase = "#250609#FSOXCMP_DISHING_9PT#T7HQR42TA_250709#21_1#"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	h, _ := newTestRouterFs(t)
	return h
}

func newTestRouterFs(t *testing.T) (http.Handler, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	write := func(path, content string) {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	write("/db/MAP608/data_dir_list.txt", testFile+"\n")
	write("/db/MAP608/data_dir_pickle/"+testBase+".pkl", `{
		"info": {"operator": "kim"},
		"data_status": {"Site": ["1_UL"], "ITEM": ["MEAN"], "Left_H (nm)": [1.5]},
		"data_detail": {"1_UL": {"Point No": [1, 2], "Left_H (nm)": [3.0, 4.0]}}
	}`)
	write("/db/MAP608/profile_dir/"+testBase+"_1_UL_0001_Height.pkl", `[{"x": 1, "y": 2, "z": 3}]`)
	write("/db/MAP608/tiff_dir/"+testBase+"_1_UL_0001_Height.webp", "RIFFWEBP")
	write("/db/MAP608/align_dir/align.png", "PNG")

	cfg := &config.Config{
		Data:    config.DataConfig{Root: "/db", DefaultTool: "MAP608", Tools: []string{"MAP608", "MAPC01"}},
		Server:  config.ServerConfig{CORSOrigins: []string{"http://localhost:3000"}, RebuildMinIntervalSecs: 60},
		Payload: config.PayloadConfig{CacheEntries: 8},
	}
	svc, err := service.New(cfg, fs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return NewRouter(svc, cfg.Server), fs
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func escaped() string { return url.PathEscape(testFile) }

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDEchoed(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestListAndSearch(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/afm-files")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, "MAP608", body["tool"])
	first := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "T7HQR42TA", first["lot_id"])
	assert.Equal(t, "2025-06-09", first["formatted_date"])
	assert.Equal(t, true, first["pickle_data_exists"])

	rec = do(t, h, http.MethodGet, "/api/afm-files/search?q=t7hq")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total"])

	rec = do(t, h, http.MethodGet, "/api/afm-files/search?q=none")
	assert.Equal(t, float64(0), decode(t, rec)["total"])
}

func TestInvalidTool(t *testing.T) {
	h := newTestRouter(t)
	for _, tool := range []string{"..%2Fetc", "OTHER"} {
		rec := do(t, h, http.MethodGet, "/api/afm-files?tool="+tool)
		require.Equal(t, http.StatusBadRequest, rec.Code, tool)
		body := decode(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "bad_request", body["error"])
	}
}

func TestDetail(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/afm-files/detail/"+escaped()+"?tool=MAP608")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, testFile, data["filename"])
	assert.Equal(t, testBase+".pkl", data["pickle_filename"])
	assert.Equal(t, "kim", data["information"].(map[string]any)["operator"])
	assert.Len(t, data["summary"], 1)
	assert.Len(t, data["data"], 2)
	assert.Equal(t, []any{"1_UL"}, data["available_points"])

	// Record columns keep payload order.
	assert.True(t, strings.Contains(rec.Body.String(), `{"measurement_point":"1_UL","Point No":1,"Left_H (nm)":3}`))
}

func TestDetail_NotFound(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodGet, "/api/afm-files/detail/"+url.PathEscape("#1#2#3#4#.csv"))
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "not_found", body["error"])
	assert.Contains(t, body["message"], "#1#2#3#4#.csv")
}

func TestProfile(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/afm-files/profile/"+escaped()+"/1_UL?point_no=1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, []any{map[string]any{"x": float64(1), "y": float64(2), "z": float64(3)}}, body["data"])

	rec = do(t, h, http.MethodGet, "/api/afm-files/profile/"+escaped()+"/2_UR")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// A bad point_no is ignored and the site id supplies the point.
	rec = do(t, h, http.MethodGet, "/api/afm-files/profile/"+escaped()+"/ignored?site_id=1_UL&point_no=abc")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestImage(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/afm-files/image/"+escaped()+"/1_UL")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "tiff_dir/"+testBase+"_1_UL_0001_Height.webp", data["relative_path"])
	link := data["url"].(string)
	assert.True(t, strings.HasPrefix(link, "/api/afm-files/image-file/%23250609"), link)

	rec = do(t, h, http.MethodGet, link)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
	assert.Equal(t, "RIFFWEBP", rec.Body.String())
}

func TestTypedImages(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/afm-files/images/align")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["count"])

	rec = do(t, h, http.MethodGet, "/api/afm-files/images/tip")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["data"].(map[string]any)["count"])

	rec = do(t, h, http.MethodGet, "/api/afm-files/images/bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/afm-files/image-file/"+escaped()+"/1_UL/align/align.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = do(t, h, http.MethodGet, "/api/afm-files/image-file/"+escaped()+"/1_UL/align/missing.png")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailability(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodGet, "/api/afm-files/availability/"+escaped())
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, true, data["pickle_data_exists"])
	points := data["points"].([]any)
	require.Len(t, points, 1)
	assert.Equal(t, true, points[0].(map[string]any)["has_profile"])
	assert.Equal(t, true, points[0].(map[string]any)["has_image"])
}

func TestExport(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/afm-files/export/"+escaped()+"?format=csv&section=summary")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
	assert.Equal(t, "Site,ITEM,Left_H (nm)\n1_UL,MEAN,1.5\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/afm-files/export/"+escaped())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"), "xlsx is a zip archive")

	rec = do(t, h, http.MethodGet, "/api/afm-files/export/"+escaped()+"?format=pdf")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRebuild(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/afm-files/cache/rebuild?tool=MAP608")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["survivors"])

	rec = do(t, h, http.MethodPost, "/api/afm-files/cache/rebuild?tool=MAP608")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode(t, rec)["error"])

	rec = do(t, h, http.MethodGet, "/api/afm-files/cache")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total"])
}

func TestRebuild_NoSurvivors(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodPost, "/api/afm-files/cache/rebuild?tool=MAPC01")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "rebuild_failed", decode(t, rec)["error"])
}

func TestCacheInfo_Missing(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodGet, "/api/afm-files/cache?tool=MAPC01")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodGet, "/api/health")

	rec := do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "afm_http_request_duration_seconds")
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/afm-files", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestFilenameOutsideDataRoot(t *testing.T) {
	h, fs := newTestRouterFs(t)
	require.NoError(t, afero.WriteFile(fs, "/private/secret.pkl", []byte(`{"info": {"password": "hunter2"}}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/private/#_0001_Height.webp", []byte("SECRETIMG"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/private/#_0001_Height.pkl", []byte(`[{"x": 1, "y": 2, "z": 3}]`), 0o644))

	targets := []string{
		"/api/afm-files/detail/..%2F..%2F..%2Fprivate%2Fsecret.csv",
		"/api/afm-files/availability/..%2F..%2F..%2Fprivate%2Fsecret.csv",
		"/api/afm-files/export/..%2F..%2F..%2Fprivate%2Fsecret.csv?format=csv",
		"/api/afm-files/image/..%2F..%2F..%2Fprivate%2F/1",
		"/api/afm-files/image-file/..%2F..%2F..%2Fprivate%2F/1",
		"/api/afm-files/profile/..%2F..%2F..%2Fprivate%2F/1",
		"/api/afm-files/image-file/" + escaped() + "/1?site_id=..%2F..%2F..%2Fprivate",
		"/api/afm-files/image-file/" + escaped() + "/1/align/..%2F..%2Fdata_dir_list.txt",
	}
	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, target)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "hunter2")
			assert.NotContains(t, rec.Body.String(), "SECRETIMG")
			assert.Equal(t, "bad_request", decode(t, rec)["error"])
		})
	}
}
