package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"lorairo/internal/app"
	"lorairo/internal/database"
	"lorairo/internal/startup"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	c    *app.Container
	h    *Handlers
	root string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping handler integration test in short mode")
	}

	dir := t.TempDir()
	c, err := app.New(context.Background(), &startup.Config{
		ProjectDir:          filepath.Join(dir, "main_dataset"),
		TagDBPath:           filepath.Join(dir, "tags.db"),
		PageSize:            2,
		PageCacheMaxPages:   2,
		ThumbnailSize:       32,
		ProcessedResolution: 64,
		ResultCacheTTL:      time.Minute,
		StatsInterval:       time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	root, err := c.Project.Root()
	require.NoError(t, err)
	return &testEnv{c: c, h: New(c), root: root}
}

// addImage writes a w x h PNG into the project and registers it.
func (e *testEnv) addImage(t *testing.T, phash string, w, h int) int64 {
	t.Helper()
	rel := filepath.ToSlash(filepath.Join("image_dataset", "original", "2024", "05", "17", phash+".png"))
	abs := filepath.Join(e.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: 80, B: uint8(y * 255 / h), A: 255})
		}
	}
	f, err := os.Create(abs)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	id, created, err := e.c.DB.RegisterImage(context.Background(), database.ImageInfo{
		PHash:             phash,
		OriginalImagePath: "/import/" + phash + ".png",
		StoredImagePath:   rel,
		Width:             w,
		Height:            h,
		Format:            "png",
		Mode:              "RGB",
	})
	require.NoError(t, err)
	require.True(t, created)
	return id
}

// tagImage sets the manual tags of an image.
func (e *testEnv) tagImage(t *testing.T, id int64, tags ...string) {
	t.Helper()
	_, err := e.c.DB.ReplaceManualTags(context.Background(), id, tags, e.c.Resolver)
	require.NoError(t, err)
}

// serve calls fn with a request carrying body as JSON (unless it is a
// string, which is sent verbatim) and the given route variables.
func serve(t *testing.T, fn http.HandlerFunc, method, target string, body interface{}, vars map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, r)
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	w := httptest.NewRecorder()
	fn(w, req)
	return w
}

func idVars(id int64) map[string]string {
	return map[string]string{"id": strconv.FormatInt(id, 10)}
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, w)["error"]
}
