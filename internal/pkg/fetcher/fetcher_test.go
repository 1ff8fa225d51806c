package fetcher

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFetcher_Download(t *testing.T) {
	Convey("Download 流式下载到本地文件", t, func() {
		f := New()
		tmpDir := t.TempDir()

		Convey("成功下载返回本地路径", func() {
			payload := bytes.Repeat([]byte("kontent"), 10000)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write(payload)
			}))
			defer srv.Close()

			dest := filepath.Join(tmpDir, "scene_0.mp4")
			got := f.Download(context.Background(), srv.URL, dest)
			So(got, ShouldEqual, dest)

			data, err := os.ReadFile(dest)
			So(err, ShouldBeNil)
			So(len(data), ShouldEqual, len(payload))
		})

		Convey("非 2xx 返回空字符串且不留文件", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer srv.Close()

			dest := filepath.Join(tmpDir, "missing.mp4")
			got := f.Download(context.Background(), srv.URL, dest)
			So(got, ShouldBeEmpty)

			_, err := os.Stat(dest)
			So(os.IsNotExist(err), ShouldBeTrue)
		})

		Convey("无效 URL 返回空字符串", func() {
			got := f.Download(context.Background(), "http://127.0.0.1:1/nope", filepath.Join(tmpDir, "x.mp4"))
			So(got, ShouldBeEmpty)
		})
	})
}
