package airtable

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/config"
)

func TestNewLogger(t *testing.T) {
	Convey("配置不全时返回 nil", t, func() {
		So(NewLogger(nil), ShouldBeNil)
		So(NewLogger(&config.AirtableConfig{}), ShouldBeNil)
		So(NewLogger(&config.AirtableConfig{APIKey: "k", BaseID: "b"}), ShouldBeNil)
		So(NewLogger(&config.AirtableConfig{APIKey: "k", BaseID: "b", Table: "sessions"}), ShouldNotBeNil)
	})

	Convey("nil Logger 调用安全", t, func() {
		var l *Logger
		So(func() { l.Log(SessionEvent{JobID: "x"}) }, ShouldNotPanic)
	})
}

func TestLogger_Log(t *testing.T) {
	Convey("会话日志异步发送", t, func() {
		received := make(chan map[string]any, 1)
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
			body, _ := io.ReadAll(r.Body)
			var payload map[string]any
			json.Unmarshal(body, &payload)
			received <- payload
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		l := &Logger{
			apiKey:     "key",
			baseID:     "base",
			table:      "sessions",
			baseURL:    srv.URL,
			httpClient: srv.Client(),
		}

		// 服务端被阻塞时 Log 也立即返回
		start := time.Now()
		l.Log(SessionEvent{JobID: "j1", UserID: "u1", Event: EventJobStarted, Detail: "text_to_video"})
		So(time.Since(start), ShouldBeLessThan, 500*time.Millisecond)
		close(block)

		var payload map[string]any
		select {
		case payload = <-received:
		case <-time.After(2 * time.Second):
		}
		So(payload, ShouldNotBeNil)

		records := payload["records"].([]any)
		So(records, ShouldHaveLength, 1)
		fields := records[0].(map[string]any)["fields"].(map[string]any)
		So(fields["JobID"], ShouldEqual, "j1")
		So(fields["Event"], ShouldEqual, EventJobStarted)
		So(fields["LoggedAt"], ShouldNotBeEmpty)
	})
}
