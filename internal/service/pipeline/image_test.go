package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/model/pipeline"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/generation"
)

// backendCall 记录一次后端调用
type backendCall struct {
	Model string
	Input map[string]any
}

// fakeBackend 可编程的生成后端测试替身
type fakeBackend struct {
	mu    sync.Mutex
	calls []backendCall
	fn    func(n int, model string, input map[string]any) (generation.ArtifactRef, error)
}

func (f *fakeBackend) Run(ctx context.Context, model string, input map[string]any) (generation.ArtifactRef, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, backendCall{Model: model, Input: input})
	f.mu.Unlock()
	return f.fn(n, model, input)
}

// newTestImageClient 创建不真正睡眠的图片客户端
func newTestImageClient(b Backend) (*ImageClient, *[]time.Duration) {
	c := NewImageClient(b, "")
	slept := &[]time.Duration{}
	c.sleep = func(d time.Duration) { *slept = append(*slept, d) }
	return c, slept
}

func safetyErr() error {
	return &generation.Error{Kind: generation.KindSafety, Code: generation.CodeSafety, Message: "E005 content flagged"}
}

func transientErr() error {
	return &generation.Error{Kind: generation.KindTransient, Code: generation.CodeTransient, Message: "E004 rate limited"}
}

func faultErr() error {
	return &generation.Error{Kind: generation.KindBackendFault, Code: generation.CodeBackendFault, Message: "E003 internal error"}
}

func TestImageClient_SafetyRetry(t *testing.T) {
	Convey("安全过滤命中后脱敏重试一次", t, func() {
		ctx := context.Background()

		Convey("脱敏后成功，参考图保留", func() {
			b := &fakeBackend{fn: func(n int, model string, input map[string]any) (generation.ArtifactRef, error) {
				if n == 0 {
					return generation.ArtifactRef{}, safetyErr()
				}
				return generation.ArtifactRef{URL: "https://cdn.example.com/img.png"}, nil
			}}
			c, slept := newTestImageClient(b)

			scene := pipeline.Scene{ID: 1, Prompt: "blood on the floor", Duration: 5}
			res := c.Generate(ctx, scene, "https://seed.example.com/ref.png", "16:9")

			So(res.OK(), ShouldBeTrue)
			So(b.calls, ShouldHaveLength, 2)
			// 第二次请求用脱敏后的提示词和同一张参考图
			So(b.calls[1].Input["prompt"], ShouldContainSubstring, "red liquid")
			So(b.calls[1].Input["prompt"], ShouldNotContainSubstring, "blood")
			So(b.calls[1].Input["image"], ShouldEqual, "https://seed.example.com/ref.png")
			// 安全重试不等待
			So(*slept, ShouldBeEmpty)
		})

		Convey("二次命中安全过滤放弃", func() {
			b := &fakeBackend{fn: func(n int, model string, input map[string]any) (generation.ArtifactRef, error) {
				return generation.ArtifactRef{}, safetyErr()
			}}
			c, _ := newTestImageClient(b)

			res := c.Generate(ctx, pipeline.Scene{ID: 1, Prompt: "blood"}, "", "16:9")
			So(res.OK(), ShouldBeFalse)
			So(res.ErrorMessage, ShouldContainSubstring, "E005")
			So(b.calls, ShouldHaveLength, 2)
		})
	})
}

func TestImageClient_TransientRetry(t *testing.T) {
	Convey("临时错误退避重试", t, func() {
		ctx := context.Background()
		prompt := "scene 2 of 5: a lighthouse (4k render) standing on the cliff at night"

		Convey("最多三次尝试，退避 5s/8s", func() {
			b := &fakeBackend{fn: func(n int, model string, input map[string]any) (generation.ArtifactRef, error) {
				return generation.ArtifactRef{}, transientErr()
			}}
			c, slept := newTestImageClient(b)

			res := c.Generate(ctx, pipeline.Scene{ID: 2, Prompt: prompt}, "https://seed.png", "16:9")
			So(res.OK(), ShouldBeFalse)
			So(b.calls, ShouldHaveLength, 3)
			So(*slept, ShouldResemble, []time.Duration{5 * time.Second, 8 * time.Second})

			// 第二次尝试去掉参考图
			So(b.calls[0].Input, ShouldContainKey, "image")
			So(b.calls[1].Input, ShouldNotContainKey, "image")
			// 第三次尝试简化提示词
			So(b.calls[2].Input["prompt"], ShouldNotContainSubstring, "scene 2 of 5")
			So(b.calls[2].Input["prompt"], ShouldNotContainSubstring, "(")
		})

		Convey("第二次尝试成功即停止", func() {
			b := &fakeBackend{fn: func(n int, model string, input map[string]any) (generation.ArtifactRef, error) {
				if n == 0 {
					return generation.ArtifactRef{}, transientErr()
				}
				return generation.ArtifactRef{URL: "https://cdn/img.png"}, nil
			}}
			c, slept := newTestImageClient(b)

			res := c.Generate(ctx, pipeline.Scene{ID: 1, Prompt: "lighthouse"}, "https://seed.png", "16:9")
			So(res.OK(), ShouldBeTrue)
			So(b.calls, ShouldHaveLength, 2)
			So(*slept, ShouldResemble, []time.Duration{5 * time.Second})
		})
	})
}

func TestImageClient_FaultRetry(t *testing.T) {
	Convey("后端故障固定间隔重试", t, func() {
		ctx := context.Background()

		Convey("第二次尝试去参考图并重置画幅", func() {
			b := &fakeBackend{fn: func(n int, model string, input map[string]any) (generation.ArtifactRef, error) {
				return generation.ArtifactRef{}, faultErr()
			}}
			c, slept := newTestImageClient(b)

			res := c.Generate(ctx, pipeline.Scene{ID: 1, Prompt: "lighthouse at night on the rocks"}, "https://seed.png", "9:16")
			So(res.OK(), ShouldBeFalse)
			So(b.calls, ShouldHaveLength, 3)
			So(*slept, ShouldResemble, []time.Duration{3 * time.Second, 3 * time.Second})

			So(b.calls[0].Input["resolution"], ShouldEqual, "432x768")
			So(b.calls[1].Input, ShouldNotContainKey, "image")
			So(b.calls[1].Input["resolution"], ShouldEqual, "768x432")
		})
	})
}

func TestImageClient_UnknownError(t *testing.T) {
	Convey("未识别错误不重试", t, func() {
		b := &fakeBackend{fn: func(n int, model string, input map[string]any) (generation.ArtifactRef, error) {
			return generation.ArtifactRef{}, &generation.Error{Kind: generation.KindUnknown, Message: "weird"}
		}}
		c, slept := newTestImageClient(b)

		res := c.Generate(context.Background(), pipeline.Scene{ID: 1, Prompt: "x"}, "", "16:9")
		So(res.OK(), ShouldBeFalse)
		So(b.calls, ShouldHaveLength, 1)
		So(*slept, ShouldBeEmpty)
	})
}

func TestImageOrchestrator_Parallel(t *testing.T) {
	Convey("并发编排结果顺序与场景顺序一致", t, func() {
		// 第一个场景最后完成，结果仍按下标归位
		var rest sync.WaitGroup
		rest.Add(2)
		b := &fakeBackend{fn: func(n int, model string, input map[string]any) (generation.ArtifactRef, error) {
			p := input["prompt"].(string)
			if p == "first" {
				rest.Wait()
			} else {
				defer rest.Done()
			}
			return generation.ArtifactRef{URL: "https://cdn/" + p + ".png"}, nil
		}}
		c, _ := newTestImageClient(b)
		o := NewImageOrchestrator(c, nil, 3)

		scenes := []pipeline.Scene{
			{ID: 1, Prompt: "first"},
			{ID: 2, Prompt: "second"},
			{ID: 3, Prompt: "third"},
		}
		report := o.Run(context.Background(), scenes, "", "16:9", pipeline.StrategyParallel, "")

		So(report.Total, ShouldEqual, 3)
		So(report.Successful, ShouldEqual, 3)
		So(report.Results[0].URL, ShouldEqual, "https://cdn/first.png")
		So(report.Results[1].URL, ShouldEqual, "https://cdn/second.png")
		So(report.Results[2].URL, ShouldEqual, "https://cdn/third.png")
	})
}

func TestImageOrchestrator_Sequential(t *testing.T) {
	Convey("顺序编排的参考图继承", t, func() {
		Convey("失败的场景不打断继承链", func() {
			b := &fakeBackend{fn: func(n int, model string, input map[string]any) (generation.ArtifactRef, error) {
				if n == 1 {
					return generation.ArtifactRef{}, &generation.Error{Kind: generation.KindUnknown, Message: "boom"}
				}
				return generation.ArtifactRef{URL: "https://cdn/img.png"}, nil
			}}
			c, _ := newTestImageClient(b)
			o := NewImageOrchestrator(c, nil, 1)

			scenes := []pipeline.Scene{
				{ID: 1, Prompt: "a"},
				{ID: 2, Prompt: "b"},
				{ID: 3, Prompt: "c"},
			}
			report := o.Run(context.Background(), scenes, "", "16:9", pipeline.StrategySequential, "")

			So(report.Successful, ShouldEqual, 2)
			// 场景 1 没有参考图
			So(b.calls[0].Input, ShouldNotContainKey, "image")
			// 场景 2 继承场景 1 的产物
			So(b.calls[1].Input["image"], ShouldEqual, "https://cdn/img.png")
			// 场景 2 失败后，场景 3 仍然继承最近一次成功的产物
			So(b.calls[2].Input["image"], ShouldEqual, "https://cdn/img.png")
		})

		Convey("种子参考图作为第一个场景的起点", func() {
			b := &fakeBackend{fn: func(n int, model string, input map[string]any) (generation.ArtifactRef, error) {
				return generation.ArtifactRef{URL: "https://cdn/out.png"}, nil
			}}
			c, _ := newTestImageClient(b)
			o := NewImageOrchestrator(c, nil, 1)

			scenes := []pipeline.Scene{{ID: 1, Prompt: "a"}, {ID: 2, Prompt: "b"}}
			o.Run(context.Background(), scenes, "https://user.example.com/photo.jpg", "16:9", pipeline.StrategySequential, "")

			So(b.calls[0].Input["image"], ShouldEqual, "https://user.example.com/photo.jpg")
			So(b.calls[1].Input["image"], ShouldEqual, "https://cdn/out.png")
		})
	})
}
