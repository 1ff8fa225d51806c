package pipeline

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/TAMAKQR/KONTENTZAVOD/internal/model/pipeline"
	"github.com/TAMAKQR/KONTENTZAVOD/internal/pkg/generation"
)

func TestVideoClient_ModelTable(t *testing.T) {
	Convey("视频模型能力表", t, func() {
		ctx := context.Background()
		ok := func(n int, model string, input map[string]any) (generation.ArtifactRef, error) {
			return generation.ArtifactRef{URL: "https://cdn/clip.mp4"}, nil
		}

		Convey("kling：时长收敛到最近支持值", func() {
			b := &fakeBackend{fn: ok}
			c := NewVideoClient(b)

			res := c.Generate(ctx, pipeline.Scene{ID: 1, Prompt: "x", Duration: 7}, VideoOptions{
				ModelKey: "kling", AspectRatio: "1:1",
			})

			So(res.OK(), ShouldBeTrue)
			So(res.Duration, ShouldEqual, 5)
			So(b.calls[0].Model, ShouldEqual, "kwaivgi/kling-v2.5-turbo-pro")
			So(b.calls[0].Input["duration"], ShouldEqual, 5)
			So(b.calls[0].Input["aspect_ratio"], ShouldEqual, "1:1")
			So(b.calls[0].Input, ShouldContainKey, "negative_prompt")
			So(b.calls[0].Input, ShouldNotContainKey, "generate_audio")
		})

		Convey("veo：不支持的画幅回落到 16:9，带音频与分辨率", func() {
			b := &fakeBackend{fn: ok}
			c := NewVideoClient(b)

			res := c.Generate(ctx, pipeline.Scene{ID: 1, Prompt: "x", Duration: 10}, VideoOptions{
				ModelKey: "veo", AspectRatio: "1:1",
			})

			So(res.OK(), ShouldBeTrue)
			So(res.Duration, ShouldEqual, 8)
			So(b.calls[0].Model, ShouldEqual, "google/veo-3.1-fast")
			So(b.calls[0].Input["aspect_ratio"], ShouldEqual, "16:9")
			So(b.calls[0].Input["resolution"], ShouldEqual, "720p")
			So(b.calls[0].Input["generate_audio"], ShouldEqual, true)
		})

		Convey("未知模型 key 回落到默认模型", func() {
			b := &fakeBackend{fn: ok}
			c := NewVideoClient(b)

			c.Generate(ctx, pipeline.Scene{ID: 1, Prompt: "x", Duration: 5}, VideoOptions{
				ModelKey: "does-not-exist", AspectRatio: "16:9",
			})
			So(b.calls[0].Model, ShouldEqual, "kwaivgi/kling-v2.5-turbo-pro")
		})

		Convey("起始图片透传", func() {
			b := &fakeBackend{fn: ok}
			c := NewVideoClient(b)

			c.Generate(ctx, pipeline.Scene{ID: 1, Prompt: "x", Duration: 5}, VideoOptions{
				ModelKey: "kling", AspectRatio: "16:9", ImageURL: "https://cdn/start.png",
			})
			So(b.calls[0].Input["image"], ShouldEqual, "https://cdn/start.png")
		})
	})
}

func TestVideoClient_MissingImage(t *testing.T) {
	Convey("必需起始图片缺失时不提交任务", t, func() {
		b := &fakeBackend{fn: func(n int, model string, input map[string]any) (generation.ArtifactRef, error) {
			return generation.ArtifactRef{URL: "https://cdn/clip.mp4"}, nil
		}}
		c := NewVideoClient(b)

		res := c.Generate(context.Background(), pipeline.Scene{ID: 1, Prompt: "x", Duration: 5}, VideoOptions{
			ModelKey: "kling", AspectRatio: "16:9", RequireImage: true,
		})

		So(res.OK(), ShouldBeFalse)
		So(res.ErrorMessage, ShouldContainSubstring, generation.CodeMissingImage)
		So(b.calls, ShouldBeEmpty)
	})
}

func TestVideoOrchestrator_Policies(t *testing.T) {
	Convey("部分失败策略", t, func() {
		ctx := context.Background()
		scenes := []pipeline.Scene{
			{ID: 1, Prompt: "a", Duration: 5},
			{ID: 2, Prompt: "b", Duration: 5},
			{ID: 3, Prompt: "c", Duration: 5},
		}
		failSecond := func(n int, model string, input map[string]any) (generation.ArtifactRef, error) {
			if input["prompt"] == "b" {
				return generation.ArtifactRef{}, &generation.Error{Kind: generation.KindUnknown, Message: "boom"}
			}
			return generation.ArtifactRef{URL: "https://cdn/clip.mp4"}, nil
		}

		Convey("PolicyAbort：错误信息枚举失败场景", func() {
			b := &fakeBackend{fn: failSecond}
			o := NewVideoOrchestrator(NewVideoClient(b), nil, 1)

			results, err := o.Run(ctx, scenes, nil, VideoBatchOptions{
				ModelKey: "kling", AspectRatio: "16:9", Policy: pipeline.PolicyAbort,
			}, "")

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "scenes 2")
			So(results, ShouldHaveLength, 3)
			So(results[0].OK(), ShouldBeTrue)
			So(results[1].OK(), ShouldBeFalse)
		})

		Convey("PolicyProceed：保留成功子集", func() {
			b := &fakeBackend{fn: failSecond}
			o := NewVideoOrchestrator(NewVideoClient(b), nil, 1)

			results, err := o.Run(ctx, scenes, nil, VideoBatchOptions{
				ModelKey: "kling", AspectRatio: "16:9", Policy: pipeline.PolicyProceed,
			}, "")

			So(err, ShouldBeNil)
			So(results, ShouldHaveLength, 3)
			So(results[1].OK(), ShouldBeFalse)
		})

		Convey("按下标对应的起始图引用", func() {
			b := &fakeBackend{fn: func(n int, model string, input map[string]any) (generation.ArtifactRef, error) {
				return generation.ArtifactRef{URL: "https://cdn/clip.mp4"}, nil
			}}
			o := NewVideoOrchestrator(NewVideoClient(b), nil, 1)

			refs := []string{"https://cdn/1.png", "", "https://cdn/3.png"}
			_, err := o.Run(ctx, scenes, refs, VideoBatchOptions{
				ModelKey: "kling", AspectRatio: "16:9", Policy: pipeline.PolicyProceed,
			}, "")

			So(err, ShouldBeNil)
			byPrompt := map[string]backendCall{}
			for _, call := range b.calls {
				byPrompt[call.Input["prompt"].(string)] = call
			}
			So(byPrompt["a"].Input["image"], ShouldEqual, "https://cdn/1.png")
			So(byPrompt["b"].Input, ShouldNotContainKey, "image")
			So(byPrompt["c"].Input["image"], ShouldEqual, "https://cdn/3.png")
		})
	})
}
